package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd!", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$04$"))

	assert.True(t, h.Verify(hash, "Passw0rd!"))
	assert.False(t, h.Verify(hash, "passw0rd!"))
	assert.False(t, h.Verify("not-a-hash", "Passw0rd!"))

	again, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "each hash uses a fresh salt")
}

func TestPasswordHasher_TooLong(t *testing.T) {
	_, err := NewPasswordHasher(4).Hash(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewPasswordHasher(1)
	hash, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$10$"))
}

func TestPasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{name: "valid", password: "Passw0rd!"},
		{name: "minimum length", password: "ab1!cd"},
		{name: "too short", password: "a1!b", want: ErrPasswordTooShort},
		{name: "no digit", password: "Password!", want: ErrPasswordNoDigit},
		{name: "no symbol", password: "Passw0rd", want: ErrPasswordNoSymbol},
		{name: "space counts as symbol", password: "Pass w0rd"},
		{name: "letters and digits only", password: "Passw0rdX", want: ErrPasswordNoSymbol},
		{name: "too long", password: strings.Repeat("a1!", 25), want: ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PasswordPolicy(tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResetTicket(t *testing.T) {
	plain, hash, err := NewResetTicket()
	require.NoError(t, err)

	assert.Len(t, plain, 64)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, plain, hash)
	assert.Equal(t, hash, HashResetTicket(plain))

	other, _, err := NewResetTicket()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
