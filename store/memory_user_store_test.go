package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campusmart/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func newUser(email, matric string) *models.User {
	return &models.User{
		FullName:     "Test User",
		Email:        email,
		MatricNumber: matric,
		PhoneNumber:  "08012345678",
		PasswordHash: "hash",
		Role:         models.RoleStandard,
	}
}

func TestMemoryUserStore_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		existing *models.User
		user     *models.User
		wantErr  error
	}{
		{
			name: "new user",
			user: newUser("alice@example.com", "CSC/2020/001"),
		},
		{
			name:     "duplicate email",
			existing: newUser("alice@example.com", ""),
			user:     newUser("alice@example.com", ""),
			wantErr:  ErrDuplicateEmail,
		},
		{
			name:     "duplicate matric number",
			existing: newUser("bob@example.com", "CSC/2020/001"),
			user:     newUser("alice@example.com", "CSC/2020/001"),
			wantErr:  ErrDuplicateIdentifier,
		},
		{
			name:     "two users without matric number",
			existing: newUser("bob@example.com", ""),
			user:     newUser("alice@example.com", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryUserStore()
			if tt.existing != nil {
				require.NoError(t, s.Create(ctx, tt.existing))
			}

			err := s.Create(ctx, tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, tt.user.ID.IsZero())
			assert.Equal(t, int64(1), tt.user.Version)
		})
	}
}

func TestMemoryUserStore_ConcurrentRegistration(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var created atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create(ctx, newUser("race@example.com", "")); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestMemoryUserStore_FindByEmailOrIdentifier(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	u := newUser("alice@example.com", "CSC/2020/001")
	require.NoError(t, s.Create(ctx, u))

	for _, v := range []string{"alice@example.com", "  ALICE@example.com ", "CSC/2020/001"} {
		got, err := s.FindByEmailOrIdentifier(ctx, v)
		require.NoError(t, err, v)
		assert.Equal(t, u.ID, got.ID)
	}

	_, err := s.FindByEmailOrIdentifier(ctx, "csc/2020/001")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByEmailOrIdentifier(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserStore_FindByIDReturnsCopy(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	u := newUser("alice@example.com", "")
	require.NoError(t, s.Create(ctx, u))

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.PasswordHash = "tampered"

	again, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", again.PasswordHash)

	_, err = s.FindByID(ctx, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserStore_SetResetTicketVersion(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	u := newUser("alice@example.com", "")
	require.NoError(t, s.Create(ctx, u))

	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.SetResetTicket(ctx, u.ID, 1, "h1", exp))

	err := s.SetResetTicket(ctx, u.ID, 1, "h2", exp)
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = s.SetResetTicket(ctx, bson.NewObjectID(), 1, "h2", exp)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ResetTokenHash)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryUserStore_ConsumeResetTicket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		expiry      time.Time
		hash        string
		wantErr     error
		wantCleared bool
	}{
		{name: "valid ticket", expiry: now.Add(time.Minute), hash: "h1"},
		{name: "expiry equal to now", expiry: now, hash: "h1", wantErr: ErrNotFound, wantCleared: true},
		{name: "expired", expiry: now.Add(-time.Second), hash: "h1", wantErr: ErrNotFound, wantCleared: true},
		{name: "wrong hash", expiry: now.Add(time.Minute), hash: "other", wantErr: ErrNotFound},
		{name: "empty hash", expiry: now.Add(time.Minute), hash: "", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryUserStore()
			u := newUser("alice@example.com", "")
			require.NoError(t, s.Create(ctx, u))
			require.NoError(t, s.SetResetTicket(ctx, u.ID, u.Version, "h1", tt.expiry))

			got, err := s.ConsumeResetTicket(ctx, tt.hash, now, "newhash")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				stored, err := s.FindByID(ctx, u.ID)
				require.NoError(t, err)
				assert.NotEqual(t, "newhash", stored.PasswordHash)
				if tt.wantCleared {
					assert.Empty(t, stored.ResetTokenHash)
					assert.Nil(t, stored.ResetExpiresAt)
				} else {
					assert.Equal(t, "h1", stored.ResetTokenHash)
					assert.NotNil(t, stored.ResetExpiresAt)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "newhash", got.PasswordHash)
			assert.Empty(t, got.ResetTokenHash)
			assert.Nil(t, got.ResetExpiresAt)

			_, err = s.ConsumeResetTicket(ctx, tt.hash, now, "again")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryUserStore_UpdatePasswordClearsReset(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	u := newUser("alice@example.com", "")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetResetTicket(ctx, u.ID, 1, "h1", time.Now().Add(time.Hour)))

	assert.ErrorIs(t, s.UpdatePassword(ctx, u.ID, 1, "newhash"), ErrVersionConflict)
	require.NoError(t, s.UpdatePassword(ctx, u.ID, 2, "newhash"))

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.PasswordHash)
	assert.Empty(t, got.ResetTokenHash)

	_, err = s.ConsumeResetTicket(ctx, "h1", time.Now(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserStore_EnsureUser(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	created, err := s.EnsureUser(ctx, newUser("admin@example.com", ""))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureUser(ctx, newUser("admin@example.com", ""))
	require.NoError(t, err)
	assert.False(t, created)
}
