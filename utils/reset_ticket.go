package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const resetTicketBytes = 32

// NewResetTicket returns a random plaintext ticket for the email link and
// the hash that is stored in its place.
func NewResetTicket() (plain, hash string, err error) {
	b := make([]byte, resetTicketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(b)
	return plain, HashResetTicket(plain), nil
}

func HashResetTicket(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
