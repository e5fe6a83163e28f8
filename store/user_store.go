// Package store persists user credentials and refresh-token revocations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/campusmart/backend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrNotFound            = errors.New("user not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateIdentifier = errors.New("matric number already registered")
	ErrVersionConflict     = errors.New("user was modified concurrently")
)

// UserStore is the credential store. Writes that change the password or the
// reset state are conditional, either on the caller's version or on the
// reset ticket itself, so concurrent requests cannot silently overwrite
// each other.
type UserStore interface {
	// Create inserts u, whose password must already be hashed, and fills in
	// ID, Version and timestamps.
	Create(ctx context.Context, u *models.User) error

	// EnsureUser inserts u only if no user with the same email exists.
	EnsureUser(ctx context.Context, u *models.User) (created bool, err error)

	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByEmailOrIdentifier matches the email (case-insensitive) or the
	// matric number (exact).
	FindByEmailOrIdentifier(ctx context.Context, value string) (*models.User, error)

	// SetResetTicket stores a ticket hash and expiry if the stored version
	// still equals version.
	SetResetTicket(ctx context.Context, id bson.ObjectID, version int64, hash string, expiresAt time.Time) error

	// ConsumeResetTicket atomically finds the user holding hash with an
	// expiry strictly after now, replaces the password and clears the reset
	// fields. It returns the updated user. A matching ticket that has
	// already expired is cleared and reported as ErrNotFound.
	ConsumeResetTicket(ctx context.Context, hash string, now time.Time, passwordHash string) (*models.User, error)

	// UpdatePassword replaces the password if the stored version still
	// equals version, clearing any pending reset ticket.
	UpdatePassword(ctx context.Context, id bson.ObjectID, version int64, passwordHash string) error
}
