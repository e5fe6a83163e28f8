package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName     string        `bson:"fullName" json:"fullName"`
	Email        string        `bson:"email" json:"email"`
	MatricNumber string        `bson:"matricNumber,omitempty" json:"matricNumber,omitempty"`
	PhoneNumber  string        `bson:"phoneNumber" json:"phoneNumber"`
	Faculty      string        `bson:"faculty,omitempty" json:"faculty,omitempty"`
	Department   string        `bson:"department,omitempty" json:"department,omitempty"`
	PasswordHash string        `bson:"password" json:"-"` // never expose
	Role         Role          `bson:"role" json:"role"`

	// Reset state: both set or both absent. Only the SHA-256 of the ticket is kept.
	ResetTokenHash string     `bson:"resetPasswordToken,omitempty" json:"-"`
	ResetExpiresAt *time.Time `bson:"resetPasswordExpires,omitempty" json:"-"`

	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasPendingReset reports whether a reset ticket is outstanding at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetTokenHash != "" && u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now)
}

// Clone returns a deep copy so in-memory stores never hand out shared pointers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.ResetExpiresAt != nil {
		t := *u.ResetExpiresAt
		cp.ResetExpiresAt = &t
	}
	return &cp
}
