package utils

import (
	"context"
	"fmt"

	"github.com/campusmart/backend/models"
	"github.com/campusmart/backend/store"
	"go.uber.org/zap"
)

// SeedAdminUser creates the administrator account unless a user with that
// email already exists. Existing accounts are left untouched.
func SeedAdminUser(ctx context.Context, users store.UserStore, hasher *PasswordHasher, email, password string) error {
	email = NormalizeEmail(email)

	if email == "" || password == "" {
		return fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD")
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	// Only insert if it doesn't exist
	created, err := users.EnsureUser(ctx, &models.User{
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdministrator,
	})
	if err != nil {
		return fmt.Errorf("seed admin upsert failed: %w", err)
	}

	if created {
		zap.L().Info("Admin user seeded", zap.String("email", email))
	} else {
		zap.L().Info("Admin user already exists", zap.String("email", email))
	}

	return nil
}
