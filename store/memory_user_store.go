package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/campusmart/backend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryUserStore keeps users in process memory. It enforces the same
// uniqueness and compare-and-swap rules as MongoUserStore and backs tests
// and STORE_DRIVER=memory runs.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[bson.ObjectID]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[bson.ObjectID]*models.User)}
}

func (s *MemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(u)
}

func (s *MemoryUserStore) insertLocked(u *models.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
		if u.MatricNumber != "" && existing.MatricNumber == u.MatricNumber {
			return ErrDuplicateIdentifier
		}
	}

	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Version = 1

	s.users[u.ID] = u.Clone()
	return nil
}

func (s *MemoryUserStore) EnsureUser(_ context.Context, u *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return false, nil
		}
	}
	if err := s.insertLocked(u); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if email != "" && u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUserStore) FindByEmailOrIdentifier(_ context.Context, value string) (*models.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNotFound
	}
	email := strings.ToLower(value)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email || (u.MatricNumber != "" && u.MatricNumber == value) {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUserStore) SetResetTicket(_ context.Context, id bson.ObjectID, version int64, hash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.versionedLocked(id, version)
	if err != nil {
		return err
	}
	exp := expiresAt.UTC()
	u.ResetTokenHash = hash
	u.ResetExpiresAt = &exp
	u.UpdatedAt = time.Now().UTC()
	u.Version++
	return nil
}

func (s *MemoryUserStore) UpdatePassword(_ context.Context, id bson.ObjectID, version int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.versionedLocked(id, version)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	u.Version++
	return nil
}

func (s *MemoryUserStore) versionedLocked(id bson.ObjectID, version int64) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Version != version {
		return nil, ErrVersionConflict
	}
	return u, nil
}

func (s *MemoryUserStore) ConsumeResetTicket(_ context.Context, hash string, now time.Time, passwordHash string) (*models.User, error) {
	if hash == "" {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ResetTokenHash != hash {
			continue
		}
		if !u.HasPendingReset(now) {
			u.ResetTokenHash = ""
			u.ResetExpiresAt = nil
			u.UpdatedAt = now.UTC()
			u.Version++
			return nil, ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetExpiresAt = nil
		u.UpdatedAt = now.UTC()
		u.Version++
		return u.Clone(), nil
	}
	return nil, ErrNotFound
}
