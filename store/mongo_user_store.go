package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusmart/backend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const UsersCollection = "users"

type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique email index and a partial unique index
// on matric number, which only applies to documents that carry one.
func (s *MongoUserStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys: bson.D{{Key: "matricNumber", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("matricNumber_unique").
				SetPartialFilterExpression(bson.M{"matricNumber": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "resetPasswordToken", Value: 1}},
			Options: options.Index().SetName("resetPasswordToken").SetSparse(true),
		},
	}

	if _, err := s.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *MongoUserStore) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Version = 1

	if _, err := s.col.InsertOne(ctx, u); err != nil {
		if IsDuplicateKey(err) {
			return duplicateKind(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	now := time.Now().UTC()

	filter := bson.M{"email": u.Email}
	update := bson.M{
		"$setOnInsert": bson.M{
			"fullName":    u.FullName,
			"email":       u.Email,
			"phoneNumber": u.PhoneNumber,
			"password":    u.PasswordHash,
			"role":        u.Role,
			"version":     int64(1),
			"createdAt":   now,
			"updatedAt":   now,
		},
	}

	opts := options.UpdateOne().SetUpsert(true)

	res, err := s.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		// Two concurrent upserts can both miss; the loser hits the index.
		if IsDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert user: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func (s *MongoUserStore) findOne(ctx context.Context, filter any) (*models.User, error) {
	var u models.User
	if err := s.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoUserStore) FindByEmailOrIdentifier(ctx context.Context, value string) (*models.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": strings.ToLower(value)},
		bson.M{"matricNumber": value},
	}})
}

func (s *MongoUserStore) SetResetTicket(ctx context.Context, id bson.ObjectID, version int64, hash string, expiresAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"resetPasswordToken":   hash,
			"resetPasswordExpires": expiresAt.UTC(),
			"updatedAt":            time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	return s.updateVersioned(ctx, id, version, update)
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id bson.ObjectID, version int64, passwordHash string) error {
	update := bson.M{
		"$set": bson.M{
			"password":  passwordHash,
			"updatedAt": time.Now().UTC(),
		},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
		"$inc":   bson.M{"version": 1},
	}
	return s.updateVersioned(ctx, id, version, update)
}

func (s *MongoUserStore) updateVersioned(ctx context.Context, id bson.ObjectID, version int64, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "version": version}, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: either the user is gone or someone else won.
	n, err := s.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *MongoUserStore) ConsumeResetTicket(ctx context.Context, hash string, now time.Time, passwordHash string) (*models.User, error) {
	if hash == "" {
		return nil, ErrNotFound
	}

	filter := bson.M{
		"resetPasswordToken":   hash,
		"resetPasswordExpires": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set": bson.M{
			"password":  passwordHash,
			"updatedAt": now.UTC(),
		},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
		"$inc":   bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var u models.User
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			s.clearExpiredTicket(ctx, hash, now)
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consume reset ticket: %w", err)
	}
	return &u, nil
}

// clearExpiredTicket drops the reset state of an account whose ticket
// matched but has expired. Failures are logged; the caller already answers
// with ErrNotFound.
func (s *MongoUserStore) clearExpiredTicket(ctx context.Context, hash string, now time.Time) {
	filter := bson.M{
		"resetPasswordToken":   hash,
		"resetPasswordExpires": bson.M{"$lte": now.UTC()},
	}
	update := bson.M{
		"$set":   bson.M{"updatedAt": now.UTC()},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
		"$inc":   bson.M{"version": 1},
	}
	if _, err := s.col.UpdateOne(ctx, filter, update); err != nil {
		zap.L().Warn("Failed to clear expired reset ticket", zap.Error(err))
	}
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}

	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			zap.L().Debug("Mongo write error", zap.Int("code", e.Code))
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	return strings.Contains(err.Error(), "E11000 duplicate key error")
}

const matricIndex = "matricNumber_unique"

// duplicateKind maps a duplicate key error to the violated index. Only the
// index name is inspected, never the duplicated value.
func duplicateKind(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if violatedIndex(e.Message) == matricIndex {
				return ErrDuplicateIdentifier
			}
		}
		return ErrDuplicateEmail
	}
	if violatedIndex(err.Error()) == matricIndex {
		return ErrDuplicateIdentifier
	}
	return ErrDuplicateEmail
}

// violatedIndex extracts the name after "index: " in an E11000 message.
func violatedIndex(msg string) string {
	_, rest, ok := strings.Cut(msg, " index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}
