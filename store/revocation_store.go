package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore is a denylist for refresh tokens, which are otherwise
// stateless. Individual tokens are keyed by jti; a per-user cutoff rejects
// every token issued at or before it.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUserTokens(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error
	UserCutoff(ctx context.Context, userID string) (time.Time, bool, error)
}

type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: "revoked:", now: time.Now}
}

func (r *RedisRevocationStore) tokenKey(jti string) string {
	return r.prefix + "jti:" + jti
}

func (r *RedisRevocationStore) userKey(userID string) string {
	return r.prefix + "user:" + userID
}

// RevokeToken denylists jti until expiresAt; a token that has already
// expired needs no entry.
func (r *RedisRevocationStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.tokenKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RedisRevocationStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.tokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n == 1, nil
}

// RevokeUserTokens records cutoff for userID. The entry lives for ttl,
// which should be the refresh token lifetime.
func (r *RedisRevocationStore) RevokeUserTokens(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	val := strconv.FormatInt(cutoff.Unix(), 10)
	if err := r.client.Set(ctx, r.userKey(userID), val, ttl).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (r *RedisRevocationStore) UserCutoff(ctx context.Context, userID string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read user cutoff: %w", err)
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse user cutoff: %w", err)
	}
	return time.Unix(sec, 0).UTC(), true, nil
}

// NoopRevocationStore is used when no Redis is configured: refresh tokens
// stay valid until they expire.
type NoopRevocationStore struct{}

func (NoopRevocationStore) RevokeToken(context.Context, string, time.Time) error { return nil }
func (NoopRevocationStore) IsTokenRevoked(context.Context, string) (bool, error) { return false, nil }
func (NoopRevocationStore) RevokeUserTokens(context.Context, string, time.Time, time.Duration) error {
	return nil
}
func (NoopRevocationStore) UserCutoff(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

var (
	_ UserStore       = (*MongoUserStore)(nil)
	_ UserStore       = (*MemoryUserStore)(nil)
	_ RevocationStore = (*RedisRevocationStore)(nil)
	_ RevocationStore = NoopRevocationStore{}
)
