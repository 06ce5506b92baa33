package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// TokenStore tracks the single live token ID of each principal. Logging in
// again replaces it and logging out removes it.
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore creates a TokenStore.
func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

// Save records jti as the live token of the principal until ttl elapses.
func (s *TokenStore) Save(ctx context.Context, principalType, principalID, jti string, ttl time.Duration) error {
	return s.rdb.Set(ctx, config.CacheKey.AuthTokenKey(principalType, principalID), jti, ttl).Err()
}

// IsActive reports whether jti is still the principal's live token.
func (s *TokenStore) IsActive(ctx context.Context, principalType, principalID, jti string) (bool, error) {
	cur, err := s.rdb.Get(ctx, config.CacheKey.AuthTokenKey(principalType, principalID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cur == jti, nil
}

// Revoke removes the principal's live token.
func (s *TokenStore) Revoke(ctx context.Context, principalType, principalID string) error {
	return s.rdb.Del(ctx, config.CacheKey.AuthTokenKey(principalType, principalID)).Err()
}
