package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// TokenStore keeps the single active token per user and platform in Redis.
// Saving a new token replaces the previous one, so a fresh login on the
// same platform invalidates the older session.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenStore creates a token store with the configured lifetime
func NewTokenStore(rdb *redis.Client, expireHours int) *TokenStore {
	return &TokenStore{
		rdb: rdb,
		ttl: time.Duration(expireHours) * time.Hour,
	}
}

func (s *TokenStore) key(userId string, platformId int) string {
	return fmt.Sprintf(constant.RedisKeyToken(), userId, platformId)
}

// Save installs the token as the active session for this user and platform
func (s *TokenStore) Save(ctx context.Context, userId string, platformId int, token string) error {
	if err := s.rdb.Set(ctx, s.key(userId, platformId), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Active returns the current active token, empty when none is stored
func (s *TokenStore) Active(ctx context.Context, userId string, platformId int) (string, error) {
	token, err := s.rdb.Get(ctx, s.key(userId, platformId)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

// Matches reports whether the presented token is the active session
func (s *TokenStore) Matches(ctx context.Context, userId string, platformId int, token string) (bool, error) {
	active, err := s.Active(ctx, userId, platformId)
	if err != nil {
		return false, err
	}
	return active != "" && active == token, nil
}

// Revoke drops the active session for this user and platform
func (s *TokenStore) Revoke(ctx context.Context, userId string, platformId int) error {
	if err := s.rdb.Del(ctx, s.key(userId, platformId)).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
