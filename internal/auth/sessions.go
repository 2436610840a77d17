package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for account->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// Sessions maps opaque bearer tokens to account ids.
type Sessions interface {
	Create(ctx context.Context, accountID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, accountID string) error
}

// RedisSessions keeps one session per account; signing in again replaces the
// previous session so the 7-day timer restarts from the latest login.
type RedisSessions struct {
	client *redis.Client
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client}
}

func (s *RedisSessions) Create(ctx context.Context, accountID string) (string, error) {
	if err := s.RevokeAll(ctx, accountID); err != nil {
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+token, accountID, SessionDuration)
	pipe.Set(ctx, UserSessionKeyPrefix+accountID, token, SessionDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

func (s *RedisSessions) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionNotFound
	}
	accountID, err := s.client.Get(ctx, SessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *RedisSessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sessionKey := SessionKeyPrefix + token
	accountID, err := s.client.Get(ctx, sessionKey).Result()
	if err == nil && accountID != "" {
		s.client.Del(ctx, UserSessionKeyPrefix+accountID)
	}
	return s.client.Del(ctx, sessionKey).Err()
}

// RevokeAll ends the account's session, e.g. after a password reset.
func (s *RedisSessions) RevokeAll(ctx context.Context, accountID string) error {
	userSessionKey := UserSessionKeyPrefix + accountID
	token, err := s.client.Get(ctx, userSessionKey).Result()
	if err == nil && token != "" {
		s.client.Del(ctx, SessionKeyPrefix+token)
	}
	return s.client.Del(ctx, userSessionKey).Err()
}
