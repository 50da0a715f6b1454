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

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenStore resolves an opaque bearer token to a user id. Issuing and
// revoking live with the auth service; this service only resolves.
type TokenStore interface {
	Resolve(ctx context.Context, token string) (string, error)
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
}

type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: "authtoken:",
	}
}

func (s *RedisTokenStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisTokenStore) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	userID, err := s.client.Get(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}

	return userID, nil
}

func (s *RedisTokenStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	if err := s.client.Set(ctx, s.key(token), userID, ttl).Err(); err != nil {
		return "", err
	}

	return token, nil
}
