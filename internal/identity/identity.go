// Package identity resolves the opaque, already-validated tokens issued
// by the external identity provider. The daemon performs no credential
// verification of its own.
package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("identity_session_not_found")

// User is the validated (userId, username) pair behind a token.
type User struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Provider turns a bearer token into a User.
type Provider interface {
	Resolve(ctx context.Context, token string) (User, error)
}

// RedisProvider reads identity sessions the provider stores under
// "session:<token>".
type RedisProvider struct {
	redis *redis.Client
}

func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{redis: client}
}

func (p *RedisProvider) Resolve(ctx context.Context, token string) (User, error) {
	data, err := p.redis.Get(ctx, "session:"+token).Bytes()
	if err == redis.Nil {
		return User{}, ErrSessionNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get identity session from Redis.")
		return User{}, err
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal identity session.")
		return User{}, err
	}
	return user, nil
}
