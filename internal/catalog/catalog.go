// Package catalog is the narrow interface to the external climb/board
// catalog. The daemon treats resolved climb records as opaque payloads
// attached to queue items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"boardsesh_daemon/internal/session"
)

var ErrClimbNotFound = errors.New("climb_not_found")

// Resolver turns a climb uuid into the denormalized snapshot queued
// items carry.
type Resolver interface {
	Resolve(ctx context.Context, climbUUID string) (session.Climb, error)
	Cache(ctx context.Context, climb session.Climb)
}

// RedisCatalog serves climb snapshots from the catalog cache the board
// services maintain under "climb:<uuid>".
type RedisCatalog struct {
	redis *redis.Client
}

func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{redis: client}
}

func (c *RedisCatalog) Resolve(ctx context.Context, climbUUID string) (session.Climb, error) {
	data, err := c.redis.Get(ctx, "climb:"+climbUUID).Bytes()
	if err == redis.Nil {
		return session.Climb{}, ErrClimbNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("climb", climbUUID).Msg("Failed to get climb from catalog cache.")
		return session.Climb{}, err
	}

	var climb session.Climb
	if err := json.Unmarshal(data, &climb); err != nil {
		log.Error().Err(err).Str("climb", climbUUID).Msg("Failed to unmarshal catalog climb.")
		return session.Climb{}, err
	}
	return climb, nil
}

// Cache stores a client-supplied snapshot best-effort; a failure only
// costs later joiners a resolution miss.
func (c *RedisCatalog) Cache(ctx context.Context, climb session.Climb) {
	if climb.UUID == "" {
		return
	}
	data, err := json.Marshal(climb)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, "climb:"+climb.UUID, data, 0).Err(); err != nil {
		log.Warn().Err(err).Str("climb", climb.UUID).Msg("Failed to cache climb snapshot.")
	}
}
