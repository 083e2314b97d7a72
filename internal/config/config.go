package config

import (
	"time"

	"github.com/gobuffalo/envy"
	"github.com/rs/zerolog/log"
)

// Defaults for the session reclamation and shutdown timers. Overridable
// through the environment; see Load.
const (
	DefaultIdleThreshold = 10 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultShutdownGrace = 5 * time.Second
)

type Settings struct {
	Env           string
	RedisAddr     string
	RedisPassword string
	BoardseshURL  string

	// IdleThreshold is how long an empty session must stay empty before
	// the sweeper may reclaim it.
	IdleThreshold time.Duration
	// SweepInterval is how often the sweeper wakes up.
	SweepInterval time.Duration
	// ShutdownGrace bounds how long we wait for open connections to
	// finish their close handshake on shutdown.
	ShutdownGrace time.Duration
}

func Load() Settings {
	return Settings{
		Env:           envy.Get("GO_ENV", "development"),
		RedisAddr:     envy.Get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envy.Get("REDIS_PASSWORD", ""),
		BoardseshURL:  envy.Get("BOARDSESH_URL", "https://boardsesh.com"),
		IdleThreshold: duration("SESSION_IDLE_THRESHOLD", DefaultIdleThreshold),
		SweepInterval: duration("SESSION_SWEEP_INTERVAL", DefaultSweepInterval),
		ShutdownGrace: duration("SHUTDOWN_GRACE", DefaultShutdownGrace),
	}
}

func duration(key string, fallback time.Duration) time.Duration {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Unparsable duration, using default.")
		return fallback
	}
	return d
}
