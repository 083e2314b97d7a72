package main

import (
	"context"
	"errors"

	"boardsesh_daemon/actions"
	"boardsesh_daemon/internal/config"
	"boardsesh_daemon/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init()
	cfg := config.Load()

	app := actions.App()
	actions.Cleaner().Start()

	log.Info().Str("env", cfg.Env).Msg("BoardSesh daemon starting.")
	if err := app.Serve(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Server exited.")
	}

	// Serve returned on interrupt/terminate with listeners already
	// closed: first phase of the drain is done. Second phase closes the
	// open sockets within the grace period.
	actions.Cleaner().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	actions.Gateway().Shutdown(ctx)

	log.Info().Msg("BoardSesh daemon stopped.")
}
