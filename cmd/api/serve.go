package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/melih/lighthouse-orchestrator/internal/adapters/http"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/sweep"
	"github.com/melih/lighthouse-orchestrator/internal/log"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the health and cleanup sweeps",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := log.WithComponent("main")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := wire(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		healthSweep := sweep.NewRunner("health", cfg.HealthInterval, c.monitor.Run)
		cleanupSweep := sweep.NewRunner("cleanup", cfg.CleanupInterval, c.reaper.Run)
		healthSweep.Start(ctx)
		cleanupSweep.Start(ctx)

		app := httpadapter.NewRouter(httpadapter.Config{
			Secret:         cfg.Secret,
			MaxUploadBytes: cfg.MaxUploadBytes,
			GatewayHost:    cfg.ProbeHost,
		}, c.workers, c.files)

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("server starting")
			errCh <- app.Listen(cfg.ListenAddr)
		}()

		var serveErr error
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
		case serveErr = <-errCh:
		}

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
		healthSweep.Stop()
		cleanupSweep.Stop()

		if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
			return serveErr
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}
