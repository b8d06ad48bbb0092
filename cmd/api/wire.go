package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/melih/lighthouse-orchestrator/internal/adapters/docker"
	"github.com/melih/lighthouse-orchestrator/internal/adapters/reservation"
	"github.com/melih/lighthouse-orchestrator/internal/adapters/templates"
	"github.com/melih/lighthouse-orchestrator/internal/adapters/workspace"
	"github.com/melih/lighthouse-orchestrator/internal/config"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/filebridge"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/health"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/lifecycle"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/portalloc"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/reaper"
	"github.com/melih/lighthouse-orchestrator/internal/log"
)

// components holds every wired service of one orchestrator process.
type components struct {
	cfg     config.Config
	engine  *docker.Adapter
	store   ports.ReservationStore
	workers *lifecycle.Manager
	files   *filebridge.Bridge
	monitor *health.Monitor
	reaper  *reaper.Reaper

	closers []func() error
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

func wire(ctx context.Context, cfg config.Config) (*components, error) {
	logger := log.WithComponent("main")
	c := &components{cfg: cfg}

	engine, err := docker.NewAdapter(cfg.DockerHost, cfg.PublishIP)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	c.closers = append(c.closers, engine.Close)
	if err := engine.Ping(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		host, _ := os.Hostname()
		owner := host + "/" + uuid.NewString()
		store, err := reservation.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReservationTTL, owner)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.store = store
		c.closers = append(c.closers, store.Close)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis port reservations")
	} else {
		c.store = reservation.NewMemory()
	}

	if cfg.TemplateRepoURL != "" {
		if _, err := templates.NewSyncer(cfg.TemplateRepoURL, cfg.TemplateRepoRef, cfg.TemplateRoot).Sync(ctx); err != nil {
			// Stale templates still render; a missing tree degrades to empty sections.
			logger.Warn().Err(err).Msg("template sync failed, using templates on disk")
		}
	}

	bundles, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		c.Close()
		return nil, err
	}
	builder := workspace.NewBuilder(cfg.TemplateRoot, bundles)

	c.workers = lifecycle.New(engine, builder, portalloc.New(engine, c.store), lifecycle.Config{
		Image:           cfg.WorkerImage,
		GatewayRange:    cfg.GatewayRange(),
		NoVNCRange:      cfg.NoVNCRange(),
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		Resources:       cfg.Resources(),
		StopGrace:       cfg.StopGrace,
		EngineTimeout:   cfg.EngineTimeout,
	})
	c.files = filebridge.New(engine, cfg.EngineTimeout)
	c.monitor = health.New(engine, health.Config{
		ProbeHost:    cfg.ProbeHost,
		ProbeTimeout: cfg.ProbeTimeout,
		StopGrace:    cfg.StopGrace,
		Concurrency:  cfg.SweepConcurrency,
	})
	c.reaper = reaper.New(engine, builder, reaper.Config{
		Retention:   cfg.Retention,
		Concurrency: cfg.SweepConcurrency,
	})
	return c, nil
}

// Close releases clients in reverse order of creation.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Logger.Warn().Err(err).Msg("close failed")
		}
	}
}
