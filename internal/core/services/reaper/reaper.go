// Package reaper removes worker containers that have been stopped for longer
// than the retention window and prunes dangling images.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// Config controls a cleanup sweep.
type Config struct {
	Retention   time.Duration
	Concurrency int
}

// Result tallies one sweep.
type Result struct {
	Examined       int    `json:"examined"`
	Removed        int    `json:"removed"`
	Failed         int    `json:"failed"`
	ImagesDeleted  int    `json:"imagesDeleted"`
	SpaceReclaimed uint64 `json:"spaceReclaimed"`
}

// Reaper is the cleanup reaper.
type Reaper struct {
	engine  ports.ContainerEngine
	bundles ports.WorkspaceBuilder
	cfg     Config
	log     zerolog.Logger

	now func() time.Time
}

// New creates a reaper.
func New(engine ports.ContainerEngine, bundles ports.WorkspaceBuilder, cfg Config) *Reaper {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Reaper{
		engine:  engine,
		bundles: bundles,
		cfg:     cfg,
		log:     log.WithComponent("reaper"),
		now:     time.Now,
	}
}

// Sweep removes expired stopped containers, then prunes dangling images.
// A failure on one container does not stop the others.
func (r *Reaper) Sweep(ctx context.Context) (Result, error) {
	containers, err := r.engine.ListContainers(ctx, true, domain.ListFilter{
		Labels: map[string]string{domain.LabelManaged: "true"},
		States: []string{domain.StateExited, domain.StateDead},
	})
	if err != nil {
		return Result{}, fmt.Errorf("list stopped containers: %w", err)
	}

	now := r.now()
	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, c := range containers {
		c := c
		g.Go(func() error {
			removed, err := r.reap(gctx, c.Name, now)
			mu.Lock()
			defer mu.Unlock()
			res.Examined++
			switch {
			case err != nil:
				res.Failed++
				r.log.Error().Err(err).Str("container", c.Name).Msg("failed to reap container")
			case removed:
				res.Removed++
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.ReaperRemovalsTotal.Add(float64(res.Removed))

	report, err := r.engine.PruneDanglingImages(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("image prune failed")
	} else {
		res.ImagesDeleted = report.ImagesDeleted
		res.SpaceReclaimed = report.SpaceReclaimed
		metrics.ReaperReclaimedBytes.Add(float64(report.SpaceReclaimed))
	}

	r.log.Info().
		Int("examined", res.Examined).
		Int("removed", res.Removed).
		Int("images_deleted", res.ImagesDeleted).
		Uint64("space_reclaimed", res.SpaceReclaimed).
		Msg("cleanup sweep complete")
	return res, nil
}

// Run adapts Sweep to a sweep.Func.
func (r *Reaper) Run(ctx context.Context) error {
	_, err := r.Sweep(ctx)
	return err
}

func (r *Reaper) reap(ctx context.Context, name string, now time.Time) (bool, error) {
	d, err := r.engine.InspectContainer(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.Running || d.FinishedAt.IsZero() {
		return false, nil
	}
	age := now.Sub(d.FinishedAt)
	if age <= r.cfg.Retention {
		return false, nil
	}

	if err := r.engine.RemoveContainer(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err := r.bundles.Remove(name); err != nil {
		r.log.Warn().Err(err).Str("container", name).Msg("failed to remove workspace bundle")
	}
	r.log.Info().Str("container", name).Dur("stopped_for", age).Msg("removed expired container")
	return true, nil
}
