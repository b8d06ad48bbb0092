// Package sweep runs periodic background passes such as health checks and
// cleanup. A pass never overlaps with itself.
package sweep

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// ErrBusy is returned by RunOnce while a pass is still in progress.
var ErrBusy = errors.New("sweep already in progress")

// Func is one pass.
type Func func(ctx context.Context) error

// Runner calls a Func every interval.
type Runner struct {
	name     string
	interval time.Duration
	fn       Func
	log      zerolog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner. It does nothing until Start.
func NewRunner(name string, interval time.Duration, fn Func) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      log.WithComponent("sweep").With().Str("sweep", name).Logger(),
	}
}

// Start begins the loop. The first pass runs after a random delay of up to a
// tenth of the interval so that replicas started together do not sweep in
// lockstep.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop(ctx)
	r.log.Info().Dur("interval", r.interval).Msg("sweep scheduled")
}

// Stop cancels the loop and waits for an in-flight pass to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	select {
	case <-time.After(jitter(r.interval / 10)):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce runs a single pass now, unless one is already running.
func (r *Runner) RunOnce(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		r.log.Warn().Msg("previous sweep still running, skipping")
		return ErrBusy
	}
	defer r.running.Store(false)

	start := time.Now()
	err := r.fn(ctx)
	metrics.SweepDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	return err
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
