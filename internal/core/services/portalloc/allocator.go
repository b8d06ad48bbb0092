// Package portalloc hands out host ports for worker containers.
//
// A port is in use when any container known to the engine binds it (running
// or not) or when it is held in the reservation store. Reservations bridge the
// gap between allocation and the engine taking ownership of the binding at
// container start.
package portalloc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// Range is a closed interval of host ports.
type Range struct {
	Name  string
	Start int
	End   int
}

// Validate rejects empty or out-of-bounds ranges.
func (r Range) Validate() error {
	if r.Start <= 0 || r.End > 65535 {
		return fmt.Errorf("%s port range %d-%d is outside 1-65535", r.Name, r.Start, r.End)
	}
	if r.End < r.Start {
		return fmt.Errorf("%s port range %d-%d is empty", r.Name, r.Start, r.End)
	}
	return nil
}

// Overlaps reports whether two ranges share a port.
func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%s %d-%d", r.Name, r.Start, r.End)
}

// Allocator picks the lowest free port in a range.
type Allocator struct {
	engine ports.ContainerEngine
	store  ports.ReservationStore
	log    zerolog.Logger

	// mu serializes scan-and-reserve within this process; the store
	// arbitrates between processes.
	mu sync.Mutex
}

// New creates an allocator over the given engine and reservation store.
func New(engine ports.ContainerEngine, store ports.ReservationStore) *Allocator {
	return &Allocator{
		engine: engine,
		store:  store,
		log:    log.WithComponent("portalloc"),
	}
}

// Allocate reserves and returns the lowest free port in r. The caller owns the
// reservation and must Release it once the engine holds the binding or the
// provision failed.
func (a *Allocator) Allocate(ctx context.Context, r Range) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bound, err := a.boundPorts(ctx)
	if err != nil {
		metrics.PortAllocationsTotal.WithLabelValues(r.Name, "error").Inc()
		return 0, err
	}
	reserved, err := a.store.Reserved(ctx, r.Start, r.End)
	if err != nil {
		metrics.PortAllocationsTotal.WithLabelValues(r.Name, "error").Inc()
		return 0, fmt.Errorf("read port reservations: %w", err)
	}

	for port := r.Start; port <= r.End; port++ {
		if _, used := bound[port]; used {
			continue
		}
		if _, held := reserved[port]; held {
			continue
		}
		ok, err := a.store.Reserve(ctx, port)
		if err != nil {
			metrics.PortAllocationsTotal.WithLabelValues(r.Name, "error").Inc()
			return 0, fmt.Errorf("reserve port %d: %w", port, err)
		}
		if !ok {
			// Another instance claimed it between the read and the write.
			continue
		}
		metrics.PortAllocationsTotal.WithLabelValues(r.Name, "ok").Inc()
		a.log.Debug().Str("range", r.Name).Int("port", port).Msg("port reserved")
		return port, nil
	}

	metrics.PortAllocationsTotal.WithLabelValues(r.Name, "exhausted").Inc()
	return 0, fmt.Errorf("%w: no free port in %s range %d-%d", domain.ErrResourceExhausted, r.Name, r.Start, r.End)
}

// Release drops reservations. Failures are logged; a leaked reservation only
// hides a port until the store forgets it.
func (a *Allocator) Release(ctx context.Context, portsToRelease ...int) {
	for _, p := range portsToRelease {
		if p == 0 {
			continue
		}
		if err := a.store.Release(ctx, p); err != nil {
			a.log.Warn().Err(err).Int("port", p).Msg("failed to release port reservation")
		}
	}
}

// boundPorts collects host ports bound by every container the engine knows.
// Stopped containers do not report published ports in a listing, so their
// configured bindings are read from an inspect.
func (a *Allocator) boundPorts(ctx context.Context) (map[int]struct{}, error) {
	containers, err := a.engine.ListContainers(ctx, true, domain.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list containers for port scan: %w", err)
	}
	bound := make(map[int]struct{})
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				bound[p.PublicPort] = struct{}{}
			}
		}
		if c.State == domain.StateRunning {
			continue
		}
		details, err := a.engine.InspectContainer(ctx, c.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("inspect %s for port scan: %w", c.Name, err)
		}
		for _, hp := range details.HostPorts {
			if hp != 0 {
				bound[hp] = struct{}{}
			}
		}
	}
	return bound, nil
}
