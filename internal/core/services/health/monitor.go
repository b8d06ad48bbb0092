// Package health probes running worker gateways and restarts the ones that
// stop answering.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// Config controls a health sweep.
type Config struct {
	ProbeHost    string
	ProbeTimeout time.Duration
	StopGrace    time.Duration
	Concurrency  int
}

// Result tallies one sweep.
type Result struct {
	Checked       int `json:"checked"`
	Healthy       int `json:"healthy"`
	Restarted     int `json:"restarted"`
	RestartFailed int `json:"restartFailed"`
	Stopped       int `json:"stopped"`
	Skipped       int `json:"skipped"`
}

// Monitor is the health monitor.
type Monitor struct {
	engine ports.ContainerEngine
	client *http.Client
	cfg    Config
	log    zerolog.Logger
}

// New creates a monitor.
func New(engine ports.ContainerEngine, cfg Config) *Monitor {
	if cfg.ProbeHost == "" {
		cfg.ProbeHost = "127.0.0.1"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Monitor{
		engine: engine,
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:    cfg,
		log:    log.WithComponent("health"),
	}
}

type verdict string

const (
	verdictHealthy       verdict = "healthy"
	verdictRestarted     verdict = "restarted"
	verdictRestartFailed verdict = "restart_failed"
	verdictStopped       verdict = "stopped"
	verdictSkipped       verdict = "skipped"
)

// Sweep checks every managed container once. Exited containers are counted
// but never restarted; the lifecycle manager owns intentional stops.
func (m *Monitor) Sweep(ctx context.Context) (Result, error) {
	containers, err := m.engine.ListContainers(ctx, true, domain.ListFilter{
		Labels: map[string]string{domain.LabelManaged: "true"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("list managed containers: %w", err)
	}

	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, c := range containers {
		c := c
		g.Go(func() error {
			v := m.check(gctx, c)
			metrics.HealthChecksTotal.WithLabelValues(string(v)).Inc()

			mu.Lock()
			defer mu.Unlock()
			res.Checked++
			switch v {
			case verdictHealthy:
				res.Healthy++
			case verdictRestarted:
				res.Restarted++
			case verdictRestartFailed:
				res.RestartFailed++
			case verdictStopped:
				res.Stopped++
			default:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	m.log.Info().
		Int("checked", res.Checked).
		Int("healthy", res.Healthy).
		Int("restarted", res.Restarted).
		Int("stopped", res.Stopped).
		Msg("health sweep complete")
	return res, nil
}

// Run adapts Sweep to a sweep.Func.
func (m *Monitor) Run(ctx context.Context) error {
	_, err := m.Sweep(ctx)
	return err
}

func (m *Monitor) check(ctx context.Context, c domain.Container) verdict {
	switch c.State {
	case domain.StateRunning:
	case domain.StateExited:
		return verdictStopped
	default:
		return verdictSkipped
	}

	port, ok := c.PublicPortFor(domain.GatewayContainerPort)
	if !ok {
		return verdictHealthy
	}
	err := m.probe(ctx, port)
	if err == nil {
		return verdictHealthy
	}
	m.log.Warn().Err(err).Str("container", c.Name).Int("port", port).Msg("gateway unhealthy, restarting")

	if err := m.engine.RestartContainer(ctx, c.Name, m.cfg.StopGrace); err != nil {
		m.log.Error().Err(err).Str("container", c.Name).Msg("restart failed")
		return verdictRestartFailed
	}
	return verdictRestarted
}

func (m *Monitor) probe(ctx context.Context, port int) error {
	url := "http://" + net.JoinHostPort(m.cfg.ProbeHost, strconv.Itoa(port)) + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
