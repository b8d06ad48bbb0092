// Package lifecycle provisions, inspects, restarts, stops and removes worker
// containers. The engine's own record is the only state; callers mirror the
// returned status into their store.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/portalloc"
	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// Fixed paths inside every worker container.
const (
	WorkspaceMountPath = "/home/agent/workspace"
	SharedMountPath    = "/home/agent/shared"
)

// Environment variables set on worker containers.
const (
	EnvGatewayToken  = "GATEWAY_TOKEN"
	EnvAssistantName = "ASSISTANT_NAME"
	EnvSkill         = "WORKER_SKILL"
	EnvSkills        = "WORKER_SKILLS"
	EnvTenantID      = "TENANT_ID"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// capSandbox is the one capability the in-container browser sandbox needs.
const capSandbox = "SYS_ADMIN"

// Config holds the worker container template.
type Config struct {
	Image           string
	GatewayRange    portalloc.Range
	NoVNCRange      portalloc.Range
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Resources       domain.Resources
	StopGrace       time.Duration
	EngineTimeout   time.Duration
}

// Manager is the lifecycle manager.
type Manager struct {
	engine  ports.ContainerEngine
	builder ports.WorkspaceBuilder
	alloc   *portalloc.Allocator
	cfg     Config
	log     zerolog.Logger

	newToken func() string
}

// New creates a lifecycle manager.
func New(engine ports.ContainerEngine, builder ports.WorkspaceBuilder, alloc *portalloc.Allocator, cfg Config) *Manager {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	return &Manager{
		engine:   engine,
		builder:  builder,
		alloc:    alloc,
		cfg:      cfg,
		log:      log.WithComponent("lifecycle"),
		newToken: uuid.NewString,
	}
}

// bound applies the engine timeout to a single engine call.
func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.EngineTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.EngineTimeout)
}

func (m *Manager) inspect(ctx context.Context, name string) (domain.ContainerDetails, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	return m.engine.InspectContainer(ctx, name)
}

// Provision creates the worker's container, or returns the connection info of
// the one already running.
func (m *Manager) Provision(ctx context.Context, req domain.ProvisionRequest) (domain.ConnectionInfo, error) {
	key, err := req.Identity.Key()
	if err != nil {
		return domain.ConnectionInfo{}, err
	}
	started := time.Now()
	name := domain.ContainerName(key)
	logger := log.WithWorker("lifecycle", key, name)

	info, created, err := m.provision(ctx, key, name, req, logger)
	switch {
	case err != nil:
		metrics.ProvisionsTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("provision failed")
	case created:
		metrics.ProvisionsTotal.WithLabelValues("created").Inc()
		metrics.ProvisionDuration.Observe(time.Since(started).Seconds())
		logger.Info().
			Int("gateway_port", info.GatewayPort).
			Int("novnc_port", info.NoVNCPort).
			Dur("duration", time.Since(started)).
			Msg("worker provisioned")
	default:
		metrics.ProvisionsTotal.WithLabelValues("existing").Inc()
		logger.Debug().Msg("worker already running")
	}
	return info, err
}

func (m *Manager) provision(ctx context.Context, key, name string, req domain.ProvisionRequest, logger zerolog.Logger) (domain.ConnectionInfo, bool, error) {
	existing, err := m.inspect(ctx, name)
	switch {
	case err == nil && existing.Running:
		return connectionInfo(existing), false, nil
	case err == nil:
		logger.Info().Str("state", existing.State).Msg("removing stale container")
		if err := m.removeContainer(ctx, name); err != nil {
			return domain.ConnectionInfo{}, false, provisionFailed("remove stale container", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ConnectionInfo{}, false, provisionFailed("inspect container", err)
	}

	// Reservations are released on every exit path: after start the engine
	// owns the bindings; after a failure nothing will use them.
	releaseCtx := context.WithoutCancel(ctx)
	gatewayPort, err := m.alloc.Allocate(ctx, m.cfg.GatewayRange)
	if err != nil {
		return domain.ConnectionInfo{}, false, err
	}
	defer m.alloc.Release(releaseCtx, gatewayPort)

	novncPort, err := m.alloc.Allocate(ctx, m.cfg.NoVNCRange)
	if err != nil {
		return domain.ConnectionInfo{}, false, err
	}
	defer m.alloc.Release(releaseCtx, novncPort)

	token := m.newToken()
	skills := req.SkillList()
	primary := ""
	if len(skills) > 0 {
		primary = skills[0]
	}

	bundle, err := m.builder.Build(ctx, ports.BuildRequest{
		Name:         name,
		PrimarySkill: primary,
		Skills:       skills,
		Config:       req.WorkerConfig,
		DisplayName:  req.DisplayName,
		Personality:  req.Personality,
	})
	if err != nil {
		return domain.ConnectionInfo{}, false, provisionFailed("build workspace", err)
	}

	labels := map[string]string{
		domain.LabelManaged: "true",
		domain.LabelWorker:  key,
		domain.LabelTenant:  req.TenantID,
		domain.LabelSkill:   primary,
	}
	volume := domain.VolumeName(req.TenantID, key)
	spec := domain.ContainerSpec{
		Name:   name,
		Image:  m.cfg.Image,
		Env:    m.env(token, key, primary, skills, req),
		Labels: labels,
		Mounts: []domain.Mount{
			{Source: bundle, Target: WorkspaceMountPath, ReadOnly: true},
			{Source: volume, Target: SharedMountPath, Volume: true},
		},
		Ports: map[int]int{
			domain.GatewayContainerPort: gatewayPort,
			domain.NoVNCContainerPort:   novncPort,
		},
		Resources:   m.cfg.Resources,
		CapDrop:     []string{"ALL"},
		CapAdd:      []string{capSandbox},
		SecurityOpt: []string{"no-new-privileges"},
	}

	steps := []struct {
		what string
		run  func(context.Context) error
	}{
		{"ensure shared volume", func(ctx context.Context) error {
			return m.engine.EnsureVolume(ctx, volume, map[string]string{
				domain.LabelManaged: "true",
				domain.LabelTenant:  req.TenantID,
			})
		}},
		{"ensure image", func(ctx context.Context) error { return m.engine.EnsureImage(ctx, m.cfg.Image) }},
		{"create container", func(ctx context.Context) error {
			id, err := m.engine.CreateContainer(ctx, spec)
			if err == nil {
				logger.Debug().Str("id", id).Msg("container created")
			}
			return err
		}},
		{"start container", func(ctx context.Context) error { return m.engine.StartContainer(ctx, name) }},
	}
	for _, step := range steps {
		stepCtx, cancel := m.bound(ctx)
		err := step.run(stepCtx)
		cancel()
		if err != nil {
			return domain.ConnectionInfo{}, false, provisionFailed(step.what, err)
		}
	}

	return domain.ConnectionInfo{
		Status:       domain.StatusRunning,
		GatewayPort:  gatewayPort,
		NoVNCPort:    novncPort,
		GatewayToken: token,
	}, true, nil
}

func (m *Manager) env(token, key, primary string, skills []string, req domain.ProvisionRequest) []string {
	env := []string{
		EnvGatewayToken + "=" + token,
		EnvAssistantName + "=" + req.DisplayName,
		EnvSkill + "=" + primary,
		EnvSkills + "=" + strings.Join(skills, ","),
		EnvTenantID + "=" + req.TenantID,
		"WORKER_ID=" + key,
	}
	if m.cfg.AnthropicAPIKey != "" {
		env = append(env, EnvAnthropicKey+"="+m.cfg.AnthropicAPIKey)
	}
	if m.cfg.OpenAIAPIKey != "" {
		env = append(env, EnvOpenAIKey+"="+m.cfg.OpenAIAPIKey)
	}
	return env
}

func provisionFailed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrProvisionFailed, what, err)
}

func connectionInfo(d domain.ContainerDetails) domain.ConnectionInfo {
	return domain.ConnectionInfo{
		Status:       domain.StatusFromState(d.State),
		GatewayPort:  d.HostPorts[domain.GatewayContainerPort],
		NoVNCPort:    d.HostPorts[domain.NoVNCContainerPort],
		GatewayToken: d.EnvValue(EnvGatewayToken),
	}
}

// Status inspects the worker's container. An absent container is reported,
// not returned as an error.
func (m *Manager) Status(ctx context.Context, key string) (domain.WorkerStatus, error) {
	if strings.TrimSpace(key) == "" {
		return domain.WorkerStatus{}, fmt.Errorf("%w: worker id is required", domain.ErrInvalidArgument)
	}
	d, err := m.inspect(ctx, domain.ContainerName(key))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WorkerStatus{Exists: false}, nil
	}
	if err != nil {
		return domain.WorkerStatus{}, err
	}
	return domain.WorkerStatus{
		Exists:      true,
		Status:      domain.StatusFromState(d.State),
		GatewayPort: d.HostPorts[domain.GatewayContainerPort],
		NoVNCPort:   d.HostPorts[domain.NoVNCContainerPort],
	}, nil
}

// Restart restarts the worker's container with the stop grace period.
func (m *Manager) Restart(ctx context.Context, id domain.WorkerIdentity) (string, error) {
	key, err := id.Key()
	if err != nil {
		return "", err
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()

	if err := m.engine.RestartContainer(ctx, domain.ContainerName(key), m.cfg.StopGrace); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("restart", "error").Inc()
		return "", err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("restart", "ok").Inc()
	m.log.Info().Str("worker", key).Msg("worker restarted")
	return domain.StatusRunning, nil
}

// Stop stops the worker's container. Already stopped or absent is success.
func (m *Manager) Stop(ctx context.Context, id domain.WorkerIdentity) (string, error) {
	key, err := id.Key()
	if err != nil {
		return "", err
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()

	err = m.engine.StopContainer(ctx, domain.ContainerName(key), m.cfg.StopGrace)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.LifecycleOpsTotal.WithLabelValues("stop", "error").Inc()
		return "", err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("stop", "ok").Inc()
	m.log.Info().Str("worker", key).Msg("worker stopped")
	return domain.StatusStopped, nil
}

// Remove force-removes the worker's container and its bundle. Absent is success.
func (m *Manager) Remove(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: worker id is required", domain.ErrInvalidArgument)
	}
	name := domain.ContainerName(key)
	if err := m.removeContainer(ctx, name); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("remove", "error").Inc()
		return err
	}
	if err := m.builder.Remove(name); err != nil {
		m.log.Warn().Err(err).Str("worker", key).Msg("failed to remove workspace bundle")
	}
	metrics.LifecycleOpsTotal.WithLabelValues("remove", "ok").Inc()
	m.log.Info().Str("worker", key).Msg("worker removed")
	return nil
}

func (m *Manager) removeContainer(ctx context.Context, name string) error {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	err := m.engine.RemoveContainer(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// List returns every managed worker container.
func (m *Manager) List(ctx context.Context) ([]domain.WorkerSummary, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	containers, err := m.engine.ListContainers(ctx, true, domain.ListFilter{
		Labels: map[string]string{domain.LabelManaged: "true"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkerSummary, 0, len(containers))
	for _, c := range containers {
		out = append(out, domain.WorkerSummary{
			ID:       c.ID,
			Name:     c.Name,
			WorkerID: c.Labels[domain.LabelWorker],
			TenantID: c.Labels[domain.LabelTenant],
			Image:    c.Image,
			State:    c.State,
			Status:   domain.StatusFromState(c.State),
		})
	}
	return out, nil
}

// Logs returns the last tail lines of the worker's container output.
func (m *Manager) Logs(ctx context.Context, key string, tail int) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: worker id is required", domain.ErrInvalidArgument)
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()
	return m.engine.GetContainerLogs(ctx, domain.ContainerName(key), tail)
}
