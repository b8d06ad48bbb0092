// Package config loads orchestrator settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/portalloc"
)

// PortRange is a closed interval of host ports.
type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Config holds runtime configuration for the orchestrator.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	Secret     string `yaml:"secret"`

	DockerHost  string `yaml:"dockerHost"`
	PublishIP   string `yaml:"publishIP"`
	WorkerImage string `yaml:"workerImage"`

	AnthropicAPIKey string `yaml:"anthropicApiKey"`
	OpenAIAPIKey    string `yaml:"openaiApiKey"`

	GatewayPorts PortRange `yaml:"gatewayPorts"`
	NoVNCPorts   PortRange `yaml:"novncPorts"`

	TemplateRoot    string `yaml:"templateRoot"`
	TemplateRepoURL string `yaml:"templateRepoUrl"`
	TemplateRepoRef string `yaml:"templateRepoRef"`
	WorkspaceRoot   string `yaml:"workspaceRoot"`

	ProbeHost        string        `yaml:"probeHost"`
	HealthInterval   time.Duration `yaml:"healthInterval"`
	CleanupInterval  time.Duration `yaml:"cleanupInterval"`
	Retention        time.Duration `yaml:"retention"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
	StopGrace        time.Duration `yaml:"stopGrace"`
	EngineTimeout    time.Duration `yaml:"engineTimeout"`
	SweepConcurrency int           `yaml:"sweepConcurrency"`

	MemoryLimitMB int64   `yaml:"memoryLimitMB"`
	CPULimit      float64 `yaml:"cpuLimit"`
	PidsLimit     int64   `yaml:"pidsLimit"`
	ShmSizeMB     int64   `yaml:"shmSizeMB"`

	RedisAddr      string        `yaml:"redisAddr"`
	RedisPassword  string        `yaml:"redisPassword"`
	RedisDB        int           `yaml:"redisDB"`
	ReservationTTL time.Duration `yaml:"reservationTTL"`

	MaxUploadBytes int `yaml:"maxUploadBytes"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DockerHost:       "unix:///var/run/docker.sock",
		WorkerImage:      "lighthouse/worker:latest",
		GatewayPorts:     PortRange{Start: 19000, End: 19999},
		NoVNCPorts:       PortRange{Start: 26000, End: 26999},
		TemplateRoot:     "/opt/lighthouse/templates",
		WorkspaceRoot:    "/var/lib/lighthouse/workspaces",
		ProbeHost:        "127.0.0.1",
		HealthInterval:   5 * time.Minute,
		CleanupInterval:  time.Hour,
		Retention:        7 * 24 * time.Hour,
		ProbeTimeout:     5 * time.Second,
		StopGrace:        10 * time.Second,
		EngineTimeout:    60 * time.Second,
		SweepConcurrency: 8,
		MemoryLimitMB:    2048,
		CPULimit:         1.0,
		PidsLimit:        512,
		ShmSizeMB:        512,
		ReservationTTL:   5 * time.Minute,
		MaxUploadBytes:   25 << 20,
		LogLevel:         "info",
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	e := &env{}
	cfg.ListenAddr = e.GetString("ORCHESTRATOR_ADDR", cfg.ListenAddr)
	cfg.Secret = e.GetString("ORCHESTRATOR_SECRET", cfg.Secret)
	cfg.DockerHost = e.GetString("DOCKER_HOST", cfg.DockerHost)
	cfg.PublishIP = e.GetString("PUBLISH_IP", cfg.PublishIP)
	cfg.WorkerImage = e.GetString("WORKER_IMAGE", cfg.WorkerImage)
	cfg.AnthropicAPIKey = e.GetString("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = e.GetString("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.GatewayPorts.Start = e.GetInt("GATEWAY_PORT_START", cfg.GatewayPorts.Start)
	cfg.GatewayPorts.End = e.GetInt("GATEWAY_PORT_END", cfg.GatewayPorts.End)
	cfg.NoVNCPorts.Start = e.GetInt("NOVNC_PORT_START", cfg.NoVNCPorts.Start)
	cfg.NoVNCPorts.End = e.GetInt("NOVNC_PORT_END", cfg.NoVNCPorts.End)
	cfg.TemplateRoot = e.GetString("TEMPLATE_ROOT", cfg.TemplateRoot)
	cfg.TemplateRepoURL = e.GetString("TEMPLATE_REPO_URL", cfg.TemplateRepoURL)
	cfg.TemplateRepoRef = e.GetString("TEMPLATE_REPO_REF", cfg.TemplateRepoRef)
	cfg.WorkspaceRoot = e.GetString("WORKSPACE_ROOT", cfg.WorkspaceRoot)
	cfg.ProbeHost = e.GetString("PROBE_HOST", cfg.ProbeHost)
	cfg.HealthInterval = e.GetDuration("HEALTH_INTERVAL", cfg.HealthInterval)
	cfg.CleanupInterval = e.GetDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.Retention = e.GetDuration("STOPPED_RETENTION", cfg.Retention)
	cfg.ProbeTimeout = e.GetDuration("PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.StopGrace = e.GetDuration("STOP_GRACE", cfg.StopGrace)
	cfg.EngineTimeout = e.GetDuration("ENGINE_TIMEOUT", cfg.EngineTimeout)
	cfg.SweepConcurrency = e.GetInt("SWEEP_CONCURRENCY", cfg.SweepConcurrency)
	cfg.MemoryLimitMB = e.GetInt64("WORKER_MEMORY_MB", cfg.MemoryLimitMB)
	cfg.CPULimit = e.GetFloat("WORKER_CPUS", cfg.CPULimit)
	cfg.PidsLimit = e.GetInt64("WORKER_PIDS_LIMIT", cfg.PidsLimit)
	cfg.ShmSizeMB = e.GetInt64("WORKER_SHM_MB", cfg.ShmSizeMB)
	cfg.RedisAddr = e.GetString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = e.GetString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = e.GetInt("REDIS_DB", cfg.RedisDB)
	cfg.ReservationTTL = e.GetDuration("RESERVATION_TTL", cfg.ReservationTTL)
	cfg.MaxUploadBytes = e.GetInt("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.LogLevel = e.GetString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = e.GetBool("LOG_JSON", cfg.LogJSON)

	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

// GatewayRange returns the gateway ports as an allocator range.
func (c Config) GatewayRange() portalloc.Range {
	return portalloc.Range{Name: "gateway", Start: c.GatewayPorts.Start, End: c.GatewayPorts.End}
}

// NoVNCRange returns the remote desktop ports as an allocator range.
func (c Config) NoVNCRange() portalloc.Range {
	return portalloc.Range{Name: "novnc", Start: c.NoVNCPorts.Start, End: c.NoVNCPorts.End}
}

// Resources returns the per-worker resource ceilings.
func (c Config) Resources() domain.Resources {
	return domain.Resources{
		MemoryBytes: c.MemoryLimitMB << 20,
		NanoCPUs:    int64(c.CPULimit * 1e9),
		PidsLimit:   c.PidsLimit,
		ShmBytes:    c.ShmSizeMB << 20,
	}
}

// Validate reports every problem that would keep the orchestrator from
// starting safely.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Secret) == "" {
		errs = append(errs, errors.New("shared secret is required (ORCHESTRATOR_SECRET)"))
	}
	if strings.TrimSpace(c.WorkerImage) == "" {
		errs = append(errs, errors.New("worker image is required (WORKER_IMAGE)"))
	}
	gw, vnc := c.GatewayRange(), c.NoVNCRange()
	for _, r := range []portalloc.Range{gw, vnc} {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if gw.Overlaps(vnc) {
		errs = append(errs, fmt.Errorf("port ranges overlap: %s and %s", gw, vnc))
	}
	if c.SweepConcurrency <= 0 {
		errs = append(errs, errors.New("sweep concurrency must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"health interval":  c.HealthInterval,
		"cleanup interval": c.CleanupInterval,
		"retention":        c.Retention,
		"probe timeout":    c.ProbeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}
