package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
)

// Adapter implements ports.ContainerEngine using Docker SDK
type Adapter struct {
	cli *client.Client
	// publishIP is the host address ports are published on; empty means all interfaces.
	publishIP string
}

var _ ports.ContainerEngine = (*Adapter)(nil)

// NewAdapter creates a new Docker adapter instance. An empty host uses the
// environment defaults (DOCKER_HOST etc.).
func NewAdapter(host, publishIP string) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, publishIP: publishIP}, nil
}

// Ping validates connectivity to the Docker daemon.
func (a *Adapter) Ping(ctx context.Context) error {
	ping, err := a.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (a *Adapter) Close() error {
	if a.cli == nil {
		return nil
	}
	return a.cli.Close()
}

// translate maps engine not-found errors onto domain.ErrNotFound.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s: %w: %v", msg, domain.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// ListContainers returns containers matching filter; all includes stopped ones.
func (a *Adapter) ListContainers(ctx context.Context, all bool, filter domain.ListFilter) ([]domain.Container, error) {
	args := filters.NewArgs()
	for k, v := range filter.Labels {
		args.Add("label", k+"="+v)
	}
	for _, s := range filter.States {
		args.Add("status", s)
	}
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: all, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		result = append(result, toDomainContainer(c))
	}
	return result, nil
}

func toDomainContainer(c types.Container) domain.Container {
	// Use the first name if available, remove slash
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	out := domain.Container{
		ID:     c.ID,
		Name:   name,
		Image:  c.Image,
		Status: c.Status,
		State:  c.State,
		Labels: c.Labels,
	}
	for _, p := range c.Ports {
		out.Ports = append(out.Ports, domain.PortMapping{
			PrivatePort: int(p.PrivatePort),
			PublicPort:  int(p.PublicPort),
			Protocol:    p.Type,
		})
	}
	return out
}

// InspectContainer returns the inspected view of a container.
func (a *Adapter) InspectContainer(ctx context.Context, nameOrID string) (domain.ContainerDetails, error) {
	info, err := a.cli.ContainerInspect(ctx, nameOrID)
	if err != nil {
		return domain.ContainerDetails{}, translate(err, "failed to inspect container %s", nameOrID)
	}
	return toDomainDetails(info), nil
}

func toDomainDetails(info types.ContainerJSON) domain.ContainerDetails {
	d := domain.ContainerDetails{HostPorts: map[int]int{}}
	if info.ContainerJSONBase != nil {
		d.ID = info.ID
		d.Name = strings.TrimPrefix(info.Name, "/")
		if info.State != nil {
			d.State = info.State.Status
			d.Running = info.State.Running
			d.FinishedAt = parseEngineTime(info.State.FinishedAt)
		}
		if info.HostConfig != nil {
			d.HostPorts = hostPorts(info.HostConfig.PortBindings)
		}
	}
	if info.Config != nil {
		d.Image = info.Config.Image
		d.Labels = info.Config.Labels
		d.Env = info.Config.Env
	}
	return d
}

// hostPorts flattens configured bindings to container port -> first host port.
func hostPorts(bindings nat.PortMap) map[int]int {
	out := make(map[int]int, len(bindings))
	for port, bs := range bindings {
		for _, b := range bs {
			hp, err := strconv.Atoi(b.HostPort)
			if err != nil || hp == 0 {
				continue
			}
			out[port.Int()] = hp
			break
		}
	}
	return out
}

// parseEngineTime parses the engine's RFC3339 timestamps; the engine reports
// "0001-01-01T00:00:00Z" for events that never happened.
func parseEngineTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.Year() <= 1 {
		return time.Time{}
	}
	return t
}

// CreateContainer creates (but does not start) a container from spec.
func (a *Adapter) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	exposed, bindings := portMaps(spec.Ports, a.publishIP)

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}

	var pids *int64
	if spec.Resources.PidsLimit > 0 {
		limit := spec.Resources.PidsLimit
		pids = &limit
	}
	hostCfg := &container.HostConfig{
		Mounts:       toMounts(spec.Mounts),
		PortBindings: bindings,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
		Resources: container.Resources{
			Memory:    spec.Resources.MemoryBytes,
			NanoCPUs:  spec.Resources.NanoCPUs,
			PidsLimit: pids,
		},
		ShmSize:     spec.Resources.ShmBytes,
		CapDrop:     strslice.StrSlice(spec.CapDrop),
		CapAdd:      strslice.StrSlice(spec.CapAdd),
		SecurityOpt: spec.SecurityOpt,
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

func portMaps(ports map[int]int, hostIP string) (nat.PortSet, nat.PortMap) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range ports {
		p := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: hostIP, HostPort: strconv.Itoa(hostPort)}}
	}
	return exposed, bindings
}

func toMounts(in []domain.Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(in))
	for _, m := range in {
		typ := mount.TypeBind
		if m.Volume {
			typ = mount.TypeVolume
		}
		out = append(out, mount.Mount{
			Type:     typ,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return out
}

// StartContainer starts a created container.
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return translate(err, "failed to start container")
	}
	return nil
}

// StopContainer stops a running container, waiting up to grace before killing it.
func (a *Adapter) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return translate(err, "failed to stop container")
	}
	return nil
}

// RestartContainer restarts a container with the same grace period as stop.
func (a *Adapter) RestartContainer(ctx context.Context, id string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	if err := a.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return translate(err, "failed to restart container")
	}
	return nil
}

// RemoveContainer force-removes a container regardless of state.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return translate(err, "failed to remove container")
	}
	return nil
}

// GetContainerLogs returns the demultiplexed tail of a container's output.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	}
	if tail > 0 {
		options.Tail = strconv.Itoa(tail)
	}
	reader, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		return "", translate(err, "failed to read container logs")
	}
	defer reader.Close()

	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, reader); err != nil {
		return "", fmt.Errorf("failed to demultiplex logs: %w", err)
	}
	return out.String(), nil
}
