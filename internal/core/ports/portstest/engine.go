// Package portstest provides an in-memory ContainerEngine for tests.
package portstest

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// Container is the fake engine's record of one container.
type Container struct {
	ID         string
	Name       string
	Image      string
	State      string
	Labels     map[string]string
	Env        []string
	Ports      map[int]int
	FinishedAt time.Time
	Restarts   int
	Files      map[string]string
}

// Engine is a goroutine-safe in-memory container engine.
type Engine struct {
	mu         sync.Mutex
	containers map[string]*Container
	nextID     int
	volumes    map[string]map[string]string
	images     map[string]bool
	prunes     int
	calls      []string

	// Now stamps FinishedAt on stop. Defaults to time.Now.
	Now func() time.Time

	CreateErr  error
	StartErr   error
	RestartErr error
	ListErr    error
	ExecErr    error
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		containers: make(map[string]*Container),
		volumes:    make(map[string]map[string]string),
		images:     make(map[string]bool),
		Now:        time.Now,
	}
}

// Add seeds a container. A missing ID is generated.
func (e *Engine) Add(c Container) *Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.ID == "" {
		e.nextID++
		c.ID = fmt.Sprintf("c%04d", e.nextID)
	}
	if c.Files == nil {
		c.Files = make(map[string]string)
	}
	if c.Ports == nil {
		c.Ports = make(map[int]int)
	}
	cp := c
	e.containers[c.Name] = &cp
	return &cp
}

// Get returns a copy of the named container.
func (e *Engine) Get(name string) (Container, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return Container{}, false
	}
	return *c, true
}

// SetState forces the engine state of a container.
func (e *Engine) SetState(name, state string, finishedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[name]; ok {
		c.State = state
		c.FinishedAt = finishedAt
	}
}

// WriteFile places content at an absolute path inside a container.
func (e *Engine) WriteFile(name, p, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[name]; ok {
		c.Files[p] = content
	}
}

// Count returns the number of containers.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.containers)
}

// Calls returns the operations recorded so far, e.g. "restart worker-a".
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Prunes returns how many image prunes ran.
func (e *Engine) Prunes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prunes
}

// HasVolume reports whether a volume was created.
func (e *Engine) HasVolume(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.volumes[name]
	return ok
}

func (e *Engine) lookup(nameOrID string) (*Container, error) {
	if c, ok := e.containers[strings.TrimPrefix(nameOrID, "/")]; ok {
		return c, nil
	}
	for _, c := range e.containers {
		if c.ID == nameOrID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no such container: %s: %w", nameOrID, domain.ErrNotFound)
}

func (e *Engine) record(op, target string) {
	e.calls = append(e.calls, op+" "+target)
}

func (e *Engine) ListContainers(_ context.Context, all bool, filter domain.ListFilter) ([]domain.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ListErr != nil {
		return nil, e.ListErr
	}
	var out []domain.Container
	for _, c := range e.containers {
		if !all && c.State != domain.StateRunning {
			continue
		}
		if !matchLabels(c.Labels, filter.Labels) {
			continue
		}
		if len(filter.States) > 0 && !contains(filter.States, c.State) {
			continue
		}
		dc := domain.Container{
			ID:     c.ID,
			Name:   c.Name,
			Image:  c.Image,
			State:  c.State,
			Status: c.State,
			Labels: c.Labels,
		}
		// The engine reports published ports for running containers only.
		if c.State == domain.StateRunning {
			for priv, pub := range c.Ports {
				dc.Ports = append(dc.Ports, domain.PortMapping{PrivatePort: priv, PublicPort: pub, Protocol: "tcp"})
			}
		}
		out = append(out, dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) InspectContainer(_ context.Context, nameOrID string) (domain.ContainerDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.lookup(nameOrID)
	if err != nil {
		return domain.ContainerDetails{}, err
	}
	ports := make(map[int]int, len(c.Ports))
	for k, v := range c.Ports {
		ports[k] = v
	}
	return domain.ContainerDetails{
		ID:         c.ID,
		Name:       c.Name,
		Image:      c.Image,
		State:      c.State,
		Running:    c.State == domain.StateRunning,
		Labels:     c.Labels,
		Env:        append([]string(nil), c.Env...),
		FinishedAt: c.FinishedAt,
		HostPorts:  ports,
	}, nil
}

func (e *Engine) CreateContainer(_ context.Context, spec domain.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("create", spec.Name)
	if e.CreateErr != nil {
		return "", e.CreateErr
	}
	if _, exists := e.containers[spec.Name]; exists {
		return "", fmt.Errorf("conflict: container name %q already in use", spec.Name)
	}
	e.nextID++
	c := &Container{
		ID:     fmt.Sprintf("c%04d", e.nextID),
		Name:   spec.Name,
		Image:  spec.Image,
		State:  domain.StateCreated,
		Labels: spec.Labels,
		Env:    spec.Env,
		Ports:  make(map[int]int),
		Files:  make(map[string]string),
	}
	for k, v := range spec.Ports {
		c.Ports[k] = v
	}
	e.containers[spec.Name] = c
	return c.ID, nil
}

func (e *Engine) StartContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("start", id)
	if e.StartErr != nil {
		return e.StartErr
	}
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.State = domain.StateRunning
	return nil
}

func (e *Engine) StopContainer(_ context.Context, id string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop", id)
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	if c.State == domain.StateRunning {
		c.State = domain.StateExited
		c.FinishedAt = e.Now()
	}
	return nil
}

func (e *Engine) RestartContainer(_ context.Context, id string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("restart", id)
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	if e.RestartErr != nil {
		return e.RestartErr
	}
	c.State = domain.StateRunning
	c.Restarts++
	return nil
}

func (e *Engine) RemoveContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("remove", id)
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	delete(e.containers, c.Name)
	return nil
}

func (e *Engine) GetContainerLogs(_ context.Context, id string, _ int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	return "logs for " + c.Name + "\n", nil
}

func (e *Engine) EnsureImage(_ context.Context, image string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[image] = true
	return nil
}

func (e *Engine) EnsureVolume(_ context.Context, name string, labels map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.volumes[name]; !ok {
		e.record("volume", name)
		e.volumes[name] = labels
	}
	return nil
}

func (e *Engine) PruneDanglingImages(_ context.Context) (domain.PruneReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prunes++
	return domain.PruneReport{}, nil
}

// Exec understands the handful of commands the filesystem bridge issues:
// cat, ls -1A, rm -f and mkdir -p.
func (e *Engine) Exec(_ context.Context, id string, cmd []string) (domain.ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("exec", id+" "+strings.Join(cmd, " "))
	if e.ExecErr != nil {
		return domain.ExecResult{}, e.ExecErr
	}
	c, err := e.lookup(id)
	if err != nil {
		return domain.ExecResult{}, err
	}
	if c.State != domain.StateRunning {
		return domain.ExecResult{}, fmt.Errorf("container %s is not running", c.Name)
	}
	if len(cmd) < 2 {
		return domain.ExecResult{ExitCode: 127, Stderr: "unsupported"}, nil
	}
	target := cmd[len(cmd)-1]
	switch cmd[0] {
	case "cat":
		content, ok := c.Files[target]
		if !ok {
			return domain.ExecResult{ExitCode: 1, Stderr: "cat: " + target + ": No such file or directory"}, nil
		}
		return domain.ExecResult{Stdout: content}, nil
	case "ls":
		dir := strings.TrimSuffix(target, "/") + "/"
		var names []string
		for p := range c.Files {
			if rest, ok := strings.CutPrefix(p, dir); ok && rest != "" && !strings.Contains(rest, "/") {
				names = append(names, rest)
			}
		}
		if len(names) == 0 && !e.dirExists(c, dir) {
			return domain.ExecResult{ExitCode: 2, Stderr: "ls: cannot access " + target}, nil
		}
		sort.Strings(names)
		return domain.ExecResult{Stdout: strings.Join(names, "\n") + "\n"}, nil
	case "rm":
		delete(c.Files, target)
		return domain.ExecResult{}, nil
	case "mkdir":
		c.Files[strings.TrimSuffix(target, "/")+"/"] = ""
		return domain.ExecResult{}, nil
	}
	return domain.ExecResult{ExitCode: 127, Stderr: cmd[0] + ": not found"}, nil
}

func (e *Engine) dirExists(c *Container, dir string) bool {
	_, ok := c.Files[dir]
	return ok
}

func (e *Engine) CopyToContainer(_ context.Context, id, dstDir string, archive io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.Files[path.Join(dstDir, hdr.Name)] = string(data)
	}
}

func matchLabels(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
