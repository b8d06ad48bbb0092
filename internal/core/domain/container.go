package domain

import (
	"strings"
	"time"
)

// Labels stamped on every container the orchestrator creates.
const (
	LabelManaged = "lighthouse.managed"
	LabelWorker  = "lighthouse.worker"
	LabelTenant  = "lighthouse.tenant"
	LabelSkill   = "lighthouse.skill"
)

// Ports every worker image listens on inside its container.
const (
	GatewayContainerPort = 18789
	NoVNCContainerPort   = 6080
)

// Engine states as reported by the container engine.
const (
	StateCreated    = "created"
	StateRunning    = "running"
	StatePaused     = "paused"
	StateRestarting = "restarting"
	StateRemoving   = "removing"
	StateExited     = "exited"
	StateDead       = "dead"
)

// Container represents a container known to the engine (running or not).
type Container struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Status string            `json:"status"`
	State  string            `json:"state"` // running, exited, etc.
	Labels map[string]string `json:"labels,omitempty"`
	Ports  []PortMapping     `json:"ports,omitempty"`
}

// PortMapping is one published port of a container. PublicPort is zero when
// the private port is exposed but not bound on the host.
type PortMapping struct {
	PrivatePort int    `json:"privatePort"`
	PublicPort  int    `json:"publicPort"`
	Protocol    string `json:"protocol"`
}

// PublicPortFor returns the host port bound to the given container port.
func (c Container) PublicPortFor(private int) (int, bool) {
	for _, p := range c.Ports {
		if p.PrivatePort == private && p.PublicPort != 0 {
			return p.PublicPort, true
		}
	}
	return 0, false
}

// ContainerDetails is the inspected view of a single container.
type ContainerDetails struct {
	ID         string
	Name       string
	Image      string
	State      string
	Running    bool
	Labels     map[string]string
	Env        []string
	FinishedAt time.Time
	// HostPorts maps a container port to the host port configured for it.
	HostPorts map[int]int
}

// EnvValue returns the value of an environment variable set on the container.
func (d ContainerDetails) EnvValue(key string) string {
	prefix := key + "="
	for _, kv := range d.Env {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			return v
		}
	}
	return ""
}

// Mount describes a bind or volume mount inside a new container.
type Mount struct {
	Source   string
	Target   string
	Volume   bool
	ReadOnly bool
}

// Resources are the ceilings applied to a worker container.
type Resources struct {
	MemoryBytes int64
	NanoCPUs    int64
	PidsLimit   int64
	ShmBytes    int64
}

// ContainerSpec is everything the engine needs to create a worker container.
type ContainerSpec struct {
	Name      string
	Image     string
	Env       []string
	Labels    map[string]string
	Mounts    []Mount
	Ports     map[int]int // container port -> host port
	Resources Resources
	CapDrop   []string
	CapAdd    []string
	// SecurityOpt is passed through to the engine, e.g. no-new-privileges.
	SecurityOpt []string
}

// ListFilter narrows a container listing.
type ListFilter struct {
	Labels map[string]string
	States []string
}

// ExecResult is the demultiplexed outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// PruneReport summarises an image prune.
type PruneReport struct {
	ImagesDeleted  int
	SpaceReclaimed uint64
}
