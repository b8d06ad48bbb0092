package ports

import (
	"context"
	"io"
	"time"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// ContainerEngine defines the container engine operations the orchestrator relies on.
// Implementations translate a missing object into domain.ErrNotFound.
type ContainerEngine interface {
	ListContainers(ctx context.Context, all bool, filter domain.ListFilter) ([]domain.Container, error)
	InspectContainer(ctx context.Context, nameOrID string) (domain.ContainerDetails, error)
	CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, grace time.Duration) error
	RestartContainer(ctx context.Context, id string, grace time.Duration) error
	RemoveContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string, tail int) (string, error)

	EnsureImage(ctx context.Context, image string) error
	EnsureVolume(ctx context.Context, name string, labels map[string]string) error
	PruneDanglingImages(ctx context.Context) (domain.PruneReport, error)

	// Exec runs cmd inside a running container and returns its demultiplexed output.
	Exec(ctx context.Context, id string, cmd []string) (domain.ExecResult, error)
	// CopyToContainer extracts a tar archive into dstDir inside the container.
	CopyToContainer(ctx context.Context, id, dstDir string, archive io.Reader) error
}
