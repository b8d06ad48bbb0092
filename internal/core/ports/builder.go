package ports

import (
	"context"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// BuildRequest describes one workspace bundle.
type BuildRequest struct {
	// Name identifies the bundle directory, usually the container name.
	Name         string
	PrimarySkill string
	Skills       []string
	Config       domain.WorkerConfig
	DisplayName  string
	Personality  string
}

// WorkspaceBuilder assembles the instruction/config bundle mounted into a worker.
type WorkspaceBuilder interface {
	// Build renders the bundle and returns its absolute host path.
	Build(ctx context.Context, req BuildRequest) (string, error)
	// Remove deletes the bundle for name. Missing bundles are not an error.
	Remove(name string) error
}
