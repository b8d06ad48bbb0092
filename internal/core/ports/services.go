package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// WorkerService defines the worker lifecycle operations exposed over HTTP.
type WorkerService interface {
	Provision(ctx context.Context, req domain.ProvisionRequest) (domain.ConnectionInfo, error)
	Status(ctx context.Context, key string) (domain.WorkerStatus, error)
	Restart(ctx context.Context, id domain.WorkerIdentity) (string, error)
	Stop(ctx context.Context, id domain.WorkerIdentity) (string, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]domain.WorkerSummary, error)
	Logs(ctx context.Context, key string, tail int) (string, error)
}

// FileService defines access to files inside a running worker.
type FileService interface {
	ListFiles(ctx context.Context, key string) []domain.FileEntry
	Upload(ctx context.Context, key, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, key, filename string) error
	ReadMemory(ctx context.Context, key string) domain.Memory
}
