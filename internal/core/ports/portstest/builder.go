package portstest

import (
	"context"
	"sync"

	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
)

// Builder is a WorkspaceBuilder that records requests instead of writing files.
type Builder struct {
	mu      sync.Mutex
	builds  []ports.BuildRequest
	removed []string

	BuildErr error
}

func (b *Builder) Build(_ context.Context, req ports.BuildRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BuildErr != nil {
		return "", b.BuildErr
	}
	b.builds = append(b.builds, req)
	return "/bundles/" + req.Name, nil
}

func (b *Builder) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, name)
	return nil
}

// Builds returns the recorded build requests.
func (b *Builder) Builds() []ports.BuildRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.BuildRequest(nil), b.builds...)
}

// Removed returns the bundle names removed so far.
func (b *Builder) Removed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}
