package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// EnsureImage pulls ref unless it is already present locally.
func (a *Adapter) EnsureImage(ctx context.Context, ref string) error {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	reader, err := a.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// Consume the progress stream so the pull completes.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// EnsureVolume creates the named volume if it does not exist yet.
func (a *Adapter) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := a.cli.VolumeInspect(ctx, name)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect volume %s: %w", name, err)
	}
	if _, err := a.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels}); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	return nil
}

// PruneDanglingImages removes untagged, unreferenced images.
func (a *Adapter) PruneDanglingImages(ctx context.Context) (domain.PruneReport, error) {
	report, err := a.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return domain.PruneReport{}, fmt.Errorf("failed to prune images: %w", err)
	}
	return domain.PruneReport{
		ImagesDeleted:  len(report.ImagesDeleted),
		SpaceReclaimed: report.SpaceReclaimed,
	}, nil
}
