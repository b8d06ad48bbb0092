package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// Exec runs cmd inside a running container and returns its output with the
// stdout/stderr stream framing removed.
func (a *Adapter) Exec(ctx context.Context, id string, cmd []string) (domain.ExecResult, error) {
	execResp, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, translate(err, "failed to create exec")
	}

	attachResp, err := a.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return domain.ExecResult{}, translate(err, "failed to attach exec")
	}
	defer attachResp.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return domain.ExecResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspectResp, err := a.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return domain.ExecResult{}, translate(err, "failed to inspect exec")
	}

	return domain.ExecResult{
		ExitCode: inspectResp.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// CopyToContainer extracts a tar archive into dstDir inside the container.
func (a *Adapter) CopyToContainer(ctx context.Context, id, dstDir string, archive io.Reader) error {
	err := a.cli.CopyToContainer(ctx, id, dstDir, archive, container.CopyToContainerOptions{
		AllowOverwriteDirWithFile: false,
	})
	if err != nil {
		return translate(err, "failed to copy into container")
	}
	return nil
}
