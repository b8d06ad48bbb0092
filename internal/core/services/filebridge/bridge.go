// Package filebridge reads and writes files inside running worker containers
// using only the engine's exec and archive primitives; workers run no
// management agent of their own.
package filebridge

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
)

// Paths inside a worker container.
const (
	ReferenceDir = "/home/agent/reference"
	MemoryDir    = "/home/agent/shared/memory"
)

// Memory document file names under MemoryDir.
const (
	CompanyProfileDoc   = "company-profile.md"
	ResearchFindingsDoc = "research-findings.md"
	PendingQuestionsDoc = "pending-questions.md"
	SuggestionsDoc      = "suggestions.md"
)

// Bridge is the remote filesystem bridge.
type Bridge struct {
	engine  ports.ContainerEngine
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a bridge. timeout bounds each engine call; zero disables it.
func New(engine ports.ContainerEngine, timeout time.Duration) *Bridge {
	return &Bridge{
		engine:  engine,
		timeout: timeout,
		log:     log.WithComponent("filebridge"),
	}
}

func (b *Bridge) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// ReadFile returns the trimmed text of an absolute path inside the worker's
// container, or nil when it cannot be read for any reason.
func (b *Bridge) ReadFile(ctx context.Context, key, filePath string) *string {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	res, err := b.engine.Exec(ctx, domain.ContainerName(key), []string{"cat", filePath})
	if err != nil {
		b.log.Debug().Err(err).Str("worker", key).Str("path", filePath).Msg("read failed")
		return nil
	}
	if res.ExitCode != 0 {
		return nil
	}
	text := strings.TrimSpace(scrubControl(res.Stdout))
	return &text
}

// ListFiles lists the worker's reference directory. Any failure yields an empty list.
func (b *Bridge) ListFiles(ctx context.Context, key string) []domain.FileEntry {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	entries := []domain.FileEntry{}
	res, err := b.engine.Exec(ctx, domain.ContainerName(key), []string{"ls", "-1A", ReferenceDir})
	if err != nil || res.ExitCode != 0 {
		return entries
	}
	for _, line := range strings.Split(scrubControl(res.Stdout), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		entries = append(entries, domain.FileEntry{Name: name})
	}
	return entries
}

// Upload stores content as a file in the worker's reference directory and
// returns the sanitized file name it was stored under.
func (b *Bridge) Upload(ctx context.Context, key, filename string, content io.Reader) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	archive, err := singleFileTar(name, data)
	if err != nil {
		return "", err
	}

	ctx, cancel := b.bound(ctx)
	defer cancel()

	containerName := domain.ContainerName(key)
	res, err := b.engine.Exec(ctx, containerName, []string{"mkdir", "-p", ReferenceDir})
	if err != nil {
		return "", fmt.Errorf("prepare reference dir: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("prepare reference dir: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if err := b.engine.CopyToContainer(ctx, containerName, ReferenceDir, archive); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	b.log.Info().Str("worker", key).Str("file", name).Int("bytes", len(data)).Msg("reference file uploaded")
	return name, nil
}

// Delete removes a file from the worker's reference directory. A missing file is success.
func (b *Bridge) Delete(ctx context.Context, key, filename string) error {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return err
	}

	ctx, cancel := b.bound(ctx)
	defer cancel()

	res, err := b.engine.Exec(ctx, domain.ContainerName(key), []string{"rm", "-f", path.Join(ReferenceDir, name)})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("delete %s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ReadMemory reads the worker's durable memory documents.
func (b *Bridge) ReadMemory(ctx context.Context, key string) domain.Memory {
	read := func(doc string) *string {
		return b.ReadFile(ctx, key, path.Join(MemoryDir, doc))
	}
	return domain.Memory{
		CompanyProfile:   read(CompanyProfileDoc),
		ResearchFindings: read(ResearchFindingsDoc),
		PendingQuestions: read(PendingQuestionsDoc),
		Suggestions:      read(SuggestionsDoc),
	}
}

// SanitizeFilename reduces a client-supplied name to its base name so it can
// never address anything outside the reference directory.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidArgument, name)
	}
	return base, nil
}

// scrubControl drops control bytes that are not ordinary whitespace.
func scrubControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func singleFileTar(name string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write archive header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &buf, nil
}
