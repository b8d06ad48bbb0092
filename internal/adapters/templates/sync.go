// Package templates keeps the template asset tree in step with its git
// repository.
package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/log"
)

// Syncer clones the template repository into a directory, or fast-forwards
// the existing clone.
type Syncer struct {
	url string
	ref string
	dir string
	log zerolog.Logger
}

// NewSyncer creates a syncer. ref is a branch name; empty follows the
// remote's default branch.
func NewSyncer(url, ref, dir string) *Syncer {
	return &Syncer{
		url: url,
		ref: ref,
		dir: dir,
		log: log.WithComponent("templates"),
	}
}

// Sync brings dir up to date and returns the checked-out commit hash.
func (s *Syncer) Sync(ctx context.Context) (string, error) {
	if s.url == "" {
		return "", errors.New("template repository url is empty")
	}

	repo, err := git.PlainOpen(s.dir)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo, err = s.clone(ctx)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("failed to open template repo: %w", err)
	default:
		if err := s.pull(ctx, repo); err != nil {
			return "", err
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve template HEAD: %w", err)
	}
	s.log.Info().Str("url", s.url).Str("commit", head.Hash().String()).Msg("templates synced")
	return head.Hash().String(), nil
}

func (s *Syncer) clone(ctx context.Context) (*git.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template parent dir: %w", err)
	}
	s.log.Info().Str("url", s.url).Str("dir", s.dir).Msg("cloning templates")

	opts := &git.CloneOptions{
		URL:          s.url,
		Depth:        1,
		SingleBranch: true,
	}
	if s.ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.ref)
	}
	repo, err := git.PlainCloneContext(ctx, s.dir, false, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone template repo: %w", err)
	}
	return repo, nil
}

func (s *Syncer) pull(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open template worktree: %w", err)
	}
	opts := &git.PullOptions{
		RemoteName:   git.DefaultRemoteName,
		SingleBranch: true,
		Force:        true,
	}
	if s.ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.ref)
	}
	err = wt.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		s.log.Debug().Msg("templates already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pull template repo: %w", err)
	}
	return nil
}
