package templates

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSourceRepo creates a local repository with one committed template.
func newSourceRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "default"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default", "INSTRUCTIONS.md"), []byte("# {{NAME}}\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("default/INSTRUCTIONS.md")
	require.NoError(t, err)
	hash, err := wt.Commit("seed templates", &git.CommitOptions{
		Author: &object.Signature{Name: "ops", Email: "ops@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestSync_ClonesThenReusesClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available for the file transport")
	}
	src, commit := newSourceRepo(t)
	dst := filepath.Join(t.TempDir(), "templates")
	s := NewSyncer(src, "", dst)

	got, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, commit, got)

	data, err := os.ReadFile(filepath.Join(dst, "default", "INSTRUCTIONS.md"))
	require.NoError(t, err)
	assert.Equal(t, "# {{NAME}}\n", string(data))

	got, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, commit, got, "second sync is a no-op pull")
}

func TestSync_EmptyURL(t *testing.T) {
	_, err := NewSyncer("", "", t.TempDir()).Sync(context.Background())
	assert.Error(t, err)
}
