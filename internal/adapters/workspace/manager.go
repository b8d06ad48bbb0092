package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager owns per-worker bundle directories under a common root.
type Manager struct {
	root string
}

// NewManager ensures the bundle root exists and is accessible.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute bundle root.
func (m *Manager) Root() string {
	return m.root
}

// Prepare creates an empty directory for name, wiping any previous bundle.
func (m *Manager) Prepare(name string) (string, error) {
	dir, err := m.path(name)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("cleanup workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Remove deletes the bundle for name.
func (m *Manager) Remove(name string) error {
	dir, err := m.path(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (m *Manager) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("workspace identifier cannot be empty")
	}
	dir := filepath.Join(m.root, name)
	// Ensure we only touch directories within the configured root.
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("refusing workspace path outside root: %q", name)
	}
	return dir, nil
}
