package reservation

import (
	"context"
	"sync"
)

// Memory is a process-local reservation set.
type Memory struct {
	mu    sync.Mutex
	ports map[int]struct{}
}

// NewMemory returns an empty reservation set.
func NewMemory() *Memory {
	return &Memory{ports: make(map[int]struct{})}
}

func (m *Memory) Reserve(_ context.Context, port int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.ports[port]; taken {
		return false, nil
	}
	m.ports[port] = struct{}{}
	return true, nil
}

func (m *Memory) Release(_ context.Context, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ports, port)
	return nil
}

func (m *Memory) Reserved(_ context.Context, start, end int) (map[int]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]struct{})
	for p := range m.ports {
		if p >= start && p <= end {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

// Len returns the number of outstanding reservations.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ports)
}
