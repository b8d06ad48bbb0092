package reservation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Reserve(ctx, 19000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Reserve(ctx, 19000)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation of the same port must be refused")

	reserved, err := m.Reserved(ctx, 19000, 19010)
	require.NoError(t, err)
	assert.Contains(t, reserved, 19000)

	require.NoError(t, m.Release(ctx, 19000))
	assert.Equal(t, 0, m.Len())
}

func TestMemory_ReservedFiltersRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, p := range []int{100, 150, 200} {
		_, err := m.Reserve(ctx, p)
		require.NoError(t, err)
	}

	reserved, err := m.Reserved(ctx, 120, 180)
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{150: {}}, reserved)
}

func TestMemory_ConcurrentReserveIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := m.Reserve(ctx, 7000)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
