package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports/portstest"
)

const week = 7 * 24 * time.Hour

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newReaper(engine *portstest.Engine, bundles *portstest.Builder) *Reaper {
	r := New(engine, bundles, Config{Retention: week, Concurrency: 2})
	r.now = func() time.Time { return now }
	return r
}

func stopped(engine *portstest.Engine, name string, finishedAt time.Time) {
	engine.Add(portstest.Container{
		Name:       name,
		State:      domain.StateExited,
		Labels:     map[string]string{domain.LabelManaged: "true"},
		FinishedAt: finishedAt,
	})
}

func TestSweep_RetentionBoundary(t *testing.T) {
	engine := portstest.NewEngine()
	bundles := &portstest.Builder{}
	stopped(engine, "worker-old", now.Add(-week-time.Second))
	stopped(engine, "worker-fresh", now.Add(-week+time.Second))
	stopped(engine, "worker-exact", now.Add(-week))

	res, err := newReaper(engine, bundles).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Examined)
	assert.Equal(t, 1, res.Removed)
	_, ok := engine.Get("worker-old")
	assert.False(t, ok, "stopped longer than retention is removed")
	_, ok = engine.Get("worker-fresh")
	assert.True(t, ok)
	_, ok = engine.Get("worker-exact")
	assert.True(t, ok, "exactly at retention is kept")
	assert.Equal(t, []string{"worker-old"}, bundles.Removed())
}

func TestSweep_LeavesRunningAndUnmanagedAlone(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(portstest.Container{
		Name:   "worker-live",
		State:  domain.StateRunning,
		Labels: map[string]string{domain.LabelManaged: "true"},
	})
	engine.Add(portstest.Container{
		Name:       "someone-elses",
		State:      domain.StateExited,
		FinishedAt: now.Add(-30 * 24 * time.Hour),
	})

	res, err := newReaper(engine, &portstest.Builder{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Examined)
	assert.Equal(t, 2, engine.Count())
}

func TestSweep_DeadContainersAreEligible(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(portstest.Container{
		Name:       "worker-dead",
		State:      domain.StateDead,
		Labels:     map[string]string{domain.LabelManaged: "true"},
		FinishedAt: now.Add(-8 * 24 * time.Hour),
	})

	res, err := newReaper(engine, &portstest.Builder{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestSweep_ZeroFinishTimeIsKept(t *testing.T) {
	engine := portstest.NewEngine()
	stopped(engine, "worker-never-ran", time.Time{})

	res, err := newReaper(engine, &portstest.Builder{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
}

func TestSweep_PrunesImagesEveryPass(t *testing.T) {
	engine := portstest.NewEngine()
	r := newReaper(engine, &portstest.Builder{})

	_, err := r.Sweep(context.Background())
	require.NoError(t, err)
	_, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Prunes())
}

func TestSweep_ListFailure(t *testing.T) {
	engine := portstest.NewEngine()
	engine.ListErr = errors.New("daemon down")

	_, err := newReaper(engine, &portstest.Builder{}).Sweep(context.Background())
	assert.Error(t, err)
	assert.Zero(t, engine.Prunes())
}
