package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-orchestrator/internal/adapters/reservation"
	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports/portstest"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/portalloc"
)

type fixture struct {
	engine  *portstest.Engine
	builder *portstest.Builder
	store   *reservation.Memory
	mgr     *Manager
}

func newFixture(t *testing.T, gateway, novnc portalloc.Range) *fixture {
	t.Helper()
	engine := portstest.NewEngine()
	store := reservation.NewMemory()
	builder := &portstest.Builder{}
	mgr := New(engine, builder, portalloc.New(engine, store), Config{
		Image:           "worker:latest",
		GatewayRange:    gateway,
		NoVNCRange:      novnc,
		AnthropicAPIKey: "sk-ant",
		Resources:       domain.Resources{MemoryBytes: 2 << 30, PidsLimit: 512},
		StopGrace:       time.Second,
		EngineTimeout:   time.Second,
	})
	return &fixture{engine: engine, builder: builder, store: store, mgr: mgr}
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t,
		portalloc.Range{Name: "gateway", Start: 20000, End: 20099},
		portalloc.Range{Name: "novnc", Start: 21000, End: 21099},
	)
}

func e1Request() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		Identity:    domain.WorkerIdentity{EmployeeID: "E1"},
		TenantID:    "acme",
		DisplayName: "Ava",
		Skill:       "writer",
	}
}

func TestProvisionStopRemove_EndToEnd(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	info, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, info.Status)
	assert.Equal(t, 20000, info.GatewayPort)
	assert.Equal(t, 21000, info.NoVNCPort)
	assert.NotEqual(t, info.GatewayPort, info.NoVNCPort)
	assert.Len(t, info.GatewayToken, 36)
	assert.Zero(t, f.store.Len(), "reservations are released after start")

	status, err := f.mgr.Status(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, domain.StatusRunning, status.Status)
	assert.Equal(t, info.GatewayPort, status.GatewayPort)

	stopped, err := f.mgr.Stop(ctx, domain.WorkerIdentity{EmployeeID: "E1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stopped)

	status, err = f.mgr.Status(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, status.Status)

	require.NoError(t, f.mgr.Remove(ctx, "E1"))
	status, err = f.mgr.Status(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Equal(t, []string{"worker-E1"}, f.builder.Removed())
}

func TestProvision_ContainerSpec(t *testing.T) {
	f := defaultFixture(t)
	req := e1Request()
	req.WorkerConfig.Skills = []string{"researcher", "writer"}

	info, err := f.mgr.Provision(context.Background(), req)
	require.NoError(t, err)

	c, ok := f.engine.Get("worker-E1")
	require.True(t, ok)
	assert.Equal(t, "worker:latest", c.Image)
	assert.Equal(t, map[string]string{
		domain.LabelManaged: "true",
		domain.LabelWorker:  "E1",
		domain.LabelTenant:  "acme",
		domain.LabelSkill:   "writer",
	}, c.Labels)
	assert.Equal(t, map[int]int{domain.GatewayContainerPort: info.GatewayPort, domain.NoVNCContainerPort: info.NoVNCPort}, c.Ports)
	assert.Contains(t, c.Env, "GATEWAY_TOKEN="+info.GatewayToken)
	assert.Contains(t, c.Env, "WORKER_SKILLS=writer,researcher")
	assert.Contains(t, c.Env, "ANTHROPIC_API_KEY=sk-ant")
	assert.NotContains(t, c.Env, "OPENAI_API_KEY=")
	assert.True(t, f.engine.HasVolume("tenant-acme-shared"))

	require.Len(t, f.builder.Builds(), 1)
	assert.Equal(t, "writer", f.builder.Builds()[0].PrimarySkill)
	assert.Equal(t, []string{"writer", "researcher"}, f.builder.Builds()[0].Skills)
}

func TestProvision_IdempotentWhenRunning(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)
	second, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.engine.Count())
	assert.Len(t, f.builder.Builds(), 1, "a running worker is not rebuilt")
}

func TestProvision_ReplacesStoppedContainer(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)
	_, err = f.mgr.Stop(ctx, domain.WorkerIdentity{EmployeeID: "E1"})
	require.NoError(t, err)

	second, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, second.Status)
	assert.NotEqual(t, first.GatewayToken, second.GatewayToken)
	assert.Equal(t, 1, f.engine.Count())
	assert.Contains(t, f.engine.Calls(), "remove worker-E1")
}

func TestProvision_DistinctWorkersGetDistinctPorts(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	seen := map[int]bool{}
	for _, id := range []string{"a", "b", "c"} {
		info, err := f.mgr.Provision(ctx, domain.ProvisionRequest{Identity: domain.WorkerIdentity{EmployeeID: id}})
		require.NoError(t, err)
		for _, p := range []int{info.GatewayPort, info.NoVNCPort} {
			assert.False(t, seen[p], "port %d handed out twice", p)
			seen[p] = true
		}
	}
}

func TestProvision_ConcurrentWorkersGetDistinctPorts(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	const n = 20
	infos := make([]domain.ConnectionInfo, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			infos[i], errs[i] = f.mgr.Provision(ctx, domain.ProvisionRequest{
				Identity: domain.WorkerIdentity{EmployeeID: fmt.Sprintf("emp-%02d", i)},
			})
		}(i)
	}
	wg.Wait()

	seen := map[int]string{}
	for i, info := range infos {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.StatusRunning, info.Status)
		assert.GreaterOrEqual(t, info.GatewayPort, 20000)
		assert.LessOrEqual(t, info.GatewayPort, 20099)
		assert.GreaterOrEqual(t, info.NoVNCPort, 21000)
		assert.LessOrEqual(t, info.NoVNCPort, 21099)
		for _, p := range []int{info.GatewayPort, info.NoVNCPort} {
			owner, dup := seen[p]
			assert.False(t, dup, "port %d handed to emp-%02d and %s", p, i, owner)
			seen[p] = fmt.Sprintf("emp-%02d", i)
		}
	}
	assert.Len(t, seen, 2*n)
	assert.Equal(t, 0, f.store.Len(), "reservations are released once containers hold the ports")
}

func TestProvision_UserIDFallback(t *testing.T) {
	f := defaultFixture(t)
	_, err := f.mgr.Provision(context.Background(), domain.ProvisionRequest{Identity: domain.WorkerIdentity{UserID: "u-7"}})
	require.NoError(t, err)
	_, ok := f.engine.Get("worker-u-7")
	assert.True(t, ok)
}

func TestProvision_MissingIdentity(t *testing.T) {
	f := defaultFixture(t)
	_, err := f.mgr.Provision(context.Background(), domain.ProvisionRequest{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Zero(t, f.engine.Count())
}

func TestProvision_RangeExhausted(t *testing.T) {
	f := newFixture(t,
		portalloc.Range{Name: "gateway", Start: 20000, End: 20000},
		portalloc.Range{Name: "novnc", Start: 21000, End: 21099},
	)
	ctx := context.Background()

	_, err := f.mgr.Provision(ctx, domain.ProvisionRequest{Identity: domain.WorkerIdentity{EmployeeID: "a"}})
	require.NoError(t, err)

	_, err = f.mgr.Provision(ctx, domain.ProvisionRequest{Identity: domain.WorkerIdentity{EmployeeID: "b"}})
	assert.True(t, errors.Is(err, domain.ErrResourceExhausted))
	assert.Zero(t, f.store.Len(), "novnc was never reserved and gateway found nothing")
}

func TestProvision_EngineFailureReleasesReservations(t *testing.T) {
	f := defaultFixture(t)
	f.engine.StartErr = errors.New("port is already allocated")

	_, err := f.mgr.Provision(context.Background(), e1Request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProvisionFailed))
	assert.Contains(t, err.Error(), "port is already allocated")
	assert.Zero(t, f.store.Len())
}

func TestProvision_BuildFailure(t *testing.T) {
	f := defaultFixture(t)
	f.builder.BuildErr = errors.New("disk full")

	_, err := f.mgr.Provision(context.Background(), e1Request())
	assert.True(t, errors.Is(err, domain.ErrProvisionFailed))
	assert.Zero(t, f.engine.Count())
	assert.Zero(t, f.store.Len())
}

func TestRestart(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)

	status, err := f.mgr.Restart(ctx, domain.WorkerIdentity{EmployeeID: "E1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, status)
	c, _ := f.engine.Get("worker-E1")
	assert.Equal(t, 1, c.Restarts)

	_, err = f.mgr.Restart(ctx, domain.WorkerIdentity{EmployeeID: "ghost"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStopAndRemove_AbsentIsSuccess(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()

	status, err := f.mgr.Stop(ctx, domain.WorkerIdentity{EmployeeID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, status)

	require.NoError(t, f.mgr.Remove(ctx, "ghost"))
	require.NoError(t, f.mgr.Remove(ctx, "ghost"))
}

func TestStatus_RequiresKey(t *testing.T) {
	f := defaultFixture(t)
	_, err := f.mgr.Status(context.Background(), " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestListAndLogs(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	f.engine.Add(portstest.Container{Name: "unrelated", State: domain.StateRunning})
	_, err := f.mgr.Provision(ctx, e1Request())
	require.NoError(t, err)

	list, err := f.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "worker-E1", list[0].Name)
	assert.Equal(t, "E1", list[0].WorkerID)
	assert.Equal(t, "acme", list[0].TenantID)
	assert.Equal(t, domain.StatusRunning, list[0].Status)

	logs, err := f.mgr.Logs(ctx, "E1", 50)
	require.NoError(t, err)
	assert.Contains(t, logs, "worker-E1")

	_, err = f.mgr.Logs(ctx, "ghost", 50)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
