package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-orchestrator/internal/adapters/reservation"
	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports/portstest"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/lifecycle"
	"github.com/melih/lighthouse-orchestrator/internal/core/services/portalloc"
)

func gatewayServer(t *testing.T, status int) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func managed(name, state string, gatewayHostPort int) portstest.Container {
	c := portstest.Container{
		Name:   name,
		State:  state,
		Labels: map[string]string{domain.LabelManaged: "true"},
		Ports:  map[int]int{},
	}
	if gatewayHostPort != 0 {
		c.Ports[domain.GatewayContainerPort] = gatewayHostPort
	}
	return c
}

func newMonitor(engine *portstest.Engine) *Monitor {
	return New(engine, Config{ProbeHost: "127.0.0.1", ProbeTimeout: time.Second, Concurrency: 2})
}

func TestSweep_HealthyGatewayIsLeftAlone(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(managed("worker-ok", domain.StateRunning, gatewayServer(t, http.StatusOK)))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Healthy: 1}, res)
	assert.NotContains(t, engine.Calls(), "restart worker-ok")
}

func TestSweep_UnhealthyGatewayIsRestarted(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(managed("worker-sick", domain.StateRunning, gatewayServer(t, http.StatusServiceUnavailable)))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restarted)
	assert.Contains(t, engine.Calls(), "restart worker-sick")
}

func TestSweep_UnreachableGatewayIsRestarted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	engine := portstest.NewEngine()
	engine.Add(managed("worker-dead", domain.StateRunning, port))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restarted)
}

func TestSweep_ExitedIsNeverRestarted(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(managed("worker-off", domain.StateExited, 20000))
	engine.Add(managed("worker-new", domain.StateCreated, 0))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 2, Stopped: 1, Skipped: 1}, res)
	for _, call := range engine.Calls() {
		assert.NotContains(t, call, "restart")
	}
}

func TestSweep_RunningWithoutMappingIsHealthy(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(managed("worker-bare", domain.StateRunning, 0))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Healthy: 1}, res)
}

func TestSweep_IgnoresUnmanagedContainers(t *testing.T) {
	engine := portstest.NewEngine()
	engine.Add(portstest.Container{Name: "postgres", State: domain.StateExited})

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestSweep_RestartFailureDoesNotStopSweep(t *testing.T) {
	engine := portstest.NewEngine()
	engine.RestartErr = errors.New("engine busy")
	engine.Add(managed("worker-a", domain.StateRunning, gatewayServer(t, http.StatusInternalServerError)))
	engine.Add(managed("worker-b", domain.StateRunning, gatewayServer(t, http.StatusOK)))

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 2, Healthy: 1, RestartFailed: 1}, res)
}

func TestSweep_ListFailure(t *testing.T) {
	engine := portstest.NewEngine()
	engine.ListErr = errors.New("daemon down")

	_, err := newMonitor(engine).Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweep_ChecksGatewayPublishedByProvision(t *testing.T) {
	engine := portstest.NewEngine()
	port := gatewayServer(t, http.StatusOK)
	workers := lifecycle.New(engine, &portstest.Builder{}, portalloc.New(engine, reservation.NewMemory()), lifecycle.Config{
		Image:        "worker:latest",
		GatewayRange: portalloc.Range{Name: "gateway", Start: port, End: port},
		NoVNCRange:   portalloc.Range{Name: "novnc", Start: 21000, End: 21000},
	})
	info, err := workers.Provision(context.Background(), domain.ProvisionRequest{
		Identity: domain.WorkerIdentity{EmployeeID: "E1"},
	})
	require.NoError(t, err)
	require.Equal(t, port, info.GatewayPort)

	res, err := newMonitor(engine).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Healthy: 1}, res)
	assert.NotContains(t, engine.Calls(), "restart worker-E1")
}
