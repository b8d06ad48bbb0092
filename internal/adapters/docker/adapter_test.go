package docker

import (
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

func TestToDomainContainer(t *testing.T) {
	c := types.Container{
		ID:     "abc123",
		Names:  []string{"/worker-e1"},
		Image:  "worker:latest",
		State:  "running",
		Status: "Up 2 minutes",
		Labels: map[string]string{domain.LabelManaged: "true"},
		Ports: []types.Port{
			{PrivatePort: 18789, PublicPort: 20000, Type: "tcp"},
			{PrivatePort: 6080, Type: "tcp"},
		},
	}

	got := toDomainContainer(c)
	assert.Equal(t, "worker-e1", got.Name)
	assert.Equal(t, "running", got.State)

	port, ok := got.PublicPortFor(18789)
	assert.True(t, ok)
	assert.Equal(t, 20000, port)

	_, ok = got.PublicPortFor(6080)
	assert.False(t, ok, "unbound private port must not resolve")
}

func TestToDomainDetails(t *testing.T) {
	info := types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:   "abc123",
			Name: "/worker-e1",
			State: &types.ContainerState{
				Status:     "exited",
				Running:    false,
				FinishedAt: "2026-01-02T03:04:05.123456789Z",
			},
			HostConfig: &container.HostConfig{
				PortBindings: nat.PortMap{
					"18789/tcp": []nat.PortBinding{{HostPort: "20000"}},
					"6080/tcp":  []nat.PortBinding{{HostPort: "21000"}},
				},
			},
		},
		Config: &container.Config{
			Image: "worker:latest",
			Env:   []string{"GATEWAY_TOKEN=tok", "PATH=/usr/bin"},
		},
	}

	got := toDomainDetails(info)
	assert.Equal(t, "worker-e1", got.Name)
	assert.Equal(t, "exited", got.State)
	assert.Equal(t, map[int]int{18789: 20000, 6080: 21000}, got.HostPorts)
	assert.Equal(t, "tok", got.EnvValue("GATEWAY_TOKEN"))
	assert.Equal(t, 2026, got.FinishedAt.Year())
}

func TestToDomainDetails_NilSections(t *testing.T) {
	got := toDomainDetails(types.ContainerJSON{})
	assert.Empty(t, got.HostPorts)
	assert.Empty(t, got.Name)
}

func TestParseEngineTime(t *testing.T) {
	assert.True(t, parseEngineTime("0001-01-01T00:00:00Z").IsZero())
	assert.True(t, parseEngineTime("garbage").IsZero())
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(parseEngineTime("2026-03-01T12:00:00Z")))
}

func TestPortMaps(t *testing.T) {
	exposed, bindings := portMaps(map[int]int{18789: 20000, 6080: 21000}, "127.0.0.1")

	assert.Contains(t, exposed, nat.Port("18789/tcp"))
	assert.Contains(t, exposed, nat.Port("6080/tcp"))
	require.Len(t, bindings["18789/tcp"], 1)
	assert.Equal(t, "20000", bindings["18789/tcp"][0].HostPort)
	assert.Equal(t, "127.0.0.1", bindings["18789/tcp"][0].HostIP)
}

func TestToMounts(t *testing.T) {
	got := toMounts([]domain.Mount{
		{Source: "/tmp/bundle", Target: "/home/agent/workspace", ReadOnly: true},
		{Source: "tenant-acme-shared", Target: "/home/agent/shared", Volume: true},
	})
	require.Len(t, got, 2)
	assert.Equal(t, mount.TypeBind, got[0].Type)
	assert.True(t, got[0].ReadOnly)
	assert.Equal(t, mount.TypeVolume, got[1].Type)
	assert.False(t, got[1].ReadOnly)
}

func TestTranslate(t *testing.T) {
	err := translate(errdefs.NotFound(errors.New("no such container: worker-x")), "failed to stop container")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "no such container")

	err = translate(errors.New("boom"), "failed to stop container")
	assert.False(t, errors.Is(err, domain.ErrNotFound))

	assert.NoError(t, translate(nil, "unused"))
}
