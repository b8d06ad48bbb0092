package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerIdentityKey(t *testing.T) {
	tests := []struct {
		name    string
		id      WorkerIdentity
		want    string
		wantErr bool
	}{
		{name: "employee wins", id: WorkerIdentity{EmployeeID: "E1", UserID: "U1"}, want: "E1"},
		{name: "user fallback", id: WorkerIdentity{UserID: "U1"}, want: "U1"},
		{name: "blank employee falls back", id: WorkerIdentity{EmployeeID: "  ", UserID: "U1"}, want: "U1"},
		{name: "neither", id: WorkerIdentity{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.id.Key()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainerAndVolumeNames(t *testing.T) {
	assert.Equal(t, "worker-E1", ContainerName("E1"))
	assert.Equal(t, "worker-emp-42", ContainerName(" emp-42 "))
	assert.Regexp(t, `^worker-a-b-c-[0-9a-f]{8}$`, ContainerName("a/b c"))
	assert.Equal(t, ContainerName("a/b c"), ContainerName("a/b c"), "deterministic")

	assert.Equal(t, "tenant-acme-shared", VolumeName("acme", "E1"))
	assert.Equal(t, "worker-E1-shared", VolumeName("", "E1"))
}

func TestContainerName_DistinctKeysDoNotCollide(t *testing.T) {
	pairs := [][2]string{
		{"E1", "e1"},
		{"a/b", "a-b"},
		{"a b", "a/b"},
		{"x@y", "x-y"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, ContainerName(p[0]), ContainerName(p[1]), "%q vs %q", p[0], p[1])
	}
	assert.NotEqual(t, VolumeName("Acme", ""), VolumeName("acme", ""))
}

func TestStatusFromState(t *testing.T) {
	tests := map[string]string{
		StateRunning:    StatusRunning,
		StateCreated:    StatusStopped,
		StateExited:     StatusStopped,
		StatePaused:     StatusStopped,
		StateDead:       StatusError,
		StateRestarting: StatusError,
		"":              StatusError,
	}
	for state, want := range tests {
		assert.Equal(t, want, StatusFromState(state), "state %q", state)
	}
}

func TestSkillList(t *testing.T) {
	req := ProvisionRequest{
		Skill:        "writer",
		WorkerConfig: WorkerConfig{Skills: []string{"researcher", "writer", " ", "analyst"}},
	}
	assert.Equal(t, []string{"writer", "researcher", "analyst"}, req.SkillList())
	assert.Empty(t, ProvisionRequest{}.SkillList())
}

func TestEnvValue(t *testing.T) {
	d := ContainerDetails{Env: []string{"PATH=/bin", "GATEWAY_TOKEN=abc=def"}}
	assert.Equal(t, "abc=def", d.EnvValue("GATEWAY_TOKEN"))
	assert.Empty(t, d.EnvValue("MISSING"))
}
