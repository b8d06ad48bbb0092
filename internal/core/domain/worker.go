package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Worker statuses surfaced to callers. The caller mirrors these into its own store.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusError   = "error"
)

const containerPrefix = "worker-"

// WorkerIdentity addresses one worker. EmployeeID wins; UserID is the legacy fallback.
type WorkerIdentity struct {
	EmployeeID string `json:"employeeId"`
	UserID     string `json:"userId"`
}

// Key resolves the identity to its stable external key.
func (id WorkerIdentity) Key() (string, error) {
	if k := strings.TrimSpace(id.EmployeeID); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(id.UserID); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: employeeId or userId is required", ErrInvalidArgument)
}

// ContainerName deterministically maps a worker key to its container name.
func ContainerName(key string) string {
	return containerPrefix + sanitizeName(key)
}

// VolumeName returns the shared volume for a tenant, or a per-worker volume
// for workers without a tenant.
func VolumeName(tenantID, key string) string {
	if t := strings.TrimSpace(tenantID); t != "" {
		return "tenant-" + sanitizeName(t) + "-shared"
	}
	return containerPrefix + sanitizeName(key) + "-shared"
}

// sanitizeName keeps characters Docker accepts in object names and replaces
// the rest with '-'. When anything was replaced, a short digest of the raw
// value is appended so distinct keys never share a name.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	replaced := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
			replaced = true
		}
	}
	if replaced {
		sum := sha256.Sum256([]byte(s))
		b.WriteByte('-')
		b.WriteString(hex.EncodeToString(sum[:4]))
	}
	return b.String()
}

// StatusFromState maps an engine state to a worker status.
func StatusFromState(state string) string {
	switch state {
	case StateRunning:
		return StatusRunning
	case StateCreated, StateExited, StatePaused:
		return StatusStopped
	default:
		return StatusError
	}
}

// ConnectionInfo is returned by provision and persisted by the caller.
type ConnectionInfo struct {
	Status       string `json:"status"`
	GatewayPort  int    `json:"gatewayPort"`
	NoVNCPort    int    `json:"novncPort"`
	GatewayToken string `json:"gatewayToken"`
}

// WorkerStatus is the inspected state of a worker.
type WorkerStatus struct {
	Exists      bool   `json:"exists"`
	Status      string `json:"status,omitempty"`
	GatewayPort int    `json:"gatewayPort,omitempty"`
	NoVNCPort   int    `json:"novncPort,omitempty"`
}

// WorkerSummary is one entry of the managed worker listing.
type WorkerSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WorkerID string `json:"workerId"`
	TenantID string `json:"tenantId,omitempty"`
	Image    string `json:"image"`
	State    string `json:"state"`
	Status   string `json:"status"`
}

// CompanyProfile describes the tenant the worker operates for.
type CompanyProfile struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

// WorkerConfig is the per-worker runtime configuration supplied by the caller.
type WorkerConfig struct {
	Targets     []string       `json:"targets,omitempty"`
	Niche       string         `json:"niche,omitempty"`
	Company     CompanyProfile `json:"company"`
	Competitors []string       `json:"competitors,omitempty"`
	Tone        string         `json:"tone,omitempty"`
	BrandVoice  string         `json:"brandVoice,omitempty"`
	Skills      []string       `json:"skills,omitempty"`
}

// ProvisionRequest carries everything needed to create or resume a worker.
type ProvisionRequest struct {
	Identity     WorkerIdentity
	TenantID     string
	DisplayName  string
	Personality  string
	Skill        string
	WorkerConfig WorkerConfig
}

// SkillList returns the primary skill followed by any additional skills, deduplicated.
func (r ProvisionRequest) SkillList() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(r.Skill)
	for _, s := range r.WorkerConfig.Skills {
		add(s)
	}
	return out
}

// FileEntry is one file in a worker's reference directory.
type FileEntry struct {
	Name string `json:"name"`
}

// Memory holds the durable memory documents of a worker. Each is nil until written.
type Memory struct {
	CompanyProfile   *string `json:"companyProfile"`
	ResearchFindings *string `json:"researchFindings"`
	PendingQuestions *string `json:"pendingQuestions"`
	Suggestions      *string `json:"suggestions"`
}
