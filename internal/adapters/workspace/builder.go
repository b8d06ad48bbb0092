// Package workspace renders the instruction/config bundle mounted read-only
// into a worker container.
//
// Template root layout:
//
//	default/INSTRUCTIONS.md, default/HEARTBEAT.md       fallback templates
//	skills/<skill>/INSTRUCTIONS.md, HEARTBEAT.md         per-skill templates
//	shared/PROTOCOL.md                                  operating protocol
//	shared/reference/                                   static reference material
//	shared/memory/                                      memory-template seeds
//
// The template set is an external asset; missing files degrade to absent
// sections rather than errors.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
)

// Bundle file names.
const (
	InstructionsFile = "INSTRUCTIONS.md"
	HeartbeatFile    = "HEARTBEAT.md"
	ProtocolFile     = "PROTOCOL.md"
	SkillsDir        = "skills"
	ConfigDir        = "config"
	ReferenceDir     = "reference"
	MemoryDir        = "memory"
)

// Builder implements ports.WorkspaceBuilder on the local filesystem.
type Builder struct {
	templateRoot string
	bundles      *Manager
	log          zerolog.Logger
}

// NewBuilder creates a builder reading templates from templateRoot and
// writing bundles under the manager's root.
func NewBuilder(templateRoot string, bundles *Manager) *Builder {
	return &Builder{
		templateRoot: templateRoot,
		bundles:      bundles,
		log:          log.WithComponent("workspace"),
	}
}

var _ ports.WorkspaceBuilder = (*Builder)(nil)

// Build renders a fresh bundle for req and returns its path.
func (b *Builder) Build(ctx context.Context, req ports.BuildRequest) (string, error) {
	dir, err := b.bundles.Prepare(req.Name)
	if err != nil {
		return "", err
	}

	skills := req.Skills
	primary := strings.TrimSpace(req.PrimarySkill)
	if primary == "" && len(skills) > 0 {
		primary = skills[0]
	}
	if len(skills) == 0 && primary != "" {
		skills = []string{primary}
	}

	steps := []func() error{
		func() error { return b.writePrimary(dir, primary, req) },
		func() error { return b.writeSkills(dir, skills, req) },
		func() error { return b.writeConfig(dir, skills, req) },
		func() error {
			return copyTree(filepath.Join(b.templateRoot, "shared", ReferenceDir), filepath.Join(dir, ReferenceDir))
		},
		func() error {
			return copyTree(filepath.Join(b.templateRoot, "shared", MemoryDir), filepath.Join(dir, MemoryDir))
		},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := step(); err != nil {
			return "", fmt.Errorf("build workspace %s: %w", req.Name, err)
		}
	}

	b.log.Debug().Str("bundle", dir).Str("skill", primary).Int("skills", len(skills)).Msg("workspace built")
	return dir, nil
}

// Remove deletes a worker's bundle.
func (b *Builder) Remove(name string) error {
	return b.bundles.Remove(name)
}

func (b *Builder) skillTemplate(skill, file string) []string {
	var paths []string
	if name := safeSkillName(skill); name != "" {
		paths = append(paths, filepath.Join(b.templateRoot, "skills", name, file))
	}
	return append(paths, filepath.Join(b.templateRoot, "default", file))
}

func (b *Builder) writePrimary(dir, primary string, req ports.BuildRequest) error {
	r := newReplacer(req.DisplayName, req.Personality, primary, req.Config)

	body, _, err := readOptional(b.skillTemplate(primary, InstructionsFile)...)
	if err != nil {
		return err
	}
	protocol, ok, err := readOptional(filepath.Join(b.templateRoot, "shared", ProtocolFile))
	if err != nil {
		return err
	}
	if ok {
		body = strings.TrimRight(body, "\n") + ProtocolDelimiter + protocol
	}
	if err := writeFile(filepath.Join(dir, InstructionsFile), r.Replace(body)); err != nil {
		return err
	}

	heartbeat, ok, err := readOptional(b.skillTemplate(primary, HeartbeatFile)...)
	if err != nil || !ok {
		return err
	}
	return writeFile(filepath.Join(dir, HeartbeatFile), r.Replace(heartbeat))
}

// writeSkills renders one file per skill when the worker has several, so the
// agent can consult each independently.
func (b *Builder) writeSkills(dir string, skills []string, req ports.BuildRequest) error {
	if len(skills) < 2 {
		return nil
	}
	for _, skill := range skills {
		name := safeSkillName(skill)
		if name == "" {
			continue
		}
		body, _, err := readOptional(b.skillTemplate(skill, InstructionsFile)...)
		if err != nil {
			return err
		}
		r := newReplacer(req.DisplayName, req.Personality, skill, req.Config)
		if err := writeFile(filepath.Join(dir, SkillsDir, name+".md"), r.Replace(body)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeConfig(dir string, skills []string, req ports.BuildRequest) error {
	cfgDir := filepath.Join(dir, ConfigDir)

	targets, err := json.MarshalIndent(ParseTargets(req.Config.Targets), "", "  ")
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	if err := writeFile(filepath.Join(cfgDir, "targets.json"), string(targets)+"\n"); err != nil {
		return err
	}

	company, err := renderCompany(req.Config)
	if err != nil {
		return fmt.Errorf("encode company profile: %w", err)
	}
	if err := writeFile(filepath.Join(cfgDir, "company.json"), string(company)+"\n"); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(cfgDir, "rules.md"), renderRules(skills, req.Config.Tone)); err != nil {
		return err
	}

	if strings.TrimSpace(req.Config.BrandVoice) == "" {
		return nil
	}
	return writeFile(filepath.Join(cfgDir, "brand-voice.md"), renderBrandVoice(req.Config.BrandVoice))
}

// safeSkillName reduces a skill id to a single path element.
func safeSkillName(skill string) string {
	name := filepath.Base(strings.TrimSpace(skill))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// copyTree copies src into dst verbatim. A missing src is not an error.
func copyTree(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
