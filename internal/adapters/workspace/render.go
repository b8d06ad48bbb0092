package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// ProtocolDelimiter separates skill instructions from the appended operating protocol.
const ProtocolDelimiter = "\n\n---\n\n"

const defaultAssistantName = "Assistant"

// Placeholders recognised in template files.
var placeholderKeys = []string{
	"{{NAME}}",
	"{{ASSISTANT_NAME}}",
	"{{PERSONALITY}}",
	"{{NICHE}}",
	"{{SKILL}}",
	"{{COMPANY}}",
}

func newReplacer(displayName, personality, skill string, cfg domain.WorkerConfig) *strings.Replacer {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = defaultAssistantName
	}
	values := map[string]string{
		"{{NAME}}":           name,
		"{{ASSISTANT_NAME}}": name,
		"{{PERSONALITY}}":    strings.TrimSpace(personality),
		"{{NICHE}}":          strings.TrimSpace(cfg.Niche),
		"{{SKILL}}":          skill,
		"{{COMPANY}}":        strings.TrimSpace(cfg.Company.Name),
	}
	pairs := make([]string, 0, 2*len(placeholderKeys))
	for _, k := range placeholderKeys {
		pairs = append(pairs, k, values[k])
	}
	return strings.NewReplacer(pairs...)
}

// readOptional returns the contents of the first path that exists. Missing
// templates are not errors; other read failures are.
func readOptional(paths ...string) (string, bool, error) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), true, nil
		}
		if !os.IsNotExist(err) {
			return "", false, fmt.Errorf("read template %s: %w", p, err)
		}
	}
	return "", false, nil
}

// Targets is the structured target list written to config/targets.json.
type Targets struct {
	Accounts []string `json:"accounts"`
	Hashtags []string `json:"hashtags"`
}

// ParseTargets splits raw targets by prefix: @ for accounts, # for hashtags.
// Anything else is dropped.
func ParseTargets(raw []string) Targets {
	t := Targets{Accounts: []string{}, Hashtags: []string{}}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		switch {
		case strings.HasPrefix(r, "@") && len(r) > 1:
			t.Accounts = append(t.Accounts, r[1:])
		case strings.HasPrefix(r, "#") && len(r) > 1:
			t.Hashtags = append(t.Hashtags, r[1:])
		}
	}
	return t
}

type companyDoc struct {
	Company     domain.CompanyProfile `json:"company"`
	Niche       string                `json:"niche,omitempty"`
	Competitors []string              `json:"competitors"`
}

func renderCompany(cfg domain.WorkerConfig) ([]byte, error) {
	doc := companyDoc{
		Company:     cfg.Company,
		Niche:       cfg.Niche,
		Competitors: cfg.Competitors,
	}
	if doc.Competitors == nil {
		doc.Competitors = []string{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func renderRules(skills []string, tone string) string {
	var b strings.Builder
	b.WriteString("# Rules\n\n## Active skills\n\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	tone = strings.TrimSpace(tone)
	if tone == "" {
		tone = "professional"
	}
	fmt.Fprintf(&b, "\n## Tone\n\n%s\n", tone)
	return b.String()
}

func renderBrandVoice(voice string) string {
	return "# Brand voice\n\n" + strings.TrimSpace(voice) + "\n"
}
