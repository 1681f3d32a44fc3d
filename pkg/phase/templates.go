// Package phase implements the prerequisite-gated phase state machine.
// Phases move pending -> active -> completed or skipped; the prerequisite
// map seeded from a named template is the single source of ordering truth.
package phase

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"conductor/pkg/model"
)

// Template names.
const (
	TemplateGreenfield = "greenfield"
	TemplateEvolution  = "evolution"
)

//go:embed templates.yaml
var templatesYAML []byte

// TemplatePhase is one phase definition inside a template.
type TemplatePhase struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Prereqs []string `yaml:"prereqs"`
	Gated   bool     `yaml:"gated"`
}

// Template is a named phase sequence with its prerequisite map.
type Template struct {
	Name   string
	Phases []TemplatePhase
}

type templateFile struct {
	Templates map[string]struct {
		Phases []TemplatePhase `yaml:"phases"`
	} `yaml:"templates"`
}

//nolint:gochecknoglobals // embedded table parsed once
var (
	templatesOnce sync.Once
	templates     map[string]*Template
	templatesErr  error
)

func loadTemplates() (map[string]*Template, error) {
	templatesOnce.Do(func() {
		var file templateFile
		if err := yaml.Unmarshal(templatesYAML, &file); err != nil {
			templatesErr = fmt.Errorf("failed to parse phase templates: %w", err)
			return
		}
		templates = make(map[string]*Template, len(file.Templates))
		for name, t := range file.Templates {
			templates[name] = &Template{Name: name, Phases: t.Phases}
		}
	})
	return templates, templatesErr
}

// LookupTemplate returns a named phase template.
func LookupTemplate(name string) (*Template, error) {
	all, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	t, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("unknown phase template %q", name)
	}
	return t, nil
}

// SeedPhases returns the pending phase rows a fresh pipeline starts with.
func (t *Template) SeedPhases() []model.Phase {
	phases := make([]model.Phase, 0, len(t.Phases))
	for i, tp := range t.Phases {
		prereqs := tp.Prereqs
		if prereqs == nil {
			prereqs = []string{}
		}
		phases = append(phases, model.Phase{
			ID:         tp.ID,
			Label:      tp.Label,
			Status:     model.PhaseStatusPending,
			Prereqs:    prereqs,
			OrderIndex: i,
		})
	}
	return phases
}

// IsGated reports whether a phase carries the completeness gate.
func (t *Template) IsGated(phaseID string) bool {
	for _, tp := range t.Phases {
		if tp.ID == phaseID {
			return tp.Gated
		}
	}
	return false
}
