// Package audit implements the three-layer completeness audit: feature
// implication rules, cross-task API contract checks, and journey-trace
// merging, plus the lighter early-detection advisory path and the
// completeness gate that later phase transitions read.
package audit

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"conductor/pkg/model"
)

//go:embed rules.yaml
var rulesYAML []byte

// Companion is one expected feature implied by a fired rule.
type Companion struct {
	Feature  string   `yaml:"feature"`
	Terms    []string `yaml:"terms"`
	Severity string   `yaml:"severity"`
}

// ImplicationRule fires when any trigger term appears in the corpus.
// Category is the gap category its gaps carry; empty means implied_feature.
type ImplicationRule struct {
	Name      string      `yaml:"name"`
	Category  string      `yaml:"category"`
	Triggers  []string    `yaml:"triggers"`
	Required  []Companion `yaml:"required"`
	Suggested []Companion `yaml:"suggested"`
}

// CrossDomainContract pairs a source decision category with the category
// expected to answer it.
type CrossDomainContract struct {
	Source   string   `yaml:"source"`
	Triggers []string `yaml:"triggers"`
	Target   string   `yaml:"target"`
}

type ruleSet struct {
	Implications []ImplicationRule     `yaml:"implications"`
	CrossDomain  []CrossDomainContract `yaml:"cross_domain"`
}

var (
	rulesOnce sync.Once
	rules     *ruleSet
	rulesErr  error
)

func loadRules() (*ruleSet, error) {
	rulesOnce.Do(func() {
		rs := &ruleSet{}
		if err := yaml.Unmarshal(rulesYAML, rs); err != nil {
			rulesErr = fmt.Errorf("failed to parse embedded rules: %w", err)
			return
		}
		for i := range rs.Implications {
			rule := &rs.Implications[i]
			if rule.Category != "" && !model.IsValidGapCategory(rule.Category) {
				rulesErr = fmt.Errorf("rule %s has invalid gap category %q", rule.Name, rule.Category)
				return
			}
		}
		rules = rs
	})
	return rules, rulesErr
}
