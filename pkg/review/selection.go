// Package review adjudicates multi-reviewer results for one task and cycle:
// deterministic reviewer selection, cross-referenced finding confirmation, a
// unified verdict, and fix-cycle oscillation signals.
package review

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"conductor/pkg/model"
)

// Reviewer identities. The primary reviewer is always selected.
const (
	ReviewerPrimary  = "primary"
	ReviewerSecurity = "security"
	ReviewerStyle    = "style"
)

//go:embed reviewers.yaml
var reviewersYAML []byte

type selectionRules struct {
	SecurityPathKeywords       []string `yaml:"security_path_keywords"`
	SecurityDecisionCategories []string `yaml:"security_decision_categories"`
	StyleExtensions            []string `yaml:"style_extensions"`
}

var (
	selectionOnce sync.Once
	selection     *selectionRules
	selectionErr  error
)

func loadSelectionRules() (*selectionRules, error) {
	selectionOnce.Do(func() {
		rules := &selectionRules{}
		if err := yaml.Unmarshal(reviewersYAML, rules); err != nil {
			selectionErr = fmt.Errorf("failed to parse embedded reviewer rules: %w", err)
			return
		}
		selection = rules
	})
	return selection, selectionErr
}

// SelectReviewers returns the reviewers a task needs, deterministically:
// always the primary; security when a touched path hits a security keyword
// or a referenced decision belongs to a security category; style when a
// touched file has a style-relevant extension.
func SelectReviewers(task *model.Task) ([]string, error) {
	rules, err := loadSelectionRules()
	if err != nil {
		return nil, err
	}

	reviewers := []string{ReviewerPrimary}

	if needsSecurity(task, rules) {
		reviewers = append(reviewers, ReviewerSecurity)
	}
	if needsStyle(task, rules) {
		reviewers = append(reviewers, ReviewerStyle)
	}
	return reviewers, nil
}

func needsSecurity(task *model.Task, rules *selectionRules) bool {
	for _, file := range task.Files() {
		lower := strings.ToLower(file)
		for _, kw := range rules.SecurityPathKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	for _, ref := range task.DecisionRefs {
		for _, cat := range rules.SecurityDecisionCategories {
			if strings.HasPrefix(ref, cat+"-") {
				return true
			}
		}
	}
	return false
}

func needsStyle(task *model.Task, rules *selectionRules) bool {
	for _, file := range task.Files() {
		lower := strings.ToLower(file)
		for _, ext := range rules.StyleExtensions {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
	}
	return false
}
