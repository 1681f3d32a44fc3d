package audit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"conductor/pkg/model"
)

var apiPathPattern = regexp.MustCompile(`/(?:api|v\d+)/[a-zA-Z0-9_\-/{}:.]+`)

var frontendKeywords = []string{
	"frontend", "ui", "component", "page", "form", "button", "render",
	"view", "screen", "css", "react", "client-side",
}

// Bare "api" is deliberately absent: frontend tasks routinely name the API
// paths they call.
var backendKeywords = []string{
	"backend", "endpoint", "handler", "server", "database",
	"route", "sql", "persistence", "implement api", "serve",
}

var apiCallKeywords = []string{"fetch", "api call", "call the api", "request to", "http request", "axios"}

// taskText lowercases the checkable text of one task.
func taskText(t *model.Task) string {
	parts := []string{t.Title, t.Goal}
	parts = append(parts, t.AcceptanceCriteria...)
	parts = append(parts, t.Files()...)
	return strings.ToLower(strings.Join(parts, " "))
}

// classifyTask buckets a task as frontend, backend, both, or neither.
// Decision-prefix references win over keyword heuristics.
func classifyTask(t *model.Task) (frontend, backend bool) {
	for _, ref := range t.DecisionRefs {
		if strings.HasPrefix(ref, model.CategoryFront+"-") {
			frontend = true
		}
		if strings.HasPrefix(ref, model.CategoryBack+"-") {
			backend = true
		}
	}
	if frontend || backend {
		return frontend, backend
	}

	text := taskText(t)
	for _, kw := range frontendKeywords {
		if strings.Contains(text, kw) {
			frontend = true
			break
		}
	}
	for _, kw := range backendKeywords {
		if strings.Contains(text, kw) {
			backend = true
			break
		}
	}
	return frontend, backend
}

// runContracts applies the layer-2 cross-task contract check: frontend tasks
// that call an API must have a backend counterpart. Numbering continues from
// next.
func runContracts(tasks []*model.Task, next int) ([]*model.AuditGap, int) {
	var backendTexts []string
	for _, t := range tasks {
		if _, backend := classifyTask(t); backend {
			backendTexts = append(backendTexts, taskText(t))
		}
	}

	var gaps []*model.AuditGap
	for _, t := range tasks {
		frontend, backend := classifyTask(t)
		if !frontend || backend {
			continue
		}
		text := taskText(t)

		if len(backendTexts) == 0 {
			if looksLikeAPICall(text) {
				gaps = append(gaps, contractGap(t, next, model.SeverityCritical,
					fmt.Sprintf("Frontend task %s calls an API with no backend tasks", t.ID),
					fmt.Sprintf("Task %s makes API calls but the queue contains no backend task at all.", t.ID)))
				next++
			}
			continue
		}

		for _, path := range apiPathPattern.FindAllString(text, -1) {
			if backendCovers(backendTexts, path) {
				continue
			}
			gaps = append(gaps, contractGap(t, next, model.SeverityHigh,
				fmt.Sprintf("Unbacked API path %s", path),
				fmt.Sprintf("Frontend task %s references %s but no backend task provides it.", t.ID, path)))
			next++
		}
	}
	return gaps, next
}

func backendCovers(backendTexts []string, path string) bool {
	for _, text := range backendTexts {
		if strings.Contains(text, path) {
			return true
		}
	}
	return false
}

func looksLikeAPICall(text string) bool {
	for _, kw := range apiCallKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return apiPathPattern.MatchString(text)
}

func contractGap(t *model.Task, number int, severity, title, description string) *model.AuditGap {
	return &model.AuditGap{
		CreatedAt:      time.Now().UTC(),
		ID:             fmt.Sprintf("GAP-%02d", number),
		Category:       model.GapCategoryAPIContract,
		Severity:       severity,
		Layer:          model.LayerContract,
		Title:          title,
		Description:    description,
		Trigger:        "task:" + t.ID,
		Evidence:       []string{t.ID},
		Recommendation: "Add a backend task providing the referenced API, or correct the reference.",
		Status:         model.GapStatusOpen,
	}
}
