package model

import (
	"regexp"
	"strconv"
	"time"
)

// Audit gap layers.
const (
	LayerImplication = "implication"
	LayerContract    = "contract"
	LayerJourney     = "journey"
)

// IsValidGapLayer checks if a layer string is valid.
func IsValidGapLayer(layer string) bool {
	return layer == LayerImplication || layer == LayerContract || layer == LayerJourney
}

// Audit gap categories.
const (
	GapCategoryImpliedFeature = "implied_feature"
	GapCategoryAPIContract    = "api_contract"
	GapCategoryDataFlow       = "data_flow"
	GapCategoryErrorHandling  = "error_handling"
	GapCategorySecurity       = "security"
	GapCategoryJourneyBreak   = "journey_break"
)

// GapCategories returns all valid gap categories.
func GapCategories() []string {
	return []string{
		GapCategoryImpliedFeature, GapCategoryAPIContract, GapCategoryDataFlow,
		GapCategoryErrorHandling, GapCategorySecurity, GapCategoryJourneyBreak,
	}
}

// IsValidGapCategory checks if a gap category string is valid.
func IsValidGapCategory(category string) bool {
	for _, c := range GapCategories() {
		if category == c {
			return true
		}
	}
	return false
}

// Audit gap statuses.
const (
	GapStatusOpen      = "open"
	GapStatusAccepted  = "accepted"
	GapStatusDismissed = "dismissed"
	GapStatusDeferred  = "deferred"
)

// IsValidGapStatus checks if a gap status string is valid.
func IsValidGapStatus(status string) bool {
	switch status {
	case GapStatusOpen, GapStatusAccepted, GapStatusDismissed, GapStatusDeferred:
		return true
	}
	return false
}

var gapIDPattern = regexp.MustCompile(`^GAP-(\d{2,})$`)

// GapNumber returns the numeric suffix of a gap id, or 0 when id has another
// shape.
func GapNumber(id string) int {
	m := gapIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// AuditGap is a persisted, lifecycle-managed completeness issue (GAP-NN).
// Trigger is a free-text pointer to whatever produced the gap: a rule name,
// a task id, or a journey name.
//
//nolint:govet // struct alignment optimization not critical for this type
type AuditGap struct {
	CreatedAt      time.Time `json:"created_at"`
	ID             string    `json:"id"`
	Category       string    `json:"category"`
	Severity       string    `json:"severity"`
	Layer          string    `json:"layer"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Trigger        string    `json:"trigger"`
	Evidence       []string  `json:"evidence"`
	Recommendation string    `json:"recommendation"`
	Status         string    `json:"status"`
	ResolvedBy     string    `json:"resolved_by,omitempty"` // task id, once accepted
}

// Validate checks every field invariant and returns all failures at once.
func (g *AuditGap) Validate() error {
	var errs ValidationErrors

	if !gapIDPattern.MatchString(g.ID) {
		errs.Addf("id", "%q does not match GAP-NN", g.ID)
	}
	if !IsValidGapCategory(g.Category) {
		errs.Addf("category", "invalid category %q", g.Category)
	}
	if !IsValidSeverity(g.Severity) {
		errs.Addf("severity", "invalid severity %q", g.Severity)
	}
	if !IsValidGapLayer(g.Layer) {
		errs.Addf("layer", "invalid layer %q", g.Layer)
	}
	if g.Title == "" {
		errs.Addf("title", "must not be empty")
	}
	if !IsValidGapStatus(g.Status) {
		errs.Addf("status", "invalid status %q", g.Status)
	}
	if g.Status == GapStatusAccepted && g.ResolvedBy == "" {
		errs.Addf("resolved_by", "required once gap is accepted")
	}

	return errs.OrNil()
}

// Deferred finding statuses.
const (
	FindingStatusOpen         = "open"
	FindingStatusPromoted     = "promoted"
	FindingStatusDeferredPost = "deferred-post-v1"
	FindingStatusDismissed    = "dismissed"
)

// IsValidFindingStatus checks if a deferred-finding status string is valid.
func IsValidFindingStatus(status string) bool {
	switch status {
	case FindingStatusOpen, FindingStatusPromoted, FindingStatusDeferredPost, FindingStatusDismissed:
		return true
	}
	return false
}

var deferredFindingIDPattern = regexp.MustCompile(`^DF-\d{2,}$`)

// DeferredFinding is a review finding parked for later work (DF-NN).
type DeferredFinding struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	OriginTask   string    `json:"origin_task"`
	Category     string    `json:"category"`
	AffectedArea string    `json:"affected_area"`
	LikelyFiles  []string  `json:"likely_files"`
	Status       string    `json:"status"`
}

// Validate checks every field invariant and returns all failures at once.
func (f *DeferredFinding) Validate() error {
	var errs ValidationErrors

	if !deferredFindingIDPattern.MatchString(f.ID) {
		errs.Addf("id", "%q does not match DF-NN", f.ID)
	}
	if f.OriginTask != "" && !IsValidTaskID(f.OriginTask) {
		errs.Addf("origin_task", "%q matches no task id shape", f.OriginTask)
	}
	if !IsValidFindingStatus(f.Status) {
		errs.Addf("status", "invalid status %q", f.Status)
	}

	return errs.OrNil()
}
