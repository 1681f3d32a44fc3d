package model

import (
	"regexp"
	"strconv"
	"time"
)

// Decision categories. PLAN is planning-only and excluded from task coverage
// checks.
const (
	CategoryArch  = "ARCH"
	CategoryFront = "FRONT"
	CategoryBack  = "BACK"
	CategoryData  = "DATA"
	CategoryInfra = "INFRA"
	CategorySec   = "SEC"
	CategoryLegal = "LEGAL"
	CategoryPlan  = "PLAN"
)

// DecisionCategories returns all valid decision categories.
func DecisionCategories() []string {
	return []string{
		CategoryArch, CategoryFront, CategoryBack, CategoryData,
		CategoryInfra, CategorySec, CategoryLegal, CategoryPlan,
	}
}

// IsValidCategory checks if a category string is valid.
func IsValidCategory(category string) bool {
	for _, c := range DecisionCategories() {
		if category == c {
			return true
		}
	}
	return false
}

var decisionIDPattern = regexp.MustCompile(`^([A-Z]+)-(\d{2,})$`)

// Decision is a categorized, supersedable statement produced by a phase.
// ID encodes the category prefix and a sequential number (PREFIX-NN); the
// Prefix and Number fields must each independently agree with the ID string.
type Decision struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Prefix    string    `json:"prefix"`
	Title     string    `json:"title"`
	Rationale string    `json:"rationale"`
	Phase     string    `json:"phase"`
	Number    int       `json:"number"`
}

// Validate checks every field invariant and returns all failures at once.
func (d *Decision) Validate() error {
	var errs ValidationErrors

	matches := decisionIDPattern.FindStringSubmatch(d.ID)
	if matches == nil {
		errs.Addf("id", "%q does not match PREFIX-NN", d.ID)
		return errs.OrNil()
	}

	idPrefix := matches[1]
	idNumber, _ := strconv.Atoi(matches[2])

	if !IsValidCategory(idPrefix) {
		errs.Addf("id", "unknown category prefix %q", idPrefix)
	}
	if d.Prefix != idPrefix {
		errs.Addf("prefix", "%q does not match id prefix %q", d.Prefix, idPrefix)
	}
	if d.Number != idNumber {
		errs.Addf("number", "%d does not match id number %d", d.Number, idNumber)
	}
	if d.Title == "" {
		errs.Addf("title", "must not be empty")
	}

	return errs.OrNil()
}

// NewDecision constructs a validated decision with prefix and number derived
// from the id.
func NewDecision(id, title, rationale, phase string) (*Decision, error) {
	d := &Decision{
		ID:        id,
		Title:     title,
		Rationale: rationale,
		Phase:     phase,
		CreatedAt: time.Now().UTC(),
	}
	if matches := decisionIDPattern.FindStringSubmatch(id); matches != nil {
		d.Prefix = matches[1]
		d.Number, _ = strconv.Atoi(matches[2])
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DecisionRevision is an archived prior version of a superseded decision,
// keyed by id and the time it was replaced.
type DecisionRevision struct {
	ReplacedAt time.Time `json:"replaced_at"`
	Decision   Decision  `json:"decision"`
}

var constraintIDPattern = regexp.MustCompile(`^C-\d{2,}$`)

// Constraint is a hard limit recorded during a phase (C-NN).
type Constraint struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Phase       string `json:"phase"`
}

// Validate checks the constraint's field invariants.
func (c *Constraint) Validate() error {
	var errs ValidationErrors
	if !constraintIDPattern.MatchString(c.ID) {
		errs.Addf("id", "%q does not match C-NN", c.ID)
	}
	if c.Description == "" {
		errs.Addf("description", "must not be empty")
	}
	return errs.OrNil()
}
