package review

import (
	"fmt"
	"sort"

	"conductor/pkg/config"
	"conductor/pkg/model"
)

// DefaultCycleCeiling is the fix-cycle count past which escalation is
// signaled.
const DefaultCycleCeiling = 3

// PendulumWarning flags a file or category that keeps resurfacing across
// fix cycles, a sign fixes in one area keep breaking another.
type PendulumWarning struct {
	Kind    string // "file" or "category"
	Subject string
	Cycles  []int
}

func (w PendulumWarning) String() string {
	return fmt.Sprintf("%s %q recurs in cycles %v", w.Kind, w.Subject, w.Cycles)
}

// DetectPendulum scans a task's full review history for files or categories
// with findings in two or more distinct cycles.
func DetectPendulum(history []*model.ReviewResult) []PendulumWarning {
	fileCycles := make(map[string]map[int]bool)
	categoryCycles := make(map[string]map[int]bool)

	record := func(m map[string]map[int]bool, subject string, cycle int) {
		if subject == "" {
			return
		}
		if m[subject] == nil {
			m[subject] = make(map[int]bool)
		}
		m[subject][cycle] = true
	}

	for _, r := range history {
		for _, f := range r.Findings {
			record(fileCycles, f.File, r.Cycle)
			record(categoryCycles, f.Category, r.Cycle)
		}
	}

	var warnings []PendulumWarning
	collect := func(kind string, m map[string]map[int]bool) {
		subjects := make([]string, 0, len(m))
		for subject := range m {
			subjects = append(subjects, subject)
		}
		sort.Strings(subjects)
		for _, subject := range subjects {
			if len(m[subject]) < 2 {
				continue
			}
			cycles := make([]int, 0, len(m[subject]))
			for c := range m[subject] {
				cycles = append(cycles, c)
			}
			sort.Ints(cycles)
			warnings = append(warnings, PendulumWarning{Kind: kind, Subject: subject, Cycles: cycles})
		}
	}
	collect("file", fileCycles)
	collect("category", categoryCycles)

	return warnings
}

// ExceedsCycleLimit signals escalation once the current cycle passes the
// ceiling. A zero or negative ceiling falls back to the default. The signal
// is advisory; whether to stop belongs to the caller.
func ExceedsCycleLimit(cycle, ceiling int) bool {
	if ceiling <= 0 {
		ceiling = DefaultCycleCeiling
	}
	return cycle > ceiling
}

// ExceedsConfiguredCycleLimit applies the operator's review_cycle_ceiling.
func ExceedsConfiguredCycleLimit(cycle int, cfg *config.Config) bool {
	return ExceedsCycleLimit(cycle, cfg.ReviewCycleCeiling)
}
