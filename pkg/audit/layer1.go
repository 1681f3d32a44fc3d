package audit

import (
	"fmt"
	"time"

	"conductor/pkg/model"
)

// runImplications applies the layer-1 rules to the corpus. Gap numbering
// starts at next and the updated counter is returned so layer 2 continues
// without restarting.
func runImplications(c *corpus, next int) ([]*model.AuditGap, int) {
	rs, err := loadRules()
	if err != nil {
		// Embedded data; a parse failure is a programming error.
		panic(err)
	}

	var gaps []*model.AuditGap
	for i := range rs.Implications {
		rule := &rs.Implications[i]
		trigger, fired := c.containsAny(rule.Triggers)
		if !fired {
			continue
		}

		for _, comp := range rule.Required {
			if _, present := c.containsAny(comp.Terms); present {
				continue
			}
			gaps = append(gaps, implicationGap(rule, comp.Feature, comp.Severity, trigger, c, next))
			next++
		}
		for _, comp := range rule.Suggested {
			if _, present := c.containsAny(comp.Terms); present {
				continue
			}
			gaps = append(gaps, implicationGap(rule, comp.Feature, model.SeverityLow, trigger, c, next))
			next++
		}
	}
	return gaps, next
}

func implicationGap(rule *ImplicationRule, feature, severity, trigger string, c *corpus, number int) *model.AuditGap {
	category := rule.Category
	if category == "" {
		category = model.GapCategoryImpliedFeature
	}
	return &model.AuditGap{
		CreatedAt:      time.Now().UTC(),
		ID:             fmt.Sprintf("GAP-%02d", number),
		Category:       category,
		Severity:       severity,
		Layer:          model.LayerImplication,
		Title:          fmt.Sprintf("Missing %s", feature),
		Description:    fmt.Sprintf("The %s rule fired on %q but no decision or task covers %s.", rule.Name, trigger, feature),
		Trigger:        "rule:" + rule.Name,
		Evidence:       c.evidenceFor(trigger),
		Recommendation: fmt.Sprintf("Add a task or decision covering %s.", feature),
		Status:         model.GapStatusOpen,
	}
}
