package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"conductor/pkg/model"
	"conductor/pkg/synth"
)

// Journey is one user journey traced by the external generator.
type Journey struct {
	Name    string   `json:"name"`
	Steps   []string `json:"steps"`
	Outcome string   `json:"outcome"`
}

// JourneyPayload is the parsed layer-3 generator output.
type JourneyPayload struct {
	Journeys []Journey
	Gaps     []*model.AuditGap
}

// journeyGapRecord is the raw wire shape of one externally found gap.
// Evidence arrives as arbitrary JSON values and is coerced to strings.
type journeyGapRecord struct {
	Category       string            `json:"category"`
	Severity       string            `json:"severity"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Journey        string            `json:"journey"`
	Evidence       []json.RawMessage `json:"evidence"`
	Recommendation string            `json:"recommendation"`
}

// ParseJourneys parses a journey-tracing response. Gap ids are assigned
// here, continuing from nextNumber, never taken from the response. Records
// with unknown category or severity enums are rejected individually.
func ParseJourneys(response string, nextNumber int) (*JourneyPayload, []string, error) {
	text, err := synth.ExtractJSON(response)
	if err != nil {
		return nil, nil, err
	}

	var raw struct {
		Journeys []Journey          `json:"journeys"`
		Gaps     []journeyGapRecord `json:"gaps"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse journey JSON: %w", err)
	}

	payload := &JourneyPayload{Journeys: raw.Journeys}
	var recordErrs []string

	for i, rec := range raw.Gaps {
		if !model.IsValidGapCategory(rec.Category) {
			recordErrs = append(recordErrs, fmt.Sprintf("gap %d: invalid category %q", i+1, rec.Category))
			continue
		}
		if !model.IsValidSeverity(rec.Severity) {
			recordErrs = append(recordErrs, fmt.Sprintf("gap %d: invalid severity %q", i+1, rec.Severity))
			continue
		}
		if rec.Title == "" {
			recordErrs = append(recordErrs, fmt.Sprintf("gap %d: title must not be empty", i+1))
			continue
		}

		gap := &model.AuditGap{
			CreatedAt:      time.Now().UTC(),
			ID:             fmt.Sprintf("GAP-%02d", nextNumber),
			Category:       rec.Category,
			Severity:       rec.Severity,
			Layer:          model.LayerJourney,
			Title:          rec.Title,
			Description:    rec.Description,
			Trigger:        "journey:" + rec.Journey,
			Evidence:       coerceStrings(rec.Evidence),
			Recommendation: rec.Recommendation,
			Status:         model.GapStatusOpen,
		}
		payload.Gaps = append(payload.Gaps, gap)
		nextNumber++
	}

	return payload, recordErrs, nil
}

// coerceStrings renders JSON values as strings: string values verbatim,
// everything else as compact JSON text.
func coerceStrings(values []json.RawMessage) []string {
	var out []string
	for _, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(v))
	}
	return out
}
