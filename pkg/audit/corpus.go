package audit

import (
	"strings"

	"conductor/pkg/model"
)

// corpus is a lowercased text blob used for term matching, with per-source
// attribution kept so gaps can cite evidence.
type corpus struct {
	full    string
	sources []corpusSource
}

type corpusSource struct {
	ref  string // decision or task id
	text string // lowercased
}

// buildCorpus flattens decision titles/rationales and task
// titles/goals/acceptance-criteria into one lowercased corpus.
func buildCorpus(decisions []*model.Decision, tasks []*model.Task) *corpus {
	c := &corpus{}
	var b strings.Builder

	add := func(ref string, parts ...string) {
		text := strings.ToLower(strings.Join(parts, " "))
		c.sources = append(c.sources, corpusSource{ref: ref, text: text})
		b.WriteString(text)
		b.WriteString("\n")
	}

	for _, d := range decisions {
		add(d.ID, d.Title, d.Rationale)
	}
	for _, t := range tasks {
		parts := []string{t.Title, t.Goal}
		parts = append(parts, t.AcceptanceCriteria...)
		add(t.ID, parts...)
	}

	c.full = b.String()
	return c
}

// containsAny reports whether any term appears in the corpus, returning the
// first matching term.
func (c *corpus) containsAny(terms []string) (string, bool) {
	for _, term := range terms {
		if strings.Contains(c.full, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}

// evidenceFor lists up to three source refs whose text contains the term.
func (c *corpus) evidenceFor(term string) []string {
	term = strings.ToLower(term)
	var refs []string
	for _, src := range c.sources {
		if strings.Contains(src.text, term) {
			refs = append(refs, src.ref)
			if len(refs) == 3 {
				break
			}
		}
	}
	return refs
}
