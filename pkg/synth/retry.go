package synth

import "strings"

// ruleReminders restate the output contract per request kind, appended to
// every retry message so the generator re-reads the rules it broke.
var ruleReminders = map[RequestKind]string{
	KindSynthesis: "Task ids must be T01..Tnn contiguous from 1, every depends_on " +
		"entry must name a task in the same response, every task needs a milestone " +
		"that exists, and the dependency graph must be acyclic.",
	KindDecomposition: "Subtask ids must be <parent>.1, <parent>.2, ... contiguous " +
		"from 1, the union of subtask decision_refs and file lists must cover the " +
		"parent's, and no subtask may depend on itself.",
}

// BuildRetryMessage assembles the correction prompt for a failed attempt:
// the previous output verbatim, the specific errors and warnings, and a
// reminder of the rules.
func BuildRetryMessage(kind RequestKind, previousOutput string, errs, warnings []string) string {
	var b strings.Builder
	b.WriteString("Your previous response failed validation. Produce a corrected response.\n\n")
	b.WriteString("Previous response:\n")
	b.WriteString(previousOutput)
	b.WriteString("\n\nErrors:\n")
	for _, e := range errs {
		b.WriteString("- " + e + "\n")
	}
	if len(warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	b.WriteString("\nRules: " + ruleReminders[kind] + "\n")
	return b.String()
}
