// Package synth drives the bounded generate-validate-retry loop that turns
// externally generated JSON into stored tasks. Two flavors share the design:
// whole-queue synthesis from the decision set, and decomposition of one
// parent task into subtasks. The generator itself lives outside this module;
// synth only composes context, parses output defensively, validates, and
// stores atomically.
package synth

import (
	"context"
	"fmt"
	"strings"
)

// RequestKind selects which output contract the generator must honor.
type RequestKind string

const (
	KindSynthesis     RequestKind = "synthesis"
	KindDecomposition RequestKind = "decomposition"
)

// Request is everything a generator needs to produce one JSON payload.
// On retries, RetryMessage carries the previous output verbatim plus the
// validation errors, so the generator can self-correct.
type Request struct {
	Kind         RequestKind `json:"kind"`
	Context      *Context    `json:"context"`
	Attempt      int         `json:"attempt"`
	RetryMessage string      `json:"retry_message,omitempty"`
}

// Generator produces JSON text for a request. Implementations wrap whatever
// produces the text (a model API, a human, a fixture); the pipeline never
// sees anything but the returned string.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// RetryExhaustedError reports a loop that burned its whole retry budget.
// It carries the final validation errors and the last raw output so the
// caller can inspect or salvage without re-running generation.
type RetryExhaustedError struct {
	LastOutput string
	Errors     []string
	Attempts   int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %s", e.Attempts, strings.Join(e.Errors, "; "))
}
