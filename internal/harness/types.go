package harness

import (
	"fmt"

	"github.com/roach88/archivist/internal/document"
)

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Step    int
	Op      string
	Kind    string
	ID      string
	Outcome string
	// Version is the live version after a successful step.
	Version *int64
}

func (e TraceEvent) String() string {
	line := fmt.Sprintf("step %d %s %s/%s %s", e.Step, e.Op, e.Kind, e.ID, e.Outcome)
	if e.Version != nil {
		line += fmt.Sprintf(" v%d", *e.Version)
	}
	return line
}

// CollectionDump is the final content of one collection.
type CollectionDump struct {
	Name string
	Docs []document.Document
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool

	Trace []TraceEvent

	Errors []string

	// Collections holds the live and archive collections of each kind in
	// declaration order.
	Collections []CollectionDump
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
