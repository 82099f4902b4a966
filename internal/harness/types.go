package harness

import "github.com/saifalharthi/materialize/internal/timely"

// TraceEvent records one step and what it observed.
type TraceEvent struct {
	Step      int               `json:"step"`
	Kind      string            `json:"kind"` // "feed", "peek", "tail" or "recv"
	Name      string            `json:"name"`
	Timestamp *timely.Timestamp `json:"timestamp,omitempty"`
	Rows      []string          `json:"rows,omitempty"`
	Updates   []string          `json:"updates,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in step order. Parallel feeds
	// appear in declaration order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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
