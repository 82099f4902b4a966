package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/saifalharthi/materialize/internal/timely"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkExpect compares a step's trace events with its expect clause.
// Without a clause every event must be free of errors.
func checkExpect(n int, step Step, events []TraceEvent) []string {
	var msgs []string
	for _, ev := range events {
		if step.Expect == nil || step.Expect.Error == "" {
			if ev.Error != "" {
				msgs = append(msgs, fmt.Sprintf("step %d (%s %s): unexpected error %s", n, ev.Kind, ev.Name, ev.Error))
			}
		} else if ev.Error != step.Expect.Error {
			msgs = append(msgs, fmt.Sprintf("step %d (%s %s): expected error %s, got %q", n, ev.Kind, ev.Name, step.Expect.Error, ev.Error))
		}
	}
	if step.Expect == nil || len(events) != 1 {
		return msgs
	}

	ev := events[0]
	exp := step.Expect
	if exp.Rows != nil {
		rows, err := toRows(exp.Rows)
		if err != nil {
			return append(msgs, fmt.Sprintf("step %d: expect.rows: %v", n, err))
		}
		want, got := formatRows(rows), ev.Rows
		if len(step.OrderBy) == 0 {
			want, got = sortedCopy(want), sortedCopy(got)
		}
		if !slices.Equal(want, got) {
			msgs = append(msgs, fmt.Sprintf("step %d (peek %s): expected rows %v, got %v", n, ev.Name, want, got))
		}
	}
	if exp.Updates != nil {
		updates, err := ToUpdates(exp.Updates)
		if err != nil {
			return append(msgs, fmt.Sprintf("step %d: expect.updates: %v", n, err))
		}
		if want := formatUpdates(updates); !slices.Equal(want, ev.Updates) {
			msgs = append(msgs, fmt.Sprintf("step %d (%s %s): expected updates %v, got %v", n, ev.Kind, ev.Name, want, ev.Updates))
		}
	}
	if exp.Timestamp != nil {
		if ev.Timestamp == nil || uint64(*ev.Timestamp) != *exp.Timestamp {
			msgs = append(msgs, fmt.Sprintf("step %d (%s %s): expected timestamp %d, got %s", n, ev.Kind, ev.Name, *exp.Timestamp, formatTimestamp(ev.Timestamp)))
		}
	}
	return msgs
}

func formatTimestamp(t *timely.Timestamp) string {
	if t == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *t)
}

// evaluateAssertions runs all assertions against the engine's final state.
// Returns a list of error messages for failed assertions.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertRows, AssertRowCount:
		rows, err := h.engine.Materialize(ctx, a.View, timely.Timestamp(a.At))
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s readable at %d", a.View, a.At), Actual: err.Error()}
		}
		got := sortedCopy(formatRows(rows))
		if a.Type == AssertRowCount {
			if len(got) != a.Count {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d rows in %s at %d", a.Count, a.View, a.At), Actual: fmt.Sprintf("%d rows", len(got))}
			}
			return nil
		}
		wantRows, err := toRows(a.Rows)
		if err != nil {
			return fmt.Errorf("assertion %s: %w", a.Type, err)
		}
		want := sortedCopy(formatRows(wantRows))
		if !slices.Equal(want, got) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s at %d = %v", a.View, a.At, want), Actual: fmt.Sprintf("%v", got)}
		}

	case AssertWatermark:
		w, err := h.engine.Watermark(a.Source)
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("source %s", a.Source), Actual: err.Error()}
		}
		if uint64(w) != a.Value {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s at %d", a.Source, a.Value), Actual: fmt.Sprintf("%d", w)}
		}

	case AssertFrontier:
		state, err := h.engine.ViewState(ctx, a.View)
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("view %s", a.View), Actual: err.Error()}
		}
		want := make([]timely.Timestamp, len(a.Elements))
		for i, e := range a.Elements {
			want[i] = timely.Timestamp(e)
		}
		if got := state.Frontier; !got.Equal(timely.NewFrontier(want...)) {
			return &AssertionError{Type: a.Type, Expected: timely.NewFrontier(want...).String(), Actual: got.String()}
		}

	case AssertRejected:
		if n := h.rejectedTotal(); n != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d rejected events", a.Count), Actual: fmt.Sprintf("%d", n)}
		}

	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}
