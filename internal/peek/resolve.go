package peek

import (
	"errors"
	"fmt"

	"github.com/saifalharthi/materialize/internal/timely"
)

var (
	// ErrNotReady is returned when a view cannot yet answer at the
	// requested timestamp and the policy is not to wait.
	ErrNotReady = errors.New("view not ready at requested timestamp")

	// ErrNoSources is returned by EarliestSource resolution for a view
	// with no upstream sources.
	ErrNoSources = errors.New("view has no upstream sources")
)

// ViewState is a snapshot of what the engine knows about a view when a
// peek is resolved.
type ViewState struct {
	// Frontier is the view's output frontier: output at t is final once
	// the frontier is beyond t.
	Frontier timely.Frontier

	// SourceWatermarks holds the current watermark of every source
	// upstream of the view.
	SourceWatermarks map[string]timely.Timestamp

	// Arity is the number of columns of the view's rows.
	Arity int
}

// ReadyAt returns the latest timestamp whose output is final. It reports
// false when no timestamp is final yet.
func (v ViewState) ReadyAt() (timely.Timestamp, bool) {
	if v.Frontier.IsEmpty() {
		return timely.MaxTimestamp, true
	}
	return v.Frontier.Elements()[0].Prev()
}

// EarliestSourceWatermark returns the minimum upstream source watermark.
func (v ViewState) EarliestSourceWatermark() (timely.Timestamp, bool) {
	first := true
	var lowest timely.Timestamp
	for _, w := range v.SourceWatermarks {
		if first || w < lowest {
			lowest, first = w, false
		}
	}
	return lowest, !first
}

// Resolution is the outcome of resolving a peek's timestamp.
type Resolution struct {
	Timestamp timely.Timestamp
	// Ready is false when the view's output at Timestamp is not final
	// yet and the peek must wait or fail.
	Ready bool
}

// WaitPolicy decides what happens to a peek at a timestamp the view
// cannot answer yet.
type WaitPolicy int

const (
	// FailIfNotReady fails the peek with ErrNotReady.
	FailIfNotReady WaitPolicy = iota
	// WaitUntilReady blocks the peek until the view's frontier passes the
	// timestamp or the peek is canceled.
	WaitUntilReady
)

// ResolveTimestamp picks the timestamp a peek reads at. It reads state
// and never blocks.
func ResolveTimestamp(when When, state ViewState) (Resolution, error) {
	switch w := when.(type) {
	case Immediately:
		t, ok := state.ReadyAt()
		if !ok {
			return Resolution{}, fmt.Errorf("immediately: %w", ErrNotReady)
		}
		return Resolution{Timestamp: t, Ready: true}, nil
	case EarliestSource:
		t, ok := state.EarliestSourceWatermark()
		if !ok {
			return Resolution{}, ErrNoSources
		}
		return Resolution{Timestamp: t, Ready: true}, nil
	case AtTimestamp:
		return Resolution{Timestamp: w.T, Ready: state.Frontier.Beyond(w.T)}, nil
	case nil:
		return Resolution{}, errors.New("missing peek policy")
	default:
		return Resolution{}, fmt.Errorf("unknown peek policy %T", when)
	}
}
