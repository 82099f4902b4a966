package engine

import (
	"github.com/google/btree"

	"github.com/saifalharthi/materialize/internal/timely"
)

// trace is the consolidated update history of one source, ordered by
// timestamp then row. At most one entry exists per (row, timestamp).
type trace struct {
	tracker *timely.WatermarkTracker
	updates *btree.BTreeG[timely.Update]
}

func newTrace(source string) *trace {
	return &trace{
		tracker: timely.NewWatermarkTracker(source),
		updates: btree.NewG(16, func(a, b timely.Update) bool {
			return timely.CompareUpdates(a, b) < 0
		}),
	}
}

// insert adds u's diff to the entry at (u.Row, u.Timestamp), removing the
// entry when the diffs cancel.
func (tr *trace) insert(u timely.Update) {
	if prev, ok := tr.updates.Get(u); ok {
		u.Diff = prev.Diff.Add(u.Diff)
	}
	if u.Diff.IsZero() {
		tr.updates.Delete(u)
		return
	}
	tr.updates.ReplaceOrInsert(u)
}

// at returns every update at or before t.
func (tr *trace) at(t timely.Timestamp) []timely.Update {
	var out []timely.Update
	tr.updates.Ascend(func(u timely.Update) bool {
		if u.Timestamp > t {
			return false
		}
		out = append(out, u)
		return true
	})
	return out
}

// times returns the distinct timestamps in [lo, hi) at which the trace
// changes, ascending.
func (tr *trace) times(lo, hi timely.Timestamp) []timely.Timestamp {
	var out []timely.Timestamp
	if lo >= hi {
		return out
	}
	tr.updates.AscendRange(timely.Update{Timestamp: lo}, timely.Update{Timestamp: hi}, func(u timely.Update) bool {
		if n := len(out); n == 0 || out[n-1] != u.Timestamp {
			out = append(out, u.Timestamp)
		}
		return true
	})
	return out
}

// Len returns the number of distinct (row, timestamp) entries.
func (tr *trace) Len() int {
	return tr.updates.Len()
}
