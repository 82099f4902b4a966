package timely

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/saifalharthi/materialize/internal/repr"
)

// Timestamp is a logical clock value. Timestamps are totally ordered and
// monotonically non-decreasing per source.
type Timestamp uint64

// MaxTimestamp is the largest representable timestamp.
const MaxTimestamp = Timestamp(math.MaxUint64)

// Next returns the following timestamp, saturating at MaxTimestamp.
func (t Timestamp) Next() Timestamp {
	if t == MaxTimestamp {
		return t
	}
	return t + 1
}

// Prev returns the preceding timestamp and false if t is zero.
func (t Timestamp) Prev() (Timestamp, bool) {
	if t == 0 {
		return 0, false
	}
	return t - 1, true
}

// Diff is a signed multiplicity delta. Positive diffs add weight to a
// row, negative diffs retract it.
type Diff int64

// Add returns d + o.
func (d Diff) Add(o Diff) Diff {
	return d + o
}

// Neg returns the retraction of d.
func (d Diff) Neg() Diff {
	return -d
}

// IsZero reports whether the diff carries no weight.
func (d Diff) IsZero() bool {
	return d == 0
}

// Update is the atomic unit of change: a row, the time it changes, and
// how its multiplicity changes. Updates are values; never mutate the Row
// after construction.
type Update struct {
	Row       repr.Row  `json:"row"`
	Timestamp Timestamp `json:"timestamp"`
	Diff      Diff      `json:"diff"`
}

// NewUpdate creates an update.
func NewUpdate(row repr.Row, ts Timestamp, diff Diff) Update {
	return Update{Row: row, Timestamp: ts, Diff: diff}
}

// String formats the update for diagnostics.
func (u Update) String() string {
	return fmt.Sprintf("%s@%d%+d", u.Row, u.Timestamp, u.Diff)
}

// CompareUpdates orders updates by timestamp, then row.
func CompareUpdates(a, b Update) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return repr.CompareRows(a.Row, b.Row)
}

// Consolidate sums the diffs of updates with identical (row, timestamp),
// drops those that cancel out, and returns them ordered by timestamp then
// row. The input slice is not modified.
func Consolidate(updates []Update) []Update {
	sorted := slices.Clone(updates)
	slices.SortStableFunc(sorted, CompareUpdates)

	out := make([]Update, 0, len(sorted))
	for _, u := range sorted {
		if n := len(out); n > 0 && CompareUpdates(out[n-1], u) == 0 {
			out[n-1].Diff = out[n-1].Diff.Add(u.Diff)
			continue
		}
		out = append(out, u)
	}
	return slices.DeleteFunc(out, func(u Update) bool { return u.Diff.IsZero() })
}

// RowCount is a row with its accumulated multiplicity.
type RowCount struct {
	Row   repr.Row
	Count Diff
}

// Accumulate computes each row's membership as of t: the running sum of
// every diff at or before t. Rows whose sum is zero are omitted; rows
// with a negative sum are reported so callers can surface them.
// Results are ordered by row.
func Accumulate(updates []Update, t Timestamp) []RowCount {
	atOrBefore := make([]Update, 0, len(updates))
	for _, u := range updates {
		if u.Timestamp <= t {
			atOrBefore = append(atOrBefore, Update{Row: u.Row, Diff: u.Diff})
		}
	}
	consolidated := Consolidate(atOrBefore)

	out := make([]RowCount, 0, len(consolidated))
	for _, u := range consolidated {
		out = append(out, RowCount{Row: u.Row, Count: u.Diff})
	}
	return out
}

// Expand turns accumulated counts into a multiset of rows, repeating each
// row Count times. Negative counts are an error: a row cannot be present
// fewer than zero times.
func Expand(counts []RowCount) ([]repr.Row, error) {
	var rows []repr.Row
	for _, rc := range counts {
		if rc.Count < 0 {
			return nil, fmt.Errorf("row %s has negative multiplicity %d", rc.Row, rc.Count)
		}
		for i := Diff(0); i < rc.Count; i++ {
			rows = append(rows, rc.Row)
		}
	}
	return rows, nil
}

// Input is a signal sent to a source: either a batch of updates or a
// watermark announcement. Exactly one of the two is set.
type Input struct {
	Updates   []Update   `json:"updates,omitempty"`
	Watermark *Timestamp `json:"watermark,omitempty"`
}

// UpdatesInput wraps a batch of updates.
func UpdatesInput(updates ...Update) Input {
	return Input{Updates: updates}
}

// WatermarkInput wraps a watermark announcement.
func WatermarkInput(t Timestamp) Input {
	return Input{Watermark: &t}
}

// IsWatermark reports whether the input is a watermark announcement.
func (in Input) IsWatermark() bool {
	return in.Watermark != nil
}
