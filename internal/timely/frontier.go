package timely

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Frontier is an antichain of timestamps: a boundary in the timestamp
// partial order. Timestamps are totally ordered, so a frontier holds at
// most one minimal element, but callers must not rely on that and should
// use the comparison methods rather than inspecting elements.
//
// The empty frontier is "closed": it is beyond every timestamp and no
// further updates can arrive behind it.
//
// A View's as-of is a *Frontier; nil means no restriction was stated, which
// is distinct from a frontier at zero.
type Frontier struct {
	elems []Timestamp
}

// NewFrontier builds the antichain of the minimal elements of ts.
// With no arguments it returns the empty (closed) frontier.
func NewFrontier(ts ...Timestamp) Frontier {
	if len(ts) == 0 {
		return Frontier{}
	}
	return Frontier{elems: []Timestamp{slices.Min(ts)}}
}

// MinimumFrontier returns the frontier at timestamp 0, which is beyond
// nothing.
func MinimumFrontier() Frontier {
	return NewFrontier(0)
}

// Elements returns a copy of the frontier's elements in ascending order.
func (f Frontier) Elements() []Timestamp {
	return slices.Clone(f.elems)
}

// IsEmpty reports whether the frontier is closed.
func (f Frontier) IsEmpty() bool {
	return len(f.elems) == 0
}

// LessEqual reports whether every element of the frontier is <= t.
func (f Frontier) LessEqual(t Timestamp) bool {
	for _, e := range f.elems {
		if e > t {
			return false
		}
	}
	return true
}

// Beyond reports whether every element of the frontier is > t: no update
// at or before t can still arrive, so output at t may be finalized.
func (f Frontier) Beyond(t Timestamp) bool {
	for _, e := range f.elems {
		if e <= t {
			return false
		}
	}
	return true
}

// Meet merges two frontiers into the antichain that is at or before
// both: the frontier of a computation with both as inputs.
func (f Frontier) Meet(o Frontier) Frontier {
	all := append(slices.Clone(f.elems), o.elems...)
	return NewFrontier(all...)
}

// MeetAll merges any number of frontiers. With no inputs it returns the
// empty frontier, the identity of Meet.
func MeetAll(fs ...Frontier) Frontier {
	out := Frontier{}
	for _, f := range fs {
		out = out.Meet(f)
	}
	return out
}

// Dominates reports whether f is at or beyond o: every element of f is
// >= some element of o. The empty frontier dominates every frontier; no
// non-empty frontier dominates the empty one.
func (f Frontier) Dominates(o Frontier) bool {
	for _, e := range f.elems {
		covered := false
		for _, oe := range o.elems {
			if oe <= e {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Equal reports whether both frontiers contain the same elements.
func (f Frontier) Equal(o Frontier) bool {
	return slices.Equal(f.elems, o.elems)
}

// String formats the frontier, e.g. {5} or {} for the closed frontier.
func (f Frontier) String() string {
	parts := make([]string, len(f.elems))
	for i, e := range f.elems {
		parts[i] = fmt.Sprintf("%d", e)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the frontier as an array of timestamps.
func (f Frontier) MarshalJSON() ([]byte, error) {
	elems := f.elems
	if elems == nil {
		elems = []Timestamp{}
	}
	return json.Marshal(elems)
}

// UnmarshalJSON implements json.Unmarshaler. Elements are reduced to
// their antichain.
func (f *Frontier) UnmarshalJSON(data []byte) error {
	var elems []Timestamp
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("frontier: %w", err)
	}
	*f = NewFrontier(elems...)
	return nil
}

// CanFinalize reports whether output at t is final given the frontiers of
// every input: true iff each input frontier is beyond t. With no inputs
// nothing can change and output is final.
func CanFinalize(inputs []Frontier, t Timestamp) bool {
	for _, in := range inputs {
		if !in.Beyond(t) {
			return false
		}
	}
	return true
}

// Tighten returns next if it dominates current, or a ProtocolError with
// ErrCodeFrontierLoosened otherwise. A nil current accepts any frontier.
func Tighten(current *Frontier, next Frontier) (Frontier, error) {
	if current == nil || next.Dominates(*current) {
		return next, nil
	}
	pe := &ProtocolError{Code: ErrCodeFrontierLoosened}
	if cur := current.elems; len(cur) > 0 {
		pe.Current = cur[0]
	}
	if len(next.elems) > 0 {
		pe.Got = next.elems[0]
	}
	return Frontier{}, pe
}
