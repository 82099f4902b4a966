package peek

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/saifalharthi/materialize/internal/timely"
)

// When chooses the timestamp a peek reads at.
//
// This is a sealed interface - only types in this package implement it.
type When interface {
	when() // Marker method - seals interface to this package
}

// Immediately reads at the latest timestamp the view can answer without
// waiting.
type Immediately struct{}

func (Immediately) when() {}

// EarliestSource reads at the minimum current watermark of the sources
// upstream of the view, snapshotted when the peek is resolved.
type EarliestSource struct{}

func (EarliestSource) when() {}

// AtTimestamp reads at T.
type AtTimestamp struct {
	T timely.Timestamp
}

func (AtTimestamp) when() {}

const (
	tagImmediately    = "immediately"
	tagEarliestSource = "earliest_source"
	tagAtTimestamp    = "at_timestamp"
)

// MarshalJSON encodes Immediately as the bare tag.
func (Immediately) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagImmediately)
}

// MarshalJSON encodes EarliestSource as the bare tag.
func (EarliestSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagEarliestSource)
}

// MarshalJSON encodes AtTimestamp as {"at_timestamp": t}.
func (a AtTimestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]timely.Timestamp{tagAtTimestamp: a.T})
}

// UnmarshalWhen decodes a timing policy produced by MarshalJSON.
func UnmarshalWhen(data []byte) (When, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return nil, err
		}
		switch tag {
		case tagImmediately:
			return Immediately{}, nil
		case tagEarliestSource:
			return EarliestSource{}, nil
		default:
			return nil, fmt.Errorf("unknown peek policy %q", tag)
		}
	}

	var m map[string]timely.Timestamp
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("peek policy: %w", err)
	}
	t, ok := m[tagAtTimestamp]
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("peek policy must be a tag or {%q: t}", tagAtTimestamp)
	}
	return AtTimestamp{T: t}, nil
}

// ParseWhen parses the command-line form of a policy: "immediately",
// "earliest_source", or a decimal timestamp.
func ParseWhen(s string) (When, error) {
	switch s {
	case tagImmediately, "":
		return Immediately{}, nil
	case tagEarliestSource:
		return EarliestSource{}, nil
	}
	t, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("peek policy %q: want %s, %s, or a timestamp", s, tagImmediately, tagEarliestSource)
	}
	return AtTimestamp{T: timely.Timestamp(t)}, nil
}
