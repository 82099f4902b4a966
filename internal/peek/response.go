package peek

import (
	"encoding/json"
	"errors"

	"github.com/saifalharthi/materialize/internal/repr"
)

// ErrCanceled is returned when rows are requested from a canceled peek.
var ErrCanceled = errors.New("peek canceled")

// Response is the terminal outcome of a peek.
//
// This is a sealed interface - only types in this package implement it.
type Response interface {
	response() // Marker method - seals interface to this package
}

// Rows carries the finished result.
type Rows struct {
	Rows []repr.Row
}

func (Rows) response() {}

// Canceled marks a peek that was canceled before it produced rows.
type Canceled struct{}

func (Canceled) response() {}

// RowsOf extracts the rows of a response, or returns ErrCanceled.
func RowsOf(resp Response) ([]repr.Row, error) {
	switch r := resp.(type) {
	case Rows:
		return r.Rows, nil
	case Canceled:
		return nil, ErrCanceled
	default:
		return nil, errors.New("peek has no response")
	}
}

// MarshalJSON encodes rows as {"rows": [...]}.
func (r Rows) MarshalJSON() ([]byte, error) {
	rows := r.Rows
	if rows == nil {
		rows = []repr.Row{}
	}
	return json.Marshal(map[string][]repr.Row{"rows": rows})
}

// MarshalJSON encodes Canceled as the bare tag.
func (Canceled) MarshalJSON() ([]byte, error) {
	return json.Marshal("canceled")
}
