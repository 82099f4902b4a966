package finishing

import (
	"encoding/json"
	"fmt"

	"github.com/saifalharthi/materialize/internal/expr"
)

type finishingJSON struct {
	Filter  []expr.ScalarExpr  `json:"filter"`
	OrderBy []expr.ColumnOrder `json:"order_by"`
	Limit   *int               `json:"limit"`
	Offset  int                `json:"offset"`
	Project []int              `json:"project"`
}

// MarshalJSON implements json.Marshaler for RowSetFinishing.
func (f RowSetFinishing) MarshalJSON() ([]byte, error) {
	return json.Marshal(finishingJSON(f))
}

// UnmarshalJSON implements json.Unmarshaler for RowSetFinishing.
func (f *RowSetFinishing) UnmarshalJSON(data []byte) error {
	var raw struct {
		Filter  json.RawMessage    `json:"filter"`
		OrderBy []expr.ColumnOrder `json:"order_by"`
		Limit   *int               `json:"limit"`
		Offset  int                `json:"offset"`
		Project []int              `json:"project"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("finishing: %w", err)
	}
	var filter []expr.ScalarExpr
	if len(raw.Filter) > 0 {
		var err error
		filter, err = expr.UnmarshalScalars(raw.Filter)
		if err != nil {
			return fmt.Errorf("finishing filter: %w", err)
		}
	}
	*f = RowSetFinishing{
		Filter:  filter,
		OrderBy: raw.OrderBy,
		Limit:   raw.Limit,
		Offset:  raw.Offset,
		Project: raw.Project,
	}
	return nil
}
