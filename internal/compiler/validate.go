package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/saifalharthi/materialize/internal/catalog"
	"github.com/saifalharthi/materialize/internal/dataflow"
)

// Validation error codes (E100-E199)
const (
	ErrCompileFailed      = "E100" // compile error without a more specific code
	ErrInvalidDesc        = "E101" // malformed desc or column type
	ErrInvalidConnector   = "E102" // missing or malformed connector
	ErrInvalidExpr        = "E103" // expression does not decode or type check
	ErrInvalidAsOf        = "E104" // malformed as-of frontier
	ErrInvalidDataflow    = "E105" // dataflow fails structural validation
	ErrUnknownDependency  = "E110" // reads a relation not in the catalog
	ErrReadsSink          = "E111" // reads a sink, which has no rows of its own
	ErrDuplicateName      = "E112" // name declared more than once
	ErrDependencyCycle    = "E113" // dataflows read each other in a cycle
	ErrInvalidAvroSchema  = "E114" // raw_schema is not a usable Avro record
	ErrTailNotDeclarative = "E115" // tail sink declared in a file
)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a whole compiled catalog and returns all errors found
// (does not fail-fast): per-dataflow validation, dependencies that are
// missing or are sinks, and dependency cycles.
func Validate(ds []dataflow.Dataflow) []ValidationError {
	errs := []ValidationError{}
	byName := make(map[string]dataflow.Dataflow, len(ds))

	for _, d := range ds {
		if _, dup := byName[d.Name()]; dup {
			errs = append(errs, ValidationError{
				Field:   d.Name(),
				Message: "name declared more than once",
				Code:    ErrDuplicateName,
			})
			continue
		}
		byName[d.Name()] = d
		if err := dataflow.Validate(d); err != nil {
			errs = append(errs, ValidationError{
				Field:   d.Name(),
				Message: err.Error(),
				Code:    ErrInvalidDataflow,
			})
		}
	}

	for _, d := range ds {
		for _, dep := range d.Uses() {
			target, ok := byName[dep]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					Field:   d.Name(),
					Message: fmt.Sprintf("reads unknown relation %q", dep),
					Code:    ErrUnknownDependency,
				})
			case target.Kind() == dataflow.KindSink:
				errs = append(errs, ValidationError{
					Field:   d.Name(),
					Message: fmt.Sprintf("reads sink %q", dep),
					Code:    ErrReadsSink,
				})
			}
		}
	}

	for _, w := range catalog.AnalyzeCycles(ds) {
		errs = append(errs, ValidationError{
			Field:   w.Path[0],
			Message: w.Message,
			Code:    ErrDependencyCycle,
		})
	}

	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return errs
}

// ToValidationError converts a compile or load error into a
// ValidationError carrying its code and line.
func ToValidationError(err error) ValidationError {
	var cErr *CompileError
	if errors.As(err, &cErr) {
		ve := ValidationError{
			Field:   cErr.Field,
			Message: cErr.Message,
			Code:    MapFieldToErrorCode(cErr.Field),
		}
		if cErr.Pos.IsValid() {
			ve.Line = cErr.Pos.Line()
		}
		return ve
	}
	var lErr *LoadError
	if errors.As(err, &lErr) {
		ve := ValidationError{Field: "load", Message: lErr.Message, Code: lErr.Code}
		if lErr.Pos.IsValid() {
			ve.Line = lErr.Pos.Line()
		}
		return ve
	}
	return ValidationError{Field: "catalog", Message: err.Error(), Code: ErrCompileFailed}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "desc", "type", "name":
		return ErrInvalidDesc
	case "connector", "kafka", "local.id", "addr", "topic", "schema_id", "schema_registry_url", "from":
		return ErrInvalidConnector
	case "raw_schema":
		return ErrInvalidAvroSchema
	case "expr":
		return ErrInvalidExpr
	case "as_of":
		return ErrInvalidAsOf
	case "tail":
		return ErrTailNotDeclarative
	case "source", "sink", "view":
		return ErrInvalidDataflow
	default:
		if strings.HasPrefix(field, "desc[") {
			return ErrInvalidDesc
		}
		return ErrCompileFailed
	}
}
