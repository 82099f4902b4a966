package cli

import (
	"github.com/saifalharthi/materialize/internal/catalog"
	"github.com/saifalharthi/materialize/internal/compiler"
	"github.com/saifalharthi/materialize/internal/dataflow"
)

// LoadedCatalog is a compiled catalog directory.
type LoadedCatalog struct {
	Dataflows []dataflow.Dataflow
	Registry  *catalog.Registry
	FileCount int
}

// LoadCatalog compiles every CUE file in dir and validates the result as
// a whole. Compile errors are collected, not fail-fast; all problems come
// back as validation errors sorted by field. The registry is only built
// when there are none.
func LoadCatalog(dir string) (*LoadedCatalog, []compiler.ValidationError) {
	res, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if res == nil {
		return nil, toValidationErrors(errs)
	}
	if len(errs) > 0 {
		return &LoadedCatalog{FileCount: res.FileCount}, toValidationErrors(errs)
	}

	if verrs := compiler.Validate(res.Dataflows); len(verrs) > 0 {
		return &LoadedCatalog{Dataflows: res.Dataflows, FileCount: res.FileCount}, verrs
	}

	reg := catalog.NewRegistry()
	if err := reg.RegisterAll(res.Dataflows); err != nil {
		return nil, []compiler.ValidationError{compiler.ToValidationError(err)}
	}
	return &LoadedCatalog{Dataflows: res.Dataflows, Registry: reg, FileCount: res.FileCount}, nil
}

func toValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, len(errs))
	for i, err := range errs {
		out[i] = compiler.ToValidationError(err)
	}
	return out
}
