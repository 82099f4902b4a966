package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saifalharthi/materialize/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Dataflows int                        `json:"dataflows"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a catalog without persisting it",
		Long: `Compile the CUE catalog in a directory and check it as a whole:
every dataflow is well formed, every relation a view or sink reads
exists and is not a sink, and no dataflows read each other in a cycle.

All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, errs := LoadCatalog(dir)
	if loaded == nil {
		// the directory could not be loaded at all
		return formatter.Fail(ExitCommandError, errs[0].Code, errs[0].Message, nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	for _, d := range loaded.Dataflows {
		formatter.VerboseLog("Validated %s %s", d.Kind(), d.Name())
	}
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Dataflows: len(loaded.Dataflows)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid (%d dataflows)\n", len(loaded.Dataflows))
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.IsJSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failure
}
