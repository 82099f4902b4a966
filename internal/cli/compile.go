package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/repr"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledDataflow is one dataflow in compile output.
type CompiledDataflow struct {
	Name        string          `json:"name"`
	Kind        dataflow.Kind   `json:"kind"`
	Fingerprint string          `json:"fingerprint"`
	Definition  json.RawMessage `json:"definition"`
}

// CompilationResult holds the compiled catalog in build order.
type CompilationResult struct {
	Dataflows []CompiledDataflow `json:"dataflows"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir>",
		Short: "Compile a CUE catalog to canonical JSON",
		Long: `Compile the CUE catalog in a directory to canonical JSON.

Each dataflow is printed in build order with its fingerprint, the
SHA-256 of its canonical encoding. Recompiling an unchanged catalog
yields byte-identical output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, errs := LoadCatalog(dir)
	if loaded == nil {
		return formatter.Fail(ExitCommandError, errs[0].Code, errs[0].Message, nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	formatter.VerboseLog("Compiled %d dataflow(s) from %d file(s)", len(loaded.Dataflows), loaded.FileCount)

	result, err := compileResult(loaded)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "encode catalog", err)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "encode catalog", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "write output", err)
		}
		if formatter.IsJSON() {
			return formatter.Success(map[string]any{"output": opts.Output, "dataflows": len(result.Dataflows)})
		}
		fmt.Fprintf(formatter.Writer, "✓ Wrote %d dataflows to %s\n", len(result.Dataflows), opts.Output)
		return nil
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	for _, d := range result.Dataflows {
		fmt.Fprintf(formatter.Writer, "%s %s %s\n", d.Kind, d.Name, d.Fingerprint)
	}
	return nil
}

func compileResult(loaded *LoadedCatalog) (CompilationResult, error) {
	result := CompilationResult{Dataflows: []CompiledDataflow{}}
	for _, name := range loaded.Registry.BuildOrder() {
		d, _ := loaded.Registry.Get(name)
		raw, err := dataflow.Marshal(d)
		if err != nil {
			return result, fmt.Errorf("%s: %w", name, err)
		}
		canonical, err := repr.Canonicalize(raw)
		if err != nil {
			return result, fmt.Errorf("%s: %w", name, err)
		}
		fp, err := dataflow.Fingerprint(d)
		if err != nil {
			return result, fmt.Errorf("%s: %w", name, err)
		}
		result.Dataflows = append(result.Dataflows, CompiledDataflow{
			Name:        d.Name(),
			Kind:        d.Kind(),
			Fingerprint: fp,
			Definition:  canonical,
		})
	}
	return result, nil
}
