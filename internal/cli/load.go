package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saifalharthi/materialize/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database string
}

// LoadResult holds the outcome of persisting a catalog.
type LoadResult struct {
	Database  string `json:"database"`
	Dataflows int    `json:"dataflows"`
	FirstSeq  int64  `json:"first_seq"`
	NextSeq   int64  `json:"next_seq"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <catalog-dir>",
		Short: "Compile a catalog and persist it",
		Long: `Compile the CUE catalog in a directory and write every dataflow to
a SQLite database, creating it if it doesn't exist.

Dataflows are written in build order with consecutive sequence numbers
following the last one used by the database. Loading an unchanged
catalog again is a no-op apart from tighter as-of frontiers; a changed
definition under an existing name is rejected.

Example:
  mzcore load --db ./catalog.db ./catalog`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLoad(opts *LoadOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions)
	ctx := cmd.Context()

	loaded, errs := LoadCatalog(dir)
	if loaded == nil {
		return formatter.Fail(ExitCommandError, errs[0].Code, errs[0].Message, nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	logger.Debug("catalog compiled", "dir", dir, "dataflows", len(loaded.Dataflows))

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	last, err := st.LastSeq(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read database", err)
	}
	next, err := st.SaveCatalog(ctx, loaded.Registry, last+1)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to save catalog", err)
	}
	logger.Info("catalog saved", "db", opts.Database, "first_seq", last+1, "next_seq", next)

	result := LoadResult{
		Database:  opts.Database,
		Dataflows: len(loaded.Dataflows),
		FirstSeq:  last + 1,
		NextSeq:   next,
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Loaded %d dataflows into %s\n", result.Dataflows, result.Database)
	return nil
}
