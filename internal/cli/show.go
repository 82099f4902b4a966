package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// ShowRecord is one stored dataflow in show output.
type ShowRecord struct {
	Seq         int64         `json:"seq"`
	Kind        dataflow.Kind `json:"kind"`
	Name        string        `json:"name"`
	Fingerprint string        `json:"fingerprint"`
}

// ShowAsOf is one entry of a view's as-of history.
type ShowAsOf struct {
	Seq      int64    `json:"seq"`
	Frontier []uint64 `json:"frontier"`
}

// ShowDetail is the output for a single named dataflow.
type ShowDetail struct {
	ShowRecord
	Definition json.RawMessage `json:"definition"`
	AsOf       []ShowAsOf      `json:"as_of,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show the dataflows stored in a database",
		Long: `List the dataflows stored in a database in sequence order.

With a name, print that dataflow's canonical definition and, for a
view, its as-of history oldest first.

Examples:
  mzcore show --db ./catalog.db
  mzcore show --db ./catalog.db big_orders --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runShow(opts, name, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.List(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list dataflows", err)
	}
	listed := make([]ShowRecord, len(records))
	for i, rec := range records {
		listed[i] = ShowRecord{Seq: rec.Seq, Kind: rec.Kind, Name: rec.Name, Fingerprint: rec.Fingerprint}
	}

	if name == "" {
		if formatter.IsJSON() {
			return formatter.Success(listed)
		}
		if len(listed) == 0 {
			fmt.Fprintln(formatter.Writer, "No dataflows stored.")
			return nil
		}
		for _, rec := range listed {
			fmt.Fprintf(formatter.Writer, "%4d  %-6s  %-24s  %.12s\n", rec.Seq, rec.Kind, rec.Name, rec.Fingerprint)
		}
		return nil
	}

	detail, err := showDetail(cmd, st, listed, name)
	if err != nil {
		if store.IsNotFound(err) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no dataflow named %q", name), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read dataflow", err)
	}
	if formatter.IsJSON() {
		return formatter.Success(detail)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s %s (seq %d)\n", detail.Kind, detail.Name, detail.Seq)
	fmt.Fprintf(w, "fingerprint: %s\n", detail.Fingerprint)
	fmt.Fprintf(w, "definition: %s\n", detail.Definition)
	for _, a := range detail.AsOf {
		fmt.Fprintf(w, "as_of @%d: %v\n", a.Seq, a.Frontier)
	}
	return nil
}

func showDetail(cmd *cobra.Command, st *store.Store, listed []ShowRecord, name string) (ShowDetail, error) {
	ctx := cmd.Context()
	d, err := st.ReadDataflow(ctx, name)
	if err != nil {
		return ShowDetail{}, err
	}

	var detail ShowDetail
	for _, rec := range listed {
		if rec.Name == name {
			detail.ShowRecord = rec
		}
	}

	if v, ok := d.(dataflow.View); ok {
		// the stored definition excludes the as-of, which is listed separately
		d = v.WithAsOf(nil)
	}
	raw, err := dataflow.Marshal(d)
	if err != nil {
		return ShowDetail{}, err
	}
	if detail.Definition, err = repr.Canonicalize(raw); err != nil {
		return ShowDetail{}, err
	}

	if d.Kind() == dataflow.KindView {
		history, err := st.AsOfHistory(ctx, name)
		if err != nil {
			return ShowDetail{}, err
		}
		for _, h := range history {
			elems := []uint64{}
			for _, t := range h.Frontier.Elements() {
				elems = append(elems, uint64(t))
			}
			detail.AsOf = append(detail.AsOf, ShowAsOf{Seq: h.Seq, Frontier: elems})
		}
	}
	return detail, nil
}
