package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/saifalharthi/materialize/internal/engine"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/finishing"
	"github.com/saifalharthi/materialize/internal/harness"
	"github.com/saifalharthi/materialize/internal/peek"
	"github.com/saifalharthi/materialize/internal/store"
	"github.com/saifalharthi/materialize/internal/timely"
)

// PeekOptions holds flags for the peek command.
type PeekOptions struct {
	*RootOptions
	Database string
	Inputs   string   // YAML file of source inputs
	When     string   // "immediately", "earliest_source" or a timestamp
	OrderBy  []string // "col" or "col:desc"
	Limit    int      // negative means no limit
	Offset   int
	Wait     bool
	Timeout  time.Duration
}

// FeedInput is one entry of a peek inputs file: updates for a source,
// then an optional watermark.
type FeedInput struct {
	Source    string               `yaml:"source"`
	Updates   []harness.UpdateSpec `yaml:"updates,omitempty"`
	Watermark *uint64              `yaml:"watermark,omitempty"`
}

// PeekResult holds the outcome of a peek.
type PeekResult struct {
	View      string           `json:"view"`
	Timestamp timely.Timestamp `json:"timestamp"`
	Response  peek.Response    `json:"response"`
}

// NewPeekCommand creates the peek command.
func NewPeekCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeekOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peek <view>",
		Short: "Read a view's contents at a timestamp",
		Long: `Start the reference engine over a stored catalog, feed it the inputs
from a YAML file, and read one view.

The inputs file is a list of feeds applied in order:

  - source: orders
    updates:
      - {row: [1, 50], time: 1}
    watermark: 2

--when picks the read timestamp: "immediately" reads the latest final
timestamp, "earliest_source" the lowest source watermark, and a number
that exact timestamp. A timestamp the view cannot answer yet fails
unless --wait is set.

Examples:
  mzcore peek --db ./catalog.db --inputs feed.yaml big_orders
  mzcore peek --db ./catalog.db --inputs feed.yaml --when 1 --order-by 1:desc --limit 10 big_orders`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeek(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Inputs, "inputs", "", "YAML file of source inputs")
	cmd.Flags().StringVar(&opts.When, "when", "immediately", "read timestamp policy")
	cmd.Flags().StringSliceVar(&opts.OrderBy, "order-by", nil, "sort columns, e.g. 0 or 1:desc")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "maximum rows to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the view to reach the timestamp")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "maximum time to wait")

	return cmd
}

func runPeek(opts *PeekOptions, view string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions)

	when, err := peek.ParseWhen(opts.When)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid --when", err)
	}
	fin, err := parseFinishing(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid finishing", err)
	}
	var inputs []FeedInput
	if opts.Inputs != "" {
		if inputs, err = LoadInputs(opts.Inputs); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid inputs", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	reg, err := st.LoadCatalog(ctx)
	st.Close()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to load catalog", err)
	}

	var rejected []error
	eng := engine.New(reg,
		engine.WithLogger(logger),
		engine.WithErrorHandler(func(ev engine.Event, err error) { rejected = append(rejected, err) }),
	)
	go func() { _ = eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-eng.Done()
	}()

	for i, in := range inputs {
		if err := feed(eng, in); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Sprintf("input %d", i), err)
		}
	}
	if err := eng.Flush(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodePeek, "engine did not apply inputs", err)
	}
	// the error handler runs on the engine loop; Flush orders it before us
	if len(rejected) > 0 {
		return formatter.Fail(ExitFailure, ErrCodeInput, fmt.Sprintf("%d input(s) rejected", len(rejected)), rejected[0])
	}

	metricsReg := prometheus.NewRegistry()
	serverOpts := []peek.ServerOption{peek.WithLogger(logger), peek.WithMetrics(peek.NewMetrics(metricsReg))}
	if opts.Wait {
		serverOpts = append(serverOpts, peek.WithWaitPolicy(peek.WaitUntilReady))
	}
	server := peek.NewServer(eng, serverOpts...)

	handle := server.Submit(ctx, peek.Request{View: view, When: when, Finishing: fin})
	resp, err := handle.Wait(ctx)
	server.Wait()
	logMetrics(opts, metricsReg, formatter)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodePeek, fmt.Sprintf("peek %s failed", view), err)
	}
	rows, err := peek.RowsOf(resp)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodePeek, fmt.Sprintf("peek %s failed", view), err)
	}
	ts, _ := handle.Timestamp()

	if formatter.IsJSON() {
		return formatter.Success(PeekResult{View: view, Timestamp: ts, Response: resp})
	}
	fmt.Fprintf(formatter.Writer, "%s @ %d (%d rows)\n", view, ts, len(rows))
	for _, r := range rows {
		fmt.Fprintln(formatter.Writer, r.String())
	}
	return nil
}

// LoadInputs reads a peek inputs file.
func LoadInputs(path string) ([]FeedInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []FeedInput
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inputs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, in := range inputs {
		if in.Source == "" {
			return nil, fmt.Errorf("input %d: source is required", i)
		}
		if len(in.Updates) == 0 && in.Watermark == nil {
			return nil, fmt.Errorf("input %d: updates or a watermark is required", i)
		}
	}
	return inputs, nil
}

func feed(eng *engine.Engine, in FeedInput) error {
	if len(in.Updates) > 0 {
		updates, err := harness.ToUpdates(in.Updates)
		if err != nil {
			return err
		}
		if !eng.Feed(in.Source, timely.UpdatesInput(updates...)) {
			return engine.ErrStopped
		}
	}
	if in.Watermark != nil && !eng.Feed(in.Source, timely.WatermarkInput(timely.Timestamp(*in.Watermark))) {
		return engine.ErrStopped
	}
	return nil
}

func parseFinishing(opts *PeekOptions) (finishing.RowSetFinishing, error) {
	var fin finishing.RowSetFinishing
	for _, spec := range opts.OrderBy {
		col, dir, _ := strings.Cut(spec, ":")
		n, err := strconv.Atoi(col)
		if err != nil {
			return fin, fmt.Errorf("order-by %q: %w", spec, err)
		}
		switch dir {
		case "", "asc":
			fin.OrderBy = append(fin.OrderBy, expr.Asc(n))
		case "desc":
			fin.OrderBy = append(fin.OrderBy, expr.Desc(n))
		default:
			return fin, fmt.Errorf("order-by %q: direction must be asc or desc", spec)
		}
	}
	if opts.Limit >= 0 {
		limit := opts.Limit
		fin.Limit = &limit
	}
	if opts.Offset < 0 {
		return fin, fmt.Errorf("offset must be non-negative")
	}
	fin.Offset = opts.Offset
	return fin, nil
}

// logMetrics prints the peek server's counters in verbose mode.
func logMetrics(opts *PeekOptions, reg *prometheus.Registry, formatter *OutputFormatter) {
	if !opts.Verbose {
		return
	}
	families, err := reg.Gather()
	if err != nil {
		formatter.VerboseLog("gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				formatter.VerboseLog("%s %g", mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				formatter.VerboseLog("%s_count %d", mf.GetName(), m.GetHistogram().GetSampleCount())
			}
		}
	}
}
