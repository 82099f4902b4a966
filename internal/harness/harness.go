package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/sync/errgroup"

	"github.com/saifalharthi/materialize/internal/catalog"
	"github.com/saifalharthi/materialize/internal/compiler"
	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/engine"
	"github.com/saifalharthi/materialize/internal/finishing"
	"github.com/saifalharthi/materialize/internal/peek"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/store"
	"github.com/saifalharthi/materialize/internal/tail"
	"github.com/saifalharthi/materialize/internal/testutil"
	"github.com/saifalharthi/materialize/internal/timely"
)

// DefaultStepTimeout bounds how long a peek or tail receive may block.
const DefaultStepTimeout = 5 * time.Second

// Harness is the test execution engine for one scenario.
//
// Each run compiles the catalog, saves it to a fresh in-memory store and
// loads it back, so scenarios also exercise catalog persistence. The
// engine runs on the loaded registry.
type Harness struct {
	engine  *engine.Engine
	peeks   *peek.Server
	tails   map[string]*tail.Channel
	clock   *testutil.SeqClock
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	rejected map[string][]error // engine rejections by source, not yet claimed by a step
	total    int
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Compile the catalog and round-trip it through an in-memory store
// 2. Start the engine and a peek server over it
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions against the final state
//
// An error is returned only when the scenario cannot be executed at all;
// failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	clock := testutil.NewSeqClock()
	reg, err := loadCatalog(ctx, scenario, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	h := &Harness{
		tails:    make(map[string]*tail.Channel),
		clock:    clock,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		timeout:  DefaultStepTimeout,
		rejected: make(map[string][]error),
	}
	h.engine = engine.New(reg,
		engine.WithLogger(h.logger),
		engine.WithErrorHandler(h.recordRejection),
		engine.WithTailSendTimeout(h.timeout),
	)
	h.peeks = peek.NewServer(h.engine, peek.WithLogger(h.logger))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = h.engine.Run(runCtx) }()
	defer func() {
		h.engine.Stop()
		<-h.engine.Done()
		h.peeks.Wait()
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		events, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, events...)
		for _, msg := range checkExpect(i+1, step, events) {
			result.AddError(msg)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// loadCatalog compiles the scenario's dataflows and returns them as
// loaded back from a store.
func loadCatalog(ctx context.Context, s *Scenario, clock *testutil.SeqClock) (*catalog.Registry, error) {
	var (
		ds   []dataflow.Dataflow
		errs []error
	)
	if s.CUE != "" {
		v := cuecontext.New().CompileString(s.CUE)
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile inline catalog: %w", err)
		}
		ds, errs = compiler.Compile(v, compiler.LoadModeCollectAll)
	} else {
		var res *compiler.LoadResult
		res, errs = compiler.LoadDir(s.Catalog, compiler.LoadModeCollectAll)
		if res != nil {
			ds = res.Dataflows
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if verrs := compiler.Validate(ds); len(verrs) > 0 {
		all := make([]error, len(verrs))
		for i, ve := range verrs {
			all[i] = ve
		}
		return nil, errors.Join(all...)
	}

	reg := catalog.NewRegistry()
	if err := reg.RegisterAll(ds); err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	next, err := st.SaveCatalog(ctx, reg, clock.Next())
	if err != nil {
		return nil, fmt.Errorf("save catalog: %w", err)
	}
	clock.Observe(next)
	return st.LoadCatalog(ctx)
}

func (h *Harness) recordRejection(ev engine.Event, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected[ev.Source] = append(h.rejected[ev.Source], err)
	h.total++
}

// claimRejections returns and forgets the rejections recorded for source.
func (h *Harness) claimRejections(source string) []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	errs := h.rejected[source]
	delete(h.rejected, source)
	return errs
}

func (h *Harness) rejectedTotal() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// execute runs one step and returns the trace events it produced.
func (h *Harness) execute(ctx context.Context, n int, step Step) ([]TraceEvent, error) {
	switch stepKind(step) {
	case "feed":
		if err := h.submit(step); err != nil {
			return nil, err
		}
		if err := h.engine.Flush(ctx); err != nil {
			return nil, err
		}
		return []TraceEvent{h.feedEvent(n, step)}, nil

	case "parallel":
		var g errgroup.Group
		for _, sub := range step.Parallel {
			g.Go(func() error { return h.submit(sub) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := h.engine.Flush(ctx); err != nil {
			return nil, err
		}
		events := make([]TraceEvent, len(step.Parallel))
		for i, sub := range step.Parallel {
			events[i] = h.feedEvent(n, sub)
		}
		return events, nil

	case "peek":
		return []TraceEvent{h.peek(ctx, n, step)}, nil

	case "tail":
		ev := TraceEvent{Step: n, Kind: "tail", Name: step.Tail}
		since := timely.Timestamp(step.Since)
		ev.Timestamp = &since
		ch, err := h.engine.OpenTail(step.Tail, step.From, since)
		if err != nil {
			ev.Error = errorCode(err)
		} else {
			h.tails[step.Tail] = ch
		}
		return []TraceEvent{ev}, nil

	case "recv":
		return []TraceEvent{h.recv(ctx, n, step)}, nil

	default:
		return nil, fmt.Errorf("malformed step")
	}
}

// submit enqueues a feed step's updates, then its watermark.
func (h *Harness) submit(step Step) error {
	if len(step.Updates) > 0 {
		updates, err := ToUpdates(step.Updates)
		if err != nil {
			return fmt.Errorf("feed %s: %w", step.Feed, err)
		}
		if !h.engine.Feed(step.Feed, timely.UpdatesInput(updates...)) {
			return engine.ErrStopped
		}
	}
	if step.Watermark != nil {
		if !h.engine.Feed(step.Feed, timely.WatermarkInput(timely.Timestamp(*step.Watermark))) {
			return engine.ErrStopped
		}
	}
	return nil
}

func (h *Harness) feedEvent(n int, step Step) TraceEvent {
	ev := TraceEvent{Step: n, Kind: "feed", Name: step.Feed}
	if updates, err := ToUpdates(step.Updates); err == nil {
		ev.Updates = formatUpdates(updates)
	}
	if step.Watermark != nil {
		w := timely.Timestamp(*step.Watermark)
		ev.Timestamp = &w
	}
	if errs := h.claimRejections(step.Feed); len(errs) > 0 {
		ev.Error = errorCode(errs[0])
	}
	return ev
}

func (h *Harness) peek(ctx context.Context, n int, step Step) TraceEvent {
	ev := TraceEvent{Step: n, Kind: "peek", Name: step.Peek}
	when, err := peek.ParseWhen(step.When)
	if err != nil {
		ev.Error = err.Error()
		return ev
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	handle := h.peeks.Submit(ctx, peek.Request{
		View: step.Peek,
		When: when,
		Finishing: finishing.RowSetFinishing{
			OrderBy: step.OrderBy,
			Limit:   step.Limit,
			Offset:  step.Offset,
		},
	})
	resp, err := handle.Wait(ctx)
	if err == nil {
		var rows []repr.Row
		rows, err = peek.RowsOf(resp)
		ev.Rows = formatRows(rows)
	}
	if err != nil {
		ev.Error = errorCode(err)
	}
	if ts, ok := handle.Timestamp(); ok {
		ev.Timestamp = &ts
	}
	return ev
}

func (h *Harness) recv(ctx context.Context, n int, step Step) TraceEvent {
	ev := TraceEvent{Step: n, Kind: "recv", Name: step.Recv}
	ch, ok := h.tails[step.Recv]
	if !ok {
		ev.Error = "UNKNOWN_TAIL"
		return ev
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	batch, err := ch.Recv(ctx)
	if err != nil {
		ev.Error = errorCode(err)
		return ev
	}
	ev.Updates = formatUpdates(batch)
	return ev
}

// ToUpdates converts update specs to updates. A zero diff means +1.
func ToUpdates(specs []UpdateSpec) ([]timely.Update, error) {
	out := make([]timely.Update, 0, len(specs))
	for i, s := range specs {
		row, err := testutil.RowOf(s.Row...)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		diff := timely.Diff(s.Diff)
		if diff == 0 {
			diff = 1
		}
		out = append(out, timely.NewUpdate(row, timely.Timestamp(s.Time), diff))
	}
	return out, nil
}

func toRows(vals [][]any) ([]repr.Row, error) {
	out := make([]repr.Row, 0, len(vals))
	for i, v := range vals {
		row, err := testutil.RowOf(v...)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func formatRows(rows []repr.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String()
	}
	return out
}

func formatUpdates(updates []timely.Update) []string {
	out := make([]string, len(updates))
	for i, u := range updates {
		out[i] = u.String()
	}
	return out
}

// sortedCopy returns the strings sorted, for multiset comparison.
func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

// errorCode reduces an error to a stable code for traces and expect
// clauses.
func errorCode(err error) string {
	var pe *timely.ProtocolError
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var ce *catalog.Error
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	switch {
	case errors.Is(err, peek.ErrNotReady):
		return "NOT_READY"
	case errors.Is(err, peek.ErrNoSources):
		return "NO_SOURCES"
	case errors.Is(err, tail.ErrTailOverrun):
		return "TAIL_OVERRUN"
	case errors.Is(err, tail.ErrClosed):
		return "TAIL_CLOSED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	return err.Error()
}
