package peek

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/saifalharthi/materialize/internal/finishing"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// Materializer is the engine side of a peek.
type Materializer interface {
	// ViewState snapshots the view's frontier and upstream watermarks.
	ViewState(ctx context.Context, view string) (ViewState, error)

	// WaitUntil blocks until the view's frontier is beyond t.
	WaitUntil(ctx context.Context, view string, t timely.Timestamp) error

	// Materialize returns the view's rows as of t, in no particular order.
	Materialize(ctx context.Context, view string, t timely.Timestamp) ([]repr.Row, error)
}

// Request is a peek against a view.
type Request struct {
	View      string
	When      When
	Finishing finishing.RowSetFinishing
}

// State is the progress of a peek.
type State int32

const (
	StateRequested State = iota
	StateTimestampResolved
	StateMaterializing
	StateFinished
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateTimestampResolved:
		return "timestamp_resolved"
	case StateMaterializing:
		return "materializing"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handle tracks one submitted peek.
type Handle struct {
	id       uuid.UUID
	req      Request
	slot     *Slot
	state    atomic.Int32
	ts       atomic.Uint64
	resolved atomic.Bool
	cancel   context.CancelFunc
	metrics  *Metrics
	logger   *slog.Logger
}

// ID returns the peek's identifier.
func (h *Handle) ID() uuid.UUID { return h.id }

// Request returns the submitted request.
func (h *Handle) Request() Request { return h.req }

// State returns the peek's current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Timestamp returns the resolved timestamp. ok is false before
// resolution.
func (h *Handle) Timestamp() (timely.Timestamp, bool) {
	if !h.resolved.Load() {
		return 0, false
	}
	return timely.Timestamp(h.ts.Load()), true
}

// Done is closed when the peek has an outcome.
func (h *Handle) Done() <-chan struct{} { return h.slot.Done() }

// Wait blocks for the peek's outcome. A canceled peek returns Canceled
// and a nil error; a failed peek returns a nil Response and its error.
func (h *Handle) Wait(ctx context.Context) (Response, error) {
	return h.slot.Wait(ctx)
}

// Cancel requests cancellation. It reports whether the cancellation won;
// after rows were delivered it has no effect.
func (h *Handle) Cancel() bool {
	won := h.slot.Cancel()
	h.cancel()
	if won {
		h.metrics.Canceled.Inc()
		h.advance(StateFinished)
		h.logger.Debug("peek canceled", "id", h.id, "view", h.req.View)
	}
	return won
}

// advance moves the state forward. Transitions backwards are ignored so
// a late pipeline stage cannot undo a finished cancellation.
func (h *Handle) advance(to State) {
	for {
		cur := h.state.Load()
		if State(cur) >= to {
			return
		}
		if h.state.CompareAndSwap(cur, int32(to)) {
			h.logger.Debug("peek state", "id", h.id, "view", h.req.View, "state", to)
			return
		}
	}
}

// Server runs peeks against a Materializer.
type Server struct {
	m       Materializer
	policy  WaitPolicy
	metrics *Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWaitPolicy sets what happens to a peek at a timestamp the view
// cannot answer yet.
//
// Default: FailIfNotReady
func WithWaitPolicy(p WaitPolicy) ServerOption {
	return func(s *Server) {
		s.policy = p
	}
}

// WithMetrics sets the metrics the server reports to.
func WithMetrics(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server's logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a peek server over m.
func NewServer(m Materializer, opts ...ServerOption) *Server {
	s := &Server{
		m:      m,
		policy: FailIfNotReady,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Submit starts a peek and returns its handle immediately. Ending ctx
// cancels the peek.
func (s *Server) Submit(ctx context.Context, req Request) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:      uuid.New(),
		req:     req,
		slot:    NewSlot(),
		cancel:  cancel,
		metrics: s.metrics,
		logger:  s.logger,
	}
	s.logger.Debug("peek requested", "id", h.id, "view", req.View)

	s.wg.Add(1)
	go s.run(ctx, h)
	return h
}

// Wait blocks until every submitted peek has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) run(ctx context.Context, h *Handle) {
	defer s.wg.Done()
	defer h.cancel()

	rows, err := s.execute(ctx, h)
	switch {
	case err != nil && ctx.Err() != nil:
		if h.slot.Cancel() {
			s.metrics.Canceled.Inc()
			s.logger.Debug("peek canceled", "id", h.id, "view", h.req.View)
		}
	case err != nil:
		if h.slot.Fail(err) {
			s.metrics.Failed.Inc()
			s.logger.Warn("peek failed", "id", h.id, "view", h.req.View, "error", err)
		}
	default:
		if h.slot.Deliver(Rows{Rows: rows}) {
			s.metrics.Completed.Inc()
			s.metrics.ResultRows.Observe(float64(len(rows)))
			s.logger.Debug("peek finished", "id", h.id, "view", h.req.View, "rows", len(rows))
		}
	}
	h.advance(StateFinished)
}

// execute runs the pipeline, checking for cancellation between stages.
func (s *Server) execute(ctx context.Context, h *Handle) ([]repr.Row, error) {
	view := h.req.View

	state, err := s.m.ViewState(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", view, err)
	}
	res, err := ResolveTimestamp(h.req.When, state)
	if err != nil {
		return nil, fmt.Errorf("peek %s: resolve: %w", view, err)
	}
	if !res.Ready {
		if s.policy != WaitUntilReady {
			return nil, fmt.Errorf("peek %s at %d: %w", view, res.Timestamp, ErrNotReady)
		}
		if err := s.m.WaitUntil(ctx, view, res.Timestamp); err != nil {
			return nil, fmt.Errorf("peek %s: wait for %d: %w", view, res.Timestamp, err)
		}
	}
	h.ts.Store(uint64(res.Timestamp))
	h.resolved.Store(true)
	h.advance(StateTimestampResolved)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.advance(StateMaterializing)
	rows, err := s.m.Materialize(ctx, view, res.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("peek %s: materialize at %d: %w", view, res.Timestamp, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := h.req.Finishing.Finish(rows, state.Arity)
	if err != nil {
		return nil, fmt.Errorf("peek %s: finish: %w", view, err)
	}
	return out, nil
}
