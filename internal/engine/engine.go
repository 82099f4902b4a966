package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/saifalharthi/materialize/internal/catalog"
	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/peek"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/tail"
	"github.com/saifalharthi/materialize/internal/timely"
)

// DefaultTailSendTimeout bounds how long the engine waits for a tail
// consumer to make room before closing it as overrun.
const DefaultTailSendTimeout = 5 * time.Second

// Engine is the single-writer event loop that maintains source traces and
// answers peeks and tails against the views of a catalog.
//
// CRITICAL: All trace mutations happen in the Run loop goroutine.
// External callers use Feed() and Flush() to submit input.
//
// Thread-safety model:
//   - Feed(), Flush(), Stop(): safe from any goroutine
//   - ViewState(), WaitUntil(), Materialize(): safe from any goroutine
//   - OpenTail(), CloseTail(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	catalog *catalog.Registry
	tails   *tail.Registry
	queue   *eventQueue
	logger  *slog.Logger
	onError func(Event, error)

	tailBuffer      int
	tailSendTimeout time.Duration

	mu      sync.RWMutex
	sources map[string]*trace
	subs    map[string]*subscription
	changed chan struct{} // closed and replaced whenever a watermark advances

	stopped  chan struct{}
	stopOnce sync.Once
}

var _ peek.Materializer = (*Engine)(nil)

// subscription is the delivery state of one tail sink.
type subscription struct {
	sink string
	from string
	ch   *tail.Channel

	// next is the first timestamp not yet delivered. prev holds the
	// upstream contents as of next-1 once they have been computed.
	next     timely.Timestamp
	prev     []timely.RowCount
	havePrev bool
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithTailBuffer sets the number of batches each tail channel buffers.
// Non-positive values select tail.DefaultBuffer.
func WithTailBuffer(n int) Option {
	return func(e *Engine) {
		e.tailBuffer = n
	}
}

// WithTailSendTimeout sets how long a delivery may wait on a full tail.
func WithTailSendTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.tailSendTimeout = d
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithErrorHandler registers a callback for events the Run loop rejects.
// The callback runs on the Run goroutine and must not block.
func WithErrorHandler(fn func(Event, error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// New creates an Engine over the dataflows of reg. Sources registered
// after New are picked up on first input.
func New(reg *catalog.Registry, opts ...Option) *Engine {
	e := &Engine{
		catalog:         reg,
		tails:           tail.NewRegistry(),
		queue:           newEventQueue(),
		logger:          slog.Default(),
		tailSendTimeout: DefaultTailSendTimeout,
		sources:         make(map[string]*trace),
		subs:            make(map[string]*subscription),
		changed:         make(chan struct{}),
		stopped:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, name := range reg.Names() {
		if d, ok := reg.Get(name); ok && d.Kind() == dataflow.KindSource {
			e.sources[name] = newTrace(name)
		}
	}
	return e
}

// Catalog returns the registry the engine reads.
func (e *Engine) Catalog() *catalog.Registry {
	return e.catalog
}

// Tails returns the registry of open tail channels.
func (e *Engine) Tails() *tail.Registry {
	return e.tails
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Feed submits input for a source. Inputs fed from one goroutine are
// applied in order.
func (e *Engine) Feed(source string, in timely.Input) bool {
	return e.Enqueue(Event{Type: EventTypeInput, Source: source, Input: in})
}

// Flush blocks until every event enqueued before it has been processed.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !e.Enqueue(Event{Type: EventTypeBarrier, done: done}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A rejected event is logged, handed to the error handler
// and dropped; processing continues with the next event.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "sources", len(e.sources))
	defer e.shutdown()

	for {
		// Try non-blocking dequeue first
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately
			if e.queue.Len() == 0 && e.queue.isClosed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return once the
// events already enqueued are processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed once the Run loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

func (e *Engine) shutdown() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		subs := slices.Collect(maps.Values(e.subs))
		e.subs = make(map[string]*subscription)
		e.mu.Unlock()

		for _, sub := range subs {
			sub.ch.Close(ErrStopped)
			e.tails.Remove(sub.ch.ID())
		}
		close(e.stopped)
	})
}

func (e *Engine) logEventError(ev Event, err error) {
	e.logger.Error("event rejected",
		"type", ev.Type,
		"source", ev.Source,
		"updates", len(ev.Input.Updates),
		"error", err,
	)
	if e.onError != nil {
		e.onError(ev, err)
	}
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTypeInput:
		return e.processInput(ctx, ev.Source, ev.Input)

	case EventTypeBarrier:
		if ev.done != nil {
			close(ev.done)
		}
		return nil

	case EventTypeDeliver:
		e.deliverTails(ctx)
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// processInput applies a batch of updates or a watermark to a source.
// A batch is admitted entirely or rejected entirely, and an input that
// carries both is rejected without applying either.
func (e *Engine) processInput(ctx context.Context, source string, in timely.Input) error {
	e.mu.Lock()
	tr, err := e.traceLocked(source)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if in.IsWatermark() && len(in.Updates) > 0 {
		e.mu.Unlock()
		return &RuntimeError{Code: ErrCodeProtocol, Name: source, Message: "input carries both updates and a watermark"}
	}

	if in.IsWatermark() {
		before := tr.tracker.Current()
		if err := tr.tracker.Advance(*in.Watermark); err != nil {
			e.mu.Unlock()
			return &RuntimeError{Code: ErrCodeProtocol, Name: source, Err: err}
		}
		advanced := *in.Watermark > before
		if advanced {
			close(e.changed)
			e.changed = make(chan struct{})
		}
		e.mu.Unlock()

		e.logger.Debug("watermark advanced", "source", source, "watermark", *in.Watermark)
		if advanced {
			e.deliverTails(ctx)
		}
		return nil
	}

	defer e.mu.Unlock()
	for _, u := range in.Updates {
		if err := tr.tracker.Admit(u); err != nil {
			return &RuntimeError{Code: ErrCodeProtocol, Name: source, Err: err}
		}
	}
	for _, u := range in.Updates {
		tr.insert(u)
	}
	e.logger.Debug("updates admitted", "source", source, "count", len(in.Updates), "entries", tr.Len())
	return nil
}

// traceLocked returns the trace of a registered source. Callers hold
// e.mu for writing.
func (e *Engine) traceLocked(source string) (*trace, error) {
	if tr, ok := e.sources[source]; ok {
		return tr, nil
	}
	d, ok := e.catalog.Get(source)
	if !ok || d.Kind() != dataflow.KindSource {
		return nil, &RuntimeError{Code: ErrCodeUnknownSource, Name: source, Message: "input for unregistered source"}
	}
	tr := newTrace(source)
	e.sources[source] = tr
	return tr, nil
}

// Watermark returns the current watermark of a source.
func (e *Engine) Watermark(source string) (timely.Timestamp, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if tr, ok := e.sources[source]; ok {
		return tr.tracker.Current(), nil
	}
	if d, ok := e.catalog.Get(source); ok && d.Kind() == dataflow.KindSource {
		return 0, nil
	}
	return 0, &RuntimeError{Code: ErrCodeUnknownSource, Name: source, Message: "not a registered source"}
}

// upstream returns the source watermarks of name and the frontier they
// imply. Callers hold e.mu.
func (e *Engine) upstream(name string) (map[string]timely.Timestamp, timely.Frontier, error) {
	sources, err := e.catalog.Sources(name)
	if err != nil {
		return nil, timely.Frontier{}, err
	}
	watermarks := make(map[string]timely.Timestamp, len(sources))
	frontiers := make([]timely.Frontier, 0, len(sources))
	for _, s := range sources {
		var w timely.Timestamp
		if tr, ok := e.sources[s]; ok {
			w = tr.tracker.Current()
		}
		watermarks[s] = w
		frontiers = append(frontiers, timely.NewFrontier(w))
	}
	return watermarks, timely.MeetAll(frontiers...), nil
}

// ViewState snapshots the view's frontier and upstream watermarks.
// A view with no upstream sources has the empty frontier: its output is
// final at every timestamp.
func (e *Engine) ViewState(ctx context.Context, view string) (peek.ViewState, error) {
	if err := ctx.Err(); err != nil {
		return peek.ViewState{}, err
	}
	v, err := e.catalog.View(view)
	if err != nil {
		return peek.ViewState{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	watermarks, frontier, err := e.upstream(view)
	if err != nil {
		return peek.ViewState{}, err
	}
	return peek.ViewState{
		Frontier:         frontier,
		SourceWatermarks: watermarks,
		Arity:            v.Desc().Arity(),
	}, nil
}

// WaitUntil blocks until the view's frontier is beyond t.
func (e *Engine) WaitUntil(ctx context.Context, view string, t timely.Timestamp) error {
	if _, err := e.catalog.View(view); err != nil {
		return err
	}
	for {
		e.mu.RLock()
		_, frontier, err := e.upstream(view)
		changed := e.changed
		e.mu.RUnlock()
		if err != nil {
			return err
		}
		if frontier.Beyond(t) {
			return nil
		}

		select {
		case <-changed:
		case <-e.stopped:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Materialize returns the view's rows as of t, in no particular order.
func (e *Engine) Materialize(ctx context.Context, view string, t timely.Timestamp) ([]repr.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := e.catalog.View(view)
	if err != nil {
		return nil, err
	}
	if asOf := v.AsOf(); asOf != nil && !asOf.LessEqual(t) {
		return nil, &RuntimeError{
			Code:    ErrCodeBeforeAsOf,
			Name:    view,
			Message: fmt.Sprintf("timestamp %d precedes as-of %s", t, asOf),
		}
	}

	e.mu.RLock()
	counts, err := e.newEvaluator(t).relation(view)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	rows, err := timely.Expand(counts)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeNegativeMultiplicity, Name: view, Err: err}
	}
	if rows == nil {
		rows = []repr.Row{}
	}
	return rows, nil
}

// OpenTail registers a tail sink named name that streams every change of
// from at or after since. Changes are delivered once the upstream
// watermarks pass them.
func (e *Engine) OpenTail(name, from string, since timely.Timestamp) (*tail.Channel, error) {
	d, ok := e.catalog.Get(from)
	if !ok {
		return nil, &RuntimeError{Code: ErrCodeEval, Name: from, Message: "unknown relation"}
	}
	desc, err := dataflow.DescOf(d)
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", name, err)
	}

	ch := e.tails.Open(e.tailBuffer)
	sink := dataflow.NewSink(name, from, desc, dataflow.TailSinkConnector{Handle: ch, Since: since})
	if err := e.catalog.Register(sink); err != nil {
		e.tails.Remove(ch.ID())
		return nil, fmt.Errorf("register tail %s: %w", name, err)
	}

	e.mu.Lock()
	e.subs[name] = &subscription{sink: name, from: from, ch: ch, next: since}
	e.mu.Unlock()

	e.logger.Info("tail opened", "sink", name, "from", from, "since", since, "channel", ch.ID())
	e.Enqueue(Event{Type: EventTypeDeliver})
	return ch, nil
}

// CloseTail closes a tail sink cleanly and removes it from the catalog.
func (e *Engine) CloseTail(name string) error {
	e.mu.Lock()
	sub, ok := e.subs[name]
	delete(e.subs, name)
	e.mu.Unlock()
	if !ok {
		return &RuntimeError{Code: ErrCodeEval, Name: name, Message: "no such tail"}
	}

	sub.ch.Close(nil)
	e.dropTail(sub)
	return nil
}

func (e *Engine) dropTail(sub *subscription) {
	e.tails.Remove(sub.ch.ID())
	if err := e.catalog.Remove(sub.sink); err != nil && !catalog.IsNotFound(err) {
		e.logger.Warn("tail sink removal failed", "sink", sub.sink, "error", err)
	}
}

// deliverTails sends every tail the changes that became final since its
// last delivery.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) deliverTails(ctx context.Context) {
	e.mu.RLock()
	names := slices.Sorted(maps.Keys(e.subs))
	type pending struct {
		sub   *subscription
		batch tail.Batch
		upper timely.Timestamp
		prev  []timely.RowCount
		err   error
	}
	work := make([]pending, 0, len(names))
	for _, name := range names {
		sub := e.subs[name]
		batch, upper, prev, err := e.pendingLocked(sub)
		if err == nil && upper <= sub.next {
			continue
		}
		work = append(work, pending{sub: sub, batch: batch, upper: upper, prev: prev, err: err})
	}
	e.mu.RUnlock()

	for _, w := range work {
		if w.err != nil {
			e.logger.Error("tail evaluation failed", "sink", w.sub.sink, "error", w.err)
			e.closeTail(w.sub, w.err)
			continue
		}
		if err := e.send(ctx, w.sub, w.batch); err != nil {
			continue
		}
		w.sub.next = w.upper
		w.sub.prev = w.prev
		w.sub.havePrev = true
	}
}

// pendingLocked computes the batch a tail is owed: the changes of the
// upstream relation at every timestamp in [sub.next, upper), where upper
// is the upstream frontier. Returns the bound and the contents as of
// upper-1. Callers hold e.mu.
func (e *Engine) pendingLocked(sub *subscription) (tail.Batch, timely.Timestamp, []timely.RowCount, error) {
	sources, err := e.catalog.Sources(sub.from)
	if err != nil {
		return nil, 0, nil, err
	}
	upper := timely.MaxTimestamp
	for _, s := range sources {
		var w timely.Timestamp
		if tr, ok := e.sources[s]; ok {
			w = tr.tracker.Current()
		}
		upper = min(upper, w)
	}
	if upper <= sub.next {
		return nil, upper, nil, nil
	}

	// The upstream only changes where one of its sources does.
	seen := make(map[timely.Timestamp]bool)
	var times []timely.Timestamp
	if sub.next == 0 {
		seen[0] = true
		times = append(times, 0)
	}
	for _, s := range sources {
		tr, ok := e.sources[s]
		if !ok {
			continue
		}
		for _, t := range tr.times(sub.next, upper) {
			if !seen[t] {
				seen[t] = true
				times = append(times, t)
			}
		}
	}
	slices.Sort(times)

	prev := sub.prev
	if !sub.havePrev {
		prev = []timely.RowCount{}
		if before, ok := sub.next.Prev(); ok {
			if prev, err = e.newEvaluator(before).relation(sub.from); err != nil {
				return nil, 0, nil, err
			}
		}
	}

	var batch tail.Batch
	for _, t := range times {
		cur, err := e.newEvaluator(t).relation(sub.from)
		if err != nil {
			return nil, 0, nil, err
		}
		batch = append(batch, difference(prev, cur, t)...)
		prev = cur
	}
	return batch, upper, prev, nil
}

// send delivers one batch, closing the tail when its consumer has gone
// away or cannot keep up.
func (e *Engine) send(ctx context.Context, sub *subscription, batch tail.Batch) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.tailSendTimeout)
	defer cancel()

	err := sub.ch.Send(sendCtx, batch)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		e.logger.Warn("tail overrun", "sink", sub.sink, "pending", sub.ch.Len())
		e.closeTail(sub, tail.ErrTailOverrun)
	case sub.ch.Err() != nil:
		e.logger.Info("tail consumer gone", "sink", sub.sink, "reason", sub.ch.Err())
		e.closeTail(sub, nil)
	default:
		e.logger.Error("tail send failed", "sink", sub.sink, "error", err)
	}
	return err
}

func (e *Engine) closeTail(sub *subscription, reason error) {
	e.mu.Lock()
	if e.subs[sub.sink] == sub {
		delete(e.subs, sub.sink)
	}
	e.mu.Unlock()
	sub.ch.Close(reason)
	e.dropTail(sub)
}
