package peek

import (
	"context"
	"sync"
)

// Outcome is what a slot holds: a Response, or the error of a failed
// peek.
type Outcome struct {
	Response Response
	Err      error
}

// Slot holds the single terminal outcome of a peek. The first call to
// Deliver, Cancel, or Fail wins; later calls report false and change
// nothing.
type Slot struct {
	mu      sync.Mutex
	outcome Outcome
	set     bool
	done    chan struct{}
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

func (s *Slot) finish(resp Response, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.outcome, s.set = Outcome{Response: resp, Err: err}, true
	close(s.done)
	return true
}

// Deliver stores resp if nothing has been stored yet.
func (s *Slot) Deliver(resp Response) bool {
	return s.finish(resp, nil)
}

// Cancel stores Canceled if nothing has been stored yet.
func (s *Slot) Cancel() bool {
	return s.finish(Canceled{}, nil)
}

// Fail stores a failure if nothing has been stored yet. A failed peek has
// no Response.
func (s *Slot) Fail(err error) bool {
	return s.finish(nil, err)
}

// Done is closed once the slot holds an outcome.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// Result returns the outcome without blocking. ok is false while the
// slot is empty.
func (s *Slot) Result() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.set
}

// Wait blocks until the slot holds an outcome or ctx ends. Waiting does
// not consume the outcome; every caller observes the same one.
func (s *Slot) Wait(ctx context.Context) (Response, error) {
	select {
	case <-s.done:
		o, _ := s.Result()
		return o.Response, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
