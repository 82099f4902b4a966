package tail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/saifalharthi/materialize/internal/timely"
)

// DefaultBuffer is the number of batches a channel buffers when no size
// is given.
const DefaultBuffer = 64

var (
	// ErrClosed is returned by Recv after a channel closed without error
	// and every buffered batch has been received.
	ErrClosed = errors.New("tail channel closed")

	// ErrTailOverrun is the close reason used when a consumer fell too far
	// behind and the producer gave up waiting for buffer space.
	ErrTailOverrun = errors.New("tail consumer overrun")

	// ErrOutOfOrder is returned by Send when a batch would deliver an
	// update behind one already delivered.
	ErrOutOfOrder = errors.New("tail batch out of timestamp order")
)

// Batch is a group of updates delivered together, in non-decreasing
// timestamp order.
type Batch []timely.Update

// Channel is a bounded single-producer, single-consumer stream of batches.
type Channel struct {
	id   uuid.UUID
	ch   chan Batch
	done chan struct{}

	mu       sync.Mutex
	closeErr error
	closed   bool
	sent     bool
	last     timely.Timestamp
}

// NewChannel creates a channel buffering up to buffer batches. A
// non-positive buffer selects DefaultBuffer.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel{
		id:   uuid.New(),
		ch:   make(chan Batch, buffer),
		done: make(chan struct{}),
	}
}

// ID returns the channel's process-local identifier.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// Cap returns the buffer size in batches.
func (c *Channel) Cap() int {
	return cap(c.ch)
}

// Len returns the number of batches waiting for the consumer.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Send delivers a batch, blocking while the buffer is full.
//
// Send fails without delivering if the batch is not in timestamp order,
// if any of its updates precede an update already sent, if the channel is
// closed, or if ctx ends first. Empty batches are accepted and dropped.
func (c *Channel) Send(ctx context.Context, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("send: %w", c.errLocked())
	}
	prev, havePrev := c.last, c.sent
	c.mu.Unlock()

	for i, u := range batch {
		if havePrev && u.Timestamp < prev {
			return fmt.Errorf("%w: update %d at %d after %d", ErrOutOfOrder, i, u.Timestamp, prev)
		}
		prev, havePrev = u.Timestamp, true
	}

	select {
	case c.ch <- batch:
	case <-c.done:
		return fmt.Errorf("send: %w", c.Err())
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.last, c.sent = prev, true
	c.mu.Unlock()
	return nil
}

// Recv returns the next batch, blocking until one is available. After
// Close, buffered batches are still returned; once drained Recv returns
// the close reason, or ErrClosed for a clean close.
func (c *Channel) Recv(ctx context.Context) (Batch, error) {
	select {
	case b := <-c.ch:
		return b, nil
	case <-c.done:
		select {
		case b := <-c.ch:
			return b, nil
		default:
			return nil, c.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream. A nil reason is a clean close. Only the first
// call has an effect.
func (c *Channel) Close(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = reason
	close(c.done)
}

// Done is closed when the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the close reason: nil while open, ErrClosed after a clean
// close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil
	}
	return c.errLocked()
}

func (c *Channel) errLocked() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}
