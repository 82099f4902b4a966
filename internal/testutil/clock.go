package testutil

import "sync"

// SeqClock hands out store sequence numbers for tests.
//
// The first call to Next returns 1. After Reset the sequence starts over,
// so the same scenario run twice writes identical seq values.
//
// Thread-safety: All methods are safe for concurrent use.
type SeqClock struct {
	mu  sync.Mutex
	seq int64
}

// NewSeqClock creates a clock whose next value is 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next increments and returns the next sequence number.
func (c *SeqClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out, or 0 before the first Next.
func (c *SeqClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Observe records that next is the first free sequence number, moving
// the clock forward if it is behind. Used after a bulk write such as
// store.SaveCatalog, which returns the next free value.
func (c *SeqClock) Observe(next int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next-1 > c.seq {
		c.seq = next - 1
	}
}

// Reset starts the sequence over.
func (c *SeqClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
