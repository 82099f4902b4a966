package timely

import "sync"

// WatermarkTracker enforces watermark monotonicity for one source.
//
// The tracker starts at watermark 0, which admits every update. Advance
// accepts any watermark >= the current one; Admit accepts any update whose
// timestamp is >= the current watermark.
//
// Thread-safety: WatermarkTracker is safe for concurrent use. Current is
// a read and never waits on writers for longer than a single assignment.
type WatermarkTracker struct {
	source string

	mu      sync.RWMutex
	current Timestamp
}

// NewWatermarkTracker creates a tracker for the named source.
func NewWatermarkTracker(source string) *WatermarkTracker {
	return &WatermarkTracker{source: source}
}

// Source returns the name of the tracked source.
func (w *WatermarkTracker) Source() string {
	return w.source
}

// Current returns the most recent accepted watermark.
func (w *WatermarkTracker) Current() Timestamp {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Advance accepts a watermark announcement.
// Re-announcing the current watermark is accepted and has no effect.
// Returns a ProtocolError with ErrCodeWatermarkRegression if t is lower
// than the current watermark; the tracker is left unchanged.
func (w *WatermarkTracker) Advance(t Timestamp) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t < w.current {
		return &ProtocolError{
			Code:    ErrCodeWatermarkRegression,
			Source:  w.source,
			Current: w.current,
			Got:     t,
		}
	}
	w.current = t
	return nil
}

// Admit checks that an update may still be emitted.
// Returns a ProtocolError with ErrCodeLateUpdate for an update timestamped
// before the current watermark.
func (w *WatermarkTracker) Admit(u Update) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if u.Timestamp < w.current {
		return &ProtocolError{
			Code:    ErrCodeLateUpdate,
			Source:  w.source,
			Current: w.current,
			Got:     u.Timestamp,
		}
	}
	return nil
}

// Frontier returns the source's output frontier: the single element
// equal to its watermark.
func (w *WatermarkTracker) Frontier() Frontier {
	return NewFrontier(w.Current())
}

// CheckWatermarks validates that a sequence of watermark announcements
// from one source is non-decreasing. Returns the first regression found.
func CheckWatermarks(source string, watermarks []Timestamp) error {
	tr := NewWatermarkTracker(source)
	for _, t := range watermarks {
		if err := tr.Advance(t); err != nil {
			return err
		}
	}
	return nil
}
