package tail

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Registry resolves channel ids to channels within one process.
type Registry struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]*Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[uuid.UUID]*Channel)}
}

// Open creates a channel and registers it.
func (r *Registry) Open(buffer int) *Channel {
	c := NewChannel(buffer)
	r.Register(c)
	return c
}

// Register adds a channel. Registering the same channel twice is a no-op.
func (r *Registry) Register(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.ID()] = c
}

// Lookup returns the channel with the given id.
func (r *Registry) Lookup(id uuid.UUID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	return c, ok
}

// Remove forgets a channel. It does not close it.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}
