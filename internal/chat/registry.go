package chat

import (
	"log/slog"
	"sync"

	"github.com/andy6609/roomchat/internal/refcount"
)

// Registry is a fixed-capacity slot table of client handles. The table lock
// is held only for slot bookkeeping, never across network I/O. Each stored
// handle carries the registry's own reference; Remove drops it.
type Registry struct {
	mu     sync.RWMutex
	slots  []*ClientHandle
	count  int
	logger *slog.Logger
}

func NewRegistry(capacity int, logger *slog.Logger) *Registry {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		slots:  make([]*ClientHandle, capacity),
		logger: logger,
	}
}

// Cap returns the number of slots.
func (r *Registry) Cap() int {
	return len(r.slots)
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Insert wraps c in a new handle and stores it at slot, which must be empty.
func (r *Registry) Insert(slot int, c *Client) (*ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= len(r.slots) {
		return nil, ErrSlotOutOfRange
	}
	if r.slots[slot] != nil {
		return nil, ErrSlotOccupied
	}
	return r.insertLocked(slot, c), nil
}

// Admit stores c in the lowest free slot.
func (r *Registry) Admit(c *Client) (int, *ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slot, h := range r.slots {
		if h == nil {
			return slot, r.insertLocked(slot, c), nil
		}
	}
	return -1, nil, ErrRegistryFull
}

func (r *Registry) insertLocked(slot int, c *Client) *ClientHandle {
	c.Slot = slot
	h := refcount.New(c, r.destroy)
	r.slots[slot] = h
	r.count++
	ConnectedClients.Set(float64(r.count))
	return h
}

// Lookup returns the handle stored at slot without taking a reference.
// Callers that hand it to another goroutine must Acquire first.
func (r *Registry) Lookup(slot int) (*ClientHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if slot < 0 || slot >= len(r.slots) || r.slots[slot] == nil {
		return nil, false
	}
	return r.slots[slot], true
}

// Remove clears slot and drops the registry's reference. It reports false
// when the slot was already empty.
func (r *Registry) Remove(slot int) bool {
	return r.remove(slot, nil)
}

// Detach is Remove guarded by identity: the slot is cleared only if it still
// holds h, so a session finishing late never evicts a newer occupant.
func (r *Registry) Detach(slot int, h *ClientHandle) bool {
	if h == nil {
		return false
	}
	return r.remove(slot, h)
}

func (r *Registry) remove(slot int, want *ClientHandle) bool {
	r.mu.Lock()
	if slot < 0 || slot >= len(r.slots) {
		r.mu.Unlock()
		return false
	}
	h := r.slots[slot]
	if h == nil || (want != nil && h != want) {
		r.mu.Unlock()
		return false
	}
	r.slots[slot] = nil
	r.count--
	ConnectedClients.Set(float64(r.count))
	r.mu.Unlock()

	if err := h.Release(); err != nil {
		r.logger.Warn("registry reference already released", "slot", slot, "error", err)
	}
	return true
}

// Snapshot returns an acquired handle for every occupied slot, in slot
// order. The caller must Release each one.
func (r *Registry) Snapshot() []*ClientHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ClientHandle, 0, r.count)
	for _, h := range r.slots {
		if h != nil && h.Acquire() {
			out = append(out, h)
		}
	}
	return out
}

// ForEach calls action for every live client that satisfies match (nil
// matches all). References are taken under the table lock and held while
// match and action run, so a concurrent Remove cannot destroy a record that
// is being visited. Neither callback runs with the table lock held.
func (r *Registry) ForEach(match func(*Client) bool, action func(*Client)) int {
	handles := r.Snapshot()
	visited := 0
	for _, h := range handles {
		if c, ok := h.Get(); ok && !c.Closed() && (match == nil || match(c)) {
			action(c)
			visited++
		}
		_ = h.Release()
	}
	return visited
}

// Clients returns a snapshot of every occupied slot, in slot order.
func (r *Registry) Clients() []ClientInfo {
	var out []ClientInfo
	r.ForEach(nil, func(c *Client) {
		out = append(out, c.Info())
	})
	return out
}

// destroy runs when the last reference to a record is released.
func (r *Registry) destroy(c *Client) {
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		r.logger.Warn("close client connection", "client_id", c.ID, "error", err)
	}
	r.logger.Debug("client record released", "client_id", c.ID, "slot", c.Slot)
}
