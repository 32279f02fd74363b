package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks streaming turns per session so that deleting a
// session also stops the replies still being generated for it. A session
// can have several streams at once (several browser tabs).
//
// All methods are safe for concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[string]map[uint64]context.CancelFunc
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]map[uint64]context.CancelFunc)}
}

// Register records a stream for sessionID. The returned function removes
// the entry without cancelling it and must be called when the stream ends.
func (r *InFlightRegistry) Register(sessionID string, cancel context.CancelFunc) (done func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	token := r.next
	if r.entries[sessionID] == nil {
		r.entries[sessionID] = make(map[uint64]context.CancelFunc)
	}
	r.entries[sessionID][token] = cancel
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.entries[sessionID], token)
		if len(r.entries[sessionID]) == 0 {
			delete(r.entries, sessionID)
		}
	}
}

// Cancel stops every stream of sessionID and returns how many there were.
func (r *InFlightRegistry) Cancel(sessionID string) int {
	r.mu.Lock()
	streams := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	for _, cancel := range streams {
		cancel()
	}
	return len(streams)
}

// Len returns the number of sessions with an active stream.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
