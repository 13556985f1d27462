package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Range-Software/range-cloud/pkg/types"
)

// Hub parks request handlers until the dispatcher resolves their action.
// Both listeners share one hub; the waiting goroutine is the route back to
// whichever listener accepted the request.
type Hub struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan types.Action
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{pending: make(map[uuid.UUID]chan types.Action)}
}

// register creates the reply channel for an action id. It must be called
// before the action is handed to the dispatcher.
func (h *Hub) register(id uuid.UUID) chan types.Action {
	ch := make(chan types.Action, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	return ch
}

// cancel drops a pending entry whose handler gave up waiting.
func (h *Hub) cancel(id uuid.UUID) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// Deliver hands a resolved reply to its waiting handler. Unknown ids are
// dropped; every action resolves exactly once, so an unknown id means the
// client is gone.
func (h *Hub) Deliver(reply types.Action) {
	h.mu.Lock()
	ch, ok := h.pending[reply.ID]
	if ok {
		delete(h.pending, reply.ID)
	}
	h.mu.Unlock()
	if ok {
		ch <- reply
	}
}
