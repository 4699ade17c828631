package fleet

import (
	"sync"

	"jute-fleet-backend/internal/model"
)

// Hub fans snapshots out to subscribers. Each subscriber has a one-slot
// channel; an undelivered snapshot is replaced by the newer one, so Broadcast
// never blocks on a slow reader.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

type subscriber struct {
	viewer Viewer
	ch     chan model.Snapshot
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers v and returns v's view of current, the update channel
// and an idempotent unsubscribe func. The channel is closed on unsubscribe
// or when the hub closes.
func (h *Hub) Subscribe(v Viewer, current model.Snapshot) (model.Snapshot, <-chan model.Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan model.Snapshot, 1)
	initial := Filter(current, v)
	if h.closed {
		close(ch)
		return initial, ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{viewer: v, ch: ch}

	var once sync.Once
	return initial, ch, func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Broadcast delivers each subscriber its filtered view of snap.
func (h *Hub) Broadcast(snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		view := Filter(snap, sub.viewer)
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- view:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
