package viewer

import (
	"sync"

	"github.com/nova-companion/nova-go/internal/avatar"
)

// Hub fans avatar states out to stream subscribers. Delivery is
// non-blocking: a subscriber that stops draining loses its oldest pending
// state, never the publisher's time. Publish is safe to call from the
// session loop.
type Hub struct {
	mu   sync.Mutex
	subs map[chan avatar.State]struct{}
	last avatar.State
	seen bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan avatar.State]struct{})}
}

// Publish records the state and offers it to every subscriber.
func (h *Hub) Publish(state avatar.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = state
	h.seen = true
	for sub := range h.subs {
		select {
		case sub <- state:
		default:
			// Full buffer: drop the oldest so the newest always lands.
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- state:
			default:
			}
		}
	}
}

// Subscribe registers a stream consumer. The returned channel receives the
// last published state immediately when one exists. cancel must be called
// when the consumer goes away.
func (h *Hub) Subscribe() (<-chan avatar.State, func()) {
	sub := make(chan avatar.State, 8)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	if h.seen {
		sub <- h.last
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
	return sub, cancel
}
