package identity

import "sync"

// Hub fans auth-state changes out to subscribers.
//
// Each subscriber channel holds one pending state; a newer state replaces an unread older one, so a
// slow reader always sees the latest principal and never blocks the publisher.
type Hub struct {
	mu      sync.Mutex
	current *Principal
	subs    map[chan *Principal]struct{}
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{subs: make(map[chan *Principal]struct{})}
}

// Subscribe registers a subscriber and primes it with the current state.
func (h *Hub) Subscribe() (<-chan *Principal, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *Principal, 1)
	h.subs[ch] = struct{}{}
	ch <- h.current

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, ch)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish records p as the current state and delivers it to every subscriber.
func (h *Hub) Publish(p *Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = p
	for ch := range h.subs {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

// Current returns the last published state.
func (h *Hub) Current() *Principal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
