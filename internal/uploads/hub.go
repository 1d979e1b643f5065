package uploads

import "sync"

// Hub is the single progress stream shared by every upload of the server.
// Handlers run synchronously on the publishing goroutine, in subscription
// order, outside the hub's lock.
type Hub struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is a handler registration. Close it when the listener goes away.
type Subscription struct {
	hub  *Hub
	fn   func(Event)
	once sync.Once
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{} }

// Subscribe registers fn for every future event.
func (h *Hub) Subscribe(fn func(Event)) *Subscription {
	s := &Subscription{hub: h, fn: fn}
	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s
}

// Publish delivers e to every current subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	subs := make([]*Subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, x := range h.subs {
			if x == s {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	})
}
