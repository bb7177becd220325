package event

import (
	"sync"
	"time"
)

// Handler processes a delivered event.
type Handler func(Event)

// Subscription is a live registration on the bus.
type Subscription struct {
	bus     *Bus
	pattern Topic
	fn      Handler
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// Bus delivers events to matching subscribers, synchronously and in
// subscription order.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for topics matching the pattern.
func (b *Bus) Subscribe(pattern Topic, fn Handler) *Subscription {
	s := &Subscription{bus: b, pattern: pattern, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
	return s
}

// Publish delivers an event to every matching subscriber before
// returning. Handlers may publish further events; delivery nests.
func (b *Bus) Publish(t Topic, payload any) {
	ev := Event{Topic: t, Payload: payload, Time: time.Now()}

	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.pattern.Match(t) {
			s.fn(ev)
		}
	}
}

func (b *Bus) unsubscribe(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
