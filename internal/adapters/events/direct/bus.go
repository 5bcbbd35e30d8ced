// Package direct provides a synchronous in-process event bus.
package direct

import (
	"sync"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
)

// Handler receives published events.
type Handler func(domain.Event)

// Bus implements ports.EventPublisher by invoking every subscriber inline.
// Delivery order is publish order; events published before a subscription
// are not replayed to it.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
}

var _ ports.EventPublisher = (*Bus)(nil)

// Subscription is a live registration on a Bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	handler Handler
	once    sync.Once
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for every subsequent event.
func (b *Bus) Subscribe(handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, bus: b, handler: handler}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers event to the subscribers registered at the time of the
// call, in registration order. Handlers must not publish.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscription. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
