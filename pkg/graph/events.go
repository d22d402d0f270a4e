package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
)

const defaultEventBuffer = 64

// EventBus fans change notifications out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event and the loss
// is counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

// Subscription is one consumer of an EventBus.
type Subscription struct {
	ch     chan domain.Event
	bus    *EventBus
	cancel context.CancelFunc
	once   sync.Once
}

// NewEventBus creates a bus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a consumer. The subscription ends when ctx is done or
// Unsubscribe is called; its channel is then closed. A closed bus returns a
// subscription whose channel is already closed.
func (b *EventBus) Subscribe(ctx context.Context, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{ch: make(chan domain.Event, buffer), bus: b, cancel: cancel}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-subCtx.Done()
		sub.Unsubscribe()
	}()
	return sub
}

// Publish delivers ev to every subscriber that has room for it.
func (b *EventBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *EventBus) Dropped() uint64 { return b.dropped.Load() }

// Close ends every subscription.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.cancel()
		sub.close()
	}
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.cancel()
	s.close()
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}
