// Package hooks publishes typed lifecycle events to in-process subscribers.
// The bus is the single observability seam of the platform: the executor,
// planner, and tool loop publish through it, and logging, metrics, and
// streaming adapters subscribe to it.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans events out to registered subscribers. It is thread-safe and
	// supports concurrent Publish and Register operations.
	//
	// Delivery is synchronous in the publisher's goroutine, in registration
	// order, stopping at the first subscriber error. Subscribers that perform
	// slow work must hand off internally; they may not block the publisher.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber. The context is forwarded to each subscriber.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber and returns a Subscription whose Close
		// unregisters it. Register fails when sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events. HandleEvent should return an
	// error only when processing fails in a way that must halt the process
	// (critical persistence failure); non-critical failures should be logged
	// and swallowed so other subscribers still receive the event.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is an active registration. Close is idempotent and
	// thread-safe; after it returns the subscriber receives no new events,
	// though an in-flight Publish may still deliver.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers []*subscription
	}

	subscription struct {
		bus  *bus
		sub  Subscriber
		once sync.Once
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NewBus constructs an in-memory event bus ready for immediate use.
func NewBus() Bus {
	return &bus{}
}

// Publish delivers the event to a snapshot of the current subscribers so
// registrations and closes during delivery do not affect this publication.
// Ordering to a single subscriber follows publication order; ordering across
// subscribers follows registration order.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()
	for _, s := range subs {
		if err := s.sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber to the bus.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	s := &subscription{bus: b, sub: sub}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Always returns nil.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, cur := range s.bus.subscribers {
			if cur == s {
				s.bus.subscribers = append(s.bus.subscribers[:i], s.bus.subscribers[i+1:]...)
				break
			}
		}
	})
	return nil
}
