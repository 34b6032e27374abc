// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// single-process development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/reviewhound/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-memory events.EventBus. Published envelopes are delivered
// synchronously to every handler subscribed to the event's type, in
// subscription order.
type Broker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[events.EventType]map[int]events.HandlerFunc
	closed   bool
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType]map[int]events.HandlerFunc)}
}

// Publish delivers the envelope to all handlers subscribed to its type,
// stopping at the first handler error. Handlers are copied before iteration
// so a handler may subscribe without deadlocking.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("broker is closed")
	}
	registered := b.handlers[event.Type]
	ids := make([]int, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlersCopy := make([]events.HandlerFunc, 0, len(ids))
	for _, id := range ids {
		handlersCopy = append(handlersCopy, registered[id])
	}
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event, func(error) {}); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. The handler is
// removed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker is closed")
	}
	b.nextID++
	id := b.nextID
	for _, et := range eventTypes {
		if b.handlers[et] == nil {
			b.handlers[et] = make(map[int]events.HandlerFunc)
		}
		b.handlers[et][id] = handler
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, et := range eventTypes {
			delete(b.handlers[et], id)
		}
	}()

	return nil
}

// Close marks the broker closed; subsequent publishes and subscriptions fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[events.EventType]map[int]events.HandlerFunc)
	return nil
}
