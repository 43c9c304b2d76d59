// Package fanout carries encoded events to the hub instance that holds each
// target connection.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope routes one encoded event to a set of connection ids.
// Instances ignore ids they do not hold.
type Envelope struct {
	ConnIDs []string        `json:"conn_ids"`
	Event   json.RawMessage `json:"event"`
}

// Handler receives envelopes in publish order.
type Handler func(Envelope)

// Bus publishes envelopes to every subscribed instance.
type Bus interface {
	// Publish sends env to all subscribers.
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers h and returns once the subscription is active.
	// Delivery stops when ctx is done.
	Subscribe(ctx context.Context, h Handler) error
	// Close releases resources owned by the bus.
	Close() error
}

// Local is an in-process bus. Several hubs sharing one Local behave like
// instances behind a broker.
type Local struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

var _ Bus = (*Local)(nil)

func (l *Local) Publish(_ context.Context, env Envelope) error {
	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = h
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	clear(l.handlers)
	l.mu.Unlock()
	return nil
}
