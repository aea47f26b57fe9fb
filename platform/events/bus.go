// Package events provides event bus infrastructure.
// This file holds the in-memory Bus implementation used by both binaries.
package events

import (
	"context"
	"errors"
	"sync"

	"legalintake_backend/platform/logger"
)

// InMemoryBus is a simple in-process implementation of Bus.
// Asynchronous handlers run in their own goroutine; panics and errors are
// logged, never propagated to the publisher.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the named event.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}

	for _, h := range b.handlersFor(event.EventName()) {
		handler := h
		go func() {
			defer b.recoverPanic(event.EventName())
			if err := handler.Handle(ctx, event); err != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}()
	}
}

// PublishSync dispatches the event and waits for all handlers, returning
// the combined error.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}

	var errs []error
	for _, handler := range b.handlersFor(event.EventName()) {
		if err := b.handleSafe(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryBus) handlersFor(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	registered := b.handlers[eventName]
	out := make([]Handler, len(registered))
	copy(out, registered)
	return out
}

func (b *InMemoryBus) handleSafe(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", event.EventName(), "panic", r)
			err = errors.New("event handler panicked")
		}
	}()
	return handler.Handle(ctx, event)
}

func (b *InMemoryBus) recoverPanic(eventName string) {
	if r := recover(); r != nil {
		b.log.Error("event handler panicked", "event", eventName, "panic", r)
	}
}

var _ Bus = (*InMemoryBus)(nil)
