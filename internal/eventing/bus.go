package eventing

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Handler consumes a published event.
type Handler func(ctx context.Context, event any) error

// EventTypeOf returns the registry name of T.
func EventTypeOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// InMemoryBus is an in-process bus keyed by event type. Handlers run synchronously
// in subscription order; the first error stops delivery.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewInMemoryBus constructs a new bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type name (see EventTypeOf).
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish wraps the event in an envelope attached to ctx and delivers it.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[env.EventType]...)
	b.mu.RUnlock()

	ctx = WithEnvelope(ctx, env)
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// MultiPublisher fans an event out to several publishers and joins their errors.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher constructs a MultiPublisher, skipping nil entries.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Publish forwards the event to all publishers.
func (m *MultiPublisher) Publish(ctx context.Context, event any) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoggingPublisher logs every event at debug level.
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(ctx context.Context, event any) error {
	if p == nil {
		return errors.New("eventing: nil logging publisher")
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	p.logger.Debug("domain event",
		zap.String("event_type", env.EventType),
		zap.String("subject", env.Subject),
		zap.String("vehicle_id", env.VehicleID),
		zap.ByteString("payload", env.Payload),
	)
	return nil
}
