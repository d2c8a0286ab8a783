// Package messaging delivers domain events to in-process subscribers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/domain/events"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// LocalEventBus fans events out to subscribers synchronously, in
// subscription order. A failing handler does not stop delivery to the
// others; the failures are joined into the returned error.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	logger   *zap.Logger
}

var _ ports.EventBus = (*LocalEventBus)(nil)

// NewLocalEventBus creates an empty bus.
func NewLocalEventBus(logger *zap.Logger) *LocalEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalEventBus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

func (b *LocalEventBus) Subscribe(eventType string, handler ports.EventHandler) error {
	if eventType == "" {
		return pkgerrors.NewValidationError("event type is required")
	}
	if handler == nil {
		return pkgerrors.NewValidationError("event handler is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

func (b *LocalEventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	targets := make([]ports.EventHandler, 0, len(b.handlers[event.GetEventType()])+len(b.handlers[AllEvents]))
	targets = append(targets, b.handlers[event.GetEventType()]...)
	targets = append(targets, b.handlers[AllEvents]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range targets {
		if err := b.deliver(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pkgerrors.ErrEventPublishFailed.New().
			WithDetail("event_type", event.GetEventType()).
			WithCause(errors.Join(errs...))
	}
	return nil
}

// deliver runs one handler, turning a panic into an error.
func (b *LocalEventBus) deliver(ctx context.Context, h ports.EventHandler, event events.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
		if err != nil {
			b.logger.Error("Event handler failed",
				zap.String("eventType", event.GetEventType()),
				zap.String("aggregateID", event.GetAggregateID()),
				zap.Error(err),
			)
		}
	}()
	return h.Handle(ctx, event)
}

// PublishBatch publishes events in order and keeps going past failures.
func (b *LocalEventBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	var errs []error
	for _, e := range batch {
		if err := b.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MetricsListener counts delivered events by type.
func MetricsListener(metrics *observability.Collector) ports.EventHandler {
	return ports.EventHandlerFunc(func(_ context.Context, event events.DomainEvent) error {
		metrics.EventsPublished.WithLabelValues(event.GetEventType()).Inc()
		return nil
	})
}

// LoggingListener writes every event at debug level.
func LoggingListener(logger *zap.Logger) ports.EventHandler {
	return ports.EventHandlerFunc(func(_ context.Context, event events.DomainEvent) error {
		logger.Debug("Domain event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Int("version", event.GetVersion()),
		)
		return nil
	})
}
