package events

import (
	"context"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
)

// ServiceName is stamped as the source of every published event
const ServiceName = "resource-service"

type eventPublisher interface {
	PublishEvent(ctx context.Context, event *messaging.Event) error
}

// ResourceEventPublisher publishes committed ledger events to the resource exchange
type ResourceEventPublisher struct {
	publisher eventPublisher
	logger    *logger.Logger
}

// NewResourceEventPublisher declares the resource exchange and returns a publisher on it
func NewResourceEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ResourceEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeResourceEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}
	return NewResourceEventPublisherWith(publisher, log), nil
}

// NewResourceEventPublisherWith wraps an existing publisher
func NewResourceEventPublisherWith(p eventPublisher, log *logger.Logger) *ResourceEventPublisher {
	return &ResourceEventPublisher{publisher: p, logger: log}
}

// Envelope converts an outbox event to the wire envelope. The outbox id is
// reused as the event id, so a republished event is recognised downstream.
func Envelope(e domain.Event, correlationID string) *messaging.Event {
	if correlationID == "" {
		correlationID = e.AggregateID
	}
	return &messaging.Event{
		ID:            e.ID,
		Type:          e.Type,
		Source:        ServiceName,
		Timestamp:     e.OccurredAt.UTC(),
		CorrelationID: correlationID,
		Data:          e.Payload,
	}
}

// Publish sends one outbox event
func (p *ResourceEventPublisher) Publish(ctx context.Context, e domain.Event) error {
	if err := p.publisher.PublishEvent(ctx, Envelope(e, messaging.CorrelationID(ctx))); err != nil {
		p.logger.Error().Err(err).
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Msg("failed to publish resource event")
		return err
	}
	return nil
}
