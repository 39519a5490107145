package notification

import (
	"context"
	"fmt"

	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
)

// Dispatcher turns resource events into notifications.
type Dispatcher struct {
	dedup    Deduplicator
	notifier Notifier
	logger   *logger.Logger
}

func NewDispatcher(dedup Deduplicator, notifier Notifier, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		dedup:    dedup,
		notifier: notifier,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Register subscribes the dispatcher to every resource event on the consumer.
func (d *Dispatcher) Register(c *messaging.Consumer) error {
	if err := c.Subscribe(messaging.ExchangeResourceEvents, messaging.RoutingKeyAllResources); err != nil {
		return err
	}
	c.RegisterFallback(d.Handle)
	return nil
}

// Handle is a messaging.MessageHandler. A returned error leaves the event
// unclaimed so the redelivery is handled again.
func (d *Dispatcher) Handle(ctx context.Context, event *messaging.Event) error {
	claimed, err := d.dedup.Claim(ctx, event.ID)
	if err != nil {
		return err
	}
	if !claimed {
		d.logger.Debug().Str("event_id", event.ID).Msg("duplicate event skipped")
		return nil
	}

	if err := d.dispatch(ctx, event); err != nil {
		if relErr := d.dedup.Release(ctx, event.ID); relErr != nil {
			d.logger.Error().Err(relErr).Str("event_id", event.ID).Msg("failed to release event claim")
		}
		return err
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event *messaging.Event) error {
	notes, err := buildNotifications(event)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", event.Type, err)
	}
	if len(notes) == 0 {
		d.logger.Debug().Str("event_type", event.Type).Msg("no recipients for event")
		return nil
	}

	for _, n := range notes {
		if err := d.notifier.Notify(ctx, n); err != nil {
			return fmt.Errorf("failed to notify %s: %w", n.RecipientID, err)
		}
	}
	return nil
}

func buildNotifications(event *messaging.Event) ([]Notification, error) {
	base := Notification{EventID: event.ID, EventType: event.Type}

	switch event.Type {
	case messaging.EventRequestSubmitted, messaging.EventRequestApproved,
		messaging.EventRequestRejected, messaging.EventRequestDelivered,
		messaging.EventCellRequestSubmitted, messaging.EventCellRequestApproved,
		messaging.EventCellRequestRejected, messaging.EventCellRequestDelivered:
		var data messaging.RequestTransitionedEvent
		if err := event.UnmarshalData(&data); err != nil {
			return nil, err
		}
		return []Notification{transitionNotice(base, data)}, nil

	case messaging.EventFarmerCredited, messaging.EventFarmerDeducted:
		var data messaging.FarmerBalanceEvent
		if err := event.UnmarshalData(&data); err != nil {
			return nil, err
		}
		n := base
		n.RecipientID = data.FarmerID
		if event.Type == messaging.EventFarmerCredited {
			n.Subject = "Balance credited"
			n.Body = fmt.Sprintf("%s of product %s credited, %s remaining", data.Amount, data.ProductID, data.Remaining)
		} else {
			n.Subject = "Balance used"
			n.Body = fmt.Sprintf("%s of product %s used, %s remaining", data.Amount, data.ProductID, data.Remaining)
		}
		return []Notification{n}, nil

	case messaging.EventStockAdded:
		var data messaging.StockAddedEvent
		if err := event.UnmarshalData(&data); err != nil {
			return nil, err
		}
		n := base
		n.RecipientID = data.AddedBy
		n.Subject = "District stock recorded"
		n.Body = fmt.Sprintf("batch %s: %s of product %s added to district %s", data.BatchID, data.Quantity, data.ProductID, data.DistrictID)
		return []Notification{n}, nil
	}

	// feedback and unknown types carry no recipient
	return nil, nil
}

func transitionNotice(n Notification, data messaging.RequestTransitionedEvent) Notification {
	n.RecipientID = data.RequesterID
	kind := "Request"
	if data.Kind == "cell" {
		kind = "Cell request"
	}
	n.Subject = fmt.Sprintf("%s %s", kind, data.ToStatus)
	n.Body = fmt.Sprintf("%s %s for %s of product %s is now %s", kind, data.RequestID, data.Quantity, data.ProductID, data.ToStatus)
	if data.Comment != nil && *data.Comment != "" {
		n.Body += ": " + *data.Comment
	}
	if data.StrandedQuantity != nil {
		n.Body += fmt.Sprintf(" (%s already moved stays in place)", *data.StrandedQuantity)
	}
	return n
}
