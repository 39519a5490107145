package notification

import (
	"context"

	"github.com/ibabi/ibabi-backend/pkg/logger"
)

// Notification is a message addressed to one user.
type Notification struct {
	EventID     string
	EventType   string
	RecipientID string
	Subject     string
	Body        string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info().
		Str("event_id", msg.EventID).
		Str("event_type", msg.EventType).
		Str("recipient_id", msg.RecipientID).
		Str("subject", msg.Subject).
		Msg(msg.Body)
	return nil
}
