package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ibabi/ibabi-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAck struct {
	acked    int
	nacked   int
	requeued bool
	rejected int
}

func (r *recordingAck) Ack(tag uint64, multiple bool) error {
	r.acked++
	return nil
}

func (r *recordingAck) Nack(tag uint64, multiple, requeue bool) error {
	r.nacked++
	r.requeued = requeue
	return nil
}

func (r *recordingAck) Reject(tag uint64, requeue bool) error {
	r.rejected++
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, eventType string) amqp.Delivery {
	t.Helper()
	ev, err := NewEvent(eventType, "test", "corr-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestConsumer_HandleMessage(t *testing.T) {
	t.Run("acks handled event and passes correlation id", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())
		var gotCorrelation string
		c.RegisterHandler(EventStockAdded, func(ctx context.Context, e *Event) error {
			gotCorrelation = CorrelationID(ctx)
			return nil
		})

		c.handleMessage(context.Background(), delivery(t, ack, EventStockAdded))

		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, "corr-1", gotCorrelation)
	})

	t.Run("fallback handles unregistered types", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())
		called := false
		c.RegisterFallback(func(ctx context.Context, e *Event) error {
			called = true
			return nil
		})

		c.handleMessage(context.Background(), delivery(t, ack, EventFarmerCredited))

		assert.True(t, called)
		assert.Equal(t, 1, ack.acked)
	})

	t.Run("acks events nobody handles", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())

		c.handleMessage(context.Background(), delivery(t, ack, EventFarmerCredited))

		assert.Equal(t, 1, ack.acked)
	})

	t.Run("first failure requeues", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterFallback(func(ctx context.Context, e *Event) error { return errors.New("boom") })

		c.handleMessage(context.Background(), delivery(t, ack, EventStockAdded))

		assert.Equal(t, 1, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("redelivered failure is dead-lettered", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterFallback(func(ctx context.Context, e *Event) error { return errors.New("boom") })

		msg := delivery(t, ack, EventStockAdded)
		msg.Redelivered = true
		c.handleMessage(context.Background(), msg)

		assert.Equal(t, 1, ack.rejected)
		assert.Zero(t, ack.nacked)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		ack := &recordingAck{}
		c := newConsumer(nil, "q", logger.Nop())

		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})

		assert.Equal(t, 1, ack.rejected)
	})
}

func TestGetRetryCount(t *testing.T) {
	msg := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"count": int64(2)},
			amqp.Table{"count": int64(1)},
		},
	}}
	assert.Equal(t, 3, getRetryCount(msg))
	assert.Equal(t, 0, getRetryCount(amqp.Delivery{}))
}
