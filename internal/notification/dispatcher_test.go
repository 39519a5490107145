package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ibabi/ibabi-backend/internal/notification"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fakes
// ============================================================================

type memDedup struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newMemDedup() *memDedup { return &memDedup{claimed: map[string]bool{}} }

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.claimed[id] {
		return false, nil
	}
	d.claimed[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, id)
	return nil
}

type recordingNotifier struct {
	sent []notification.Notification
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Notification) error {
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func mustEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	e, err := messaging.NewEvent(eventType, "resource-service", "corr-1", data)
	require.NoError(t, err)
	return e
}

// ============================================================================
// Dispatcher
// ============================================================================

func TestDispatcher_RequestTransition(t *testing.T) {
	dedup := newMemDedup()
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(dedup, notifier, logger.Nop())

	comment := "out of season"
	stranded := "12.5000"
	event := mustEvent(t, messaging.EventRequestRejected, messaging.RequestTransitionedEvent{
		RequestID:        "req-1",
		Kind:             "farmer",
		FromStatus:       "approved",
		ToStatus:         "rejected",
		RequesterID:      "farmer-1",
		ProductID:        "product-npk",
		Quantity:         "12.5000",
		Comment:          &comment,
		StrandedQuantity: &stranded,
	})

	require.NoError(t, d.Handle(context.Background(), event))
	require.Len(t, notifier.sent, 1)

	sent := notifier.sent[0]
	assert.Equal(t, event.ID, sent.EventID)
	assert.Equal(t, "farmer-1", sent.RecipientID)
	assert.Equal(t, "Request rejected", sent.Subject)
	assert.Contains(t, sent.Body, "out of season")
	assert.Contains(t, sent.Body, "12.5000 already moved")
}

func TestDispatcher_DuplicateSkipped(t *testing.T) {
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(newMemDedup(), notifier, logger.Nop())

	event := mustEvent(t, messaging.EventFarmerCredited, messaging.FarmerBalanceEvent{
		FarmerID:  "farmer-1",
		ProductID: "product-npk",
		Amount:    "100",
		Remaining: "100",
	})

	require.NoError(t, d.Handle(context.Background(), event))
	require.NoError(t, d.Handle(context.Background(), event))
	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, "Balance credited", notifier.sent[0].Subject)
}

func TestDispatcher_FailureReleasesClaim(t *testing.T) {
	dedup := newMemDedup()
	notifier := &recordingNotifier{fail: errors.New("smtp down")}
	d := notification.NewDispatcher(dedup, notifier, logger.Nop())

	event := mustEvent(t, messaging.EventStockAdded, messaging.StockAddedEvent{
		BatchID:    "batch-1",
		DistrictID: "district-1",
		ProductID:  "product-npk",
		Quantity:   "500",
		AddedBy:    "officer-1",
	})

	err := d.Handle(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")

	// redelivery succeeds once the notifier recovers
	notifier.fail = nil
	require.NoError(t, d.Handle(context.Background(), event))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "officer-1", notifier.sent[0].RecipientID)
}

func TestDispatcher_DecodeErrorIsReturned(t *testing.T) {
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(newMemDedup(), notifier, logger.Nop())

	event := &messaging.Event{ID: "evt-1", Type: messaging.EventFarmerDeducted, Data: []byte(`"not an object"`)}
	require.Error(t, d.Handle(context.Background(), event))
	assert.Empty(t, notifier.sent)
}

func TestDispatcher_ClaimError(t *testing.T) {
	dedup := newMemDedup()
	dedup.err = errors.New("redis unavailable")
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(dedup, notifier, logger.Nop())

	event := mustEvent(t, messaging.EventRequestSubmitted, messaging.RequestTransitionedEvent{RequestID: "req-1"})
	require.Error(t, d.Handle(context.Background(), event))
	assert.Empty(t, notifier.sent)
}

func TestDispatcher_FeedbackHasNoRecipient(t *testing.T) {
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(newMemDedup(), notifier, logger.Nop())

	event := mustEvent(t, messaging.EventFeedbackSubmitted, messaging.FeedbackSubmittedEvent{
		FeedbackID: "fb-1",
		RequestID:  "req-1",
		FarmerID:   "farmer-1",
		Rating:     4,
	})
	require.NoError(t, d.Handle(context.Background(), event))
	assert.Empty(t, notifier.sent)
}

func TestDispatcher_CellRequestSubject(t *testing.T) {
	notifier := &recordingNotifier{}
	d := notification.NewDispatcher(newMemDedup(), notifier, logger.Nop())

	event := mustEvent(t, messaging.EventCellRequestApproved, messaging.RequestTransitionedEvent{
		RequestID:   "creq-1",
		Kind:        "cell",
		ToStatus:    "approved",
		RequesterID: "cell-officer-1",
		Quantity:    "40",
	})
	require.NoError(t, d.Handle(context.Background(), event))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Cell request approved", notifier.sent[0].Subject)
	assert.Equal(t, "cell-officer-1", notifier.sent[0].RecipientID)
}
