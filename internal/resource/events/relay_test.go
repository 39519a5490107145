package events_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/events"
	"github.com/ibabi/ibabi-backend/internal/resource/repository"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/ibabi/ibabi-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	fail   map[string]bool
}

func (s *recordingSink) Publish(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[e.Type] {
		return fmt.Errorf("broker refused %s", e.Type)
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// seedStock commits n stock intakes so the outbox holds n events
func seedStock(t *testing.T, store *repository.MemoryStore, n int) {
	t.Helper()
	store.SeedProduct(domain.Product{ID: "npk", Name: "NPK"})
	svc := service.NewResourceService(store, store, logger.Nop())
	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "admin", Role: actor.RoleSuperAdmin})
	for i := 0; i < n; i++ {
		_, err := svc.AddDistrictStock(ctx, "district-1", "npk", decimal.NewFromInt(int64(i+1)))
		require.NoError(t, err)
	}
}

func TestOutboxRelay_RunOncePublishesInCommitOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStock(t, store, 3)

	sink := &recordingSink{}
	m := metrics.New()
	relay := events.NewOutboxRelay(store, sink, events.RelayConfig{BatchSize: 2}, m, logger.Nop())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	published := sink.Events()
	require.Len(t, published, 3)
	outbox := store.Outbox()
	for i := range outbox {
		assert.Equal(t, outbox[i].ID, published[i].ID)
	}

	pending, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
	// only the success series exists
	count, err := testutil.GatherAndCount(m.Registry(), "ibabi_outbox_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOutboxRelay_FailedEventsStayPending(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStock(t, store, 2)

	sink := &recordingSink{fail: map[string]bool{messaging.EventStockAdded: true}}
	relay := events.NewOutboxRelay(store, sink, events.RelayConfig{}, nil, logger.Nop())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestOutboxRelay_StartDrainsAndStops(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStock(t, store, 5)

	sink := &recordingSink{}
	relay := events.NewOutboxRelay(store, sink, events.RelayConfig{Interval: 10 * time.Millisecond, BatchSize: 2}, nil, logger.Nop())

	relay.Start(context.Background())
	require.Eventually(t, func() bool { return len(sink.Events()) == 5 }, time.Second, 5*time.Millisecond)
	relay.Stop()
}

type capturePublisher struct {
	got []*messaging.Event
}

func (c *capturePublisher) PublishEvent(_ context.Context, e *messaging.Event) error {
	c.got = append(c.got, e)
	return nil
}

func TestResourceEventPublisher_ReusesOutboxID(t *testing.T) {
	capture := &capturePublisher{}
	p := events.NewResourceEventPublisherWith(capture, logger.Nop())

	payload, err := json.Marshal(messaging.StockAddedEvent{BatchID: "b1", Quantity: "10"})
	require.NoError(t, err)
	e := domain.Event{
		ID:            "evt-1",
		Type:          messaging.EventStockAdded,
		AggregateType: domain.AggregateDistrictBatch,
		AggregateID:   "b1",
		OccurredAt:    time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC),
		Payload:       payload,
	}

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, capture.got, 1)

	sent := capture.got[0]
	assert.Equal(t, "evt-1", sent.ID)
	assert.Equal(t, messaging.EventStockAdded, sent.Type)
	assert.Equal(t, events.ServiceName, sent.Source)
	assert.Equal(t, "b1", sent.CorrelationID)

	var data messaging.StockAddedEvent
	require.NoError(t, sent.UnmarshalData(&data))
	assert.Equal(t, "10", data.Quantity)
}
