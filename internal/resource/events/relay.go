package events

import (
	"context"
	"sync"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/metrics"
)

// OutboxSource hands out committed, unpublished events
type OutboxSource interface {
	ProcessPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, domain.Event) error) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// Sink receives events in commit order
type Sink interface {
	Publish(ctx context.Context, e domain.Event) error
}

// RelayConfig tunes the polling loop
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// OutboxRelay periodically moves events from the outbox to the broker.
// Delivery is at least once: an event is marked published only after the
// sink accepted it.
type OutboxRelay struct {
	source  OutboxSource
	sink    Sink
	cfg     RelayConfig
	metrics *metrics.Metrics
	logger  *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay creates a relay. m may be nil.
func NewOutboxRelay(source OutboxSource, sink Sink, cfg RelayConfig, m *metrics.Metrics, log *logger.Logger) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &OutboxRelay{
		source:  source,
		sink:    sink,
		cfg:     cfg,
		metrics: m,
		logger:  log.WithComponent("outbox-relay"),
	}
}

// Start runs the relay in a background goroutine until Stop or ctx ends
func (r *OutboxRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info().Dur("interval", r.cfg.Interval).Msg("outbox relay started")

		r.drain(ctx)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("outbox relay stopped")
				return
			case <-ticker.C:
				r.drain(ctx)
			}
		}
	}()
}

// Stop stops the relay and waits for the current batch to finish
func (r *OutboxRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// drain relays full batches until the outbox is empty or a batch comes up short
func (r *OutboxRelay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("outbox relay cycle failed")
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// RunOnce relays one batch and returns how many events were published
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	n, err := r.source.ProcessPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, func(ctx context.Context, e domain.Event) error {
		err := r.sink.Publish(ctx, e)
		r.metrics.OutboxPublished(err == nil)
		return err
	})
	if err != nil {
		return 0, err
	}

	if pending, err := r.source.CountPending(ctx); err == nil {
		r.metrics.SetOutboxPending(pending)
	}

	if n > 0 {
		r.logger.Debug().Int("published", n).Msg("outbox batch relayed")
	}
	return n, nil
}
