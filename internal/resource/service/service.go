package service

import (
	"context"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/metrics"
)

// ResourceService runs the resource ledger: request submission, approval,
// rejection, delivery, district stock intake and farmer consumption.
// Every mutating call is one transaction on the Store; the events it
// produces are written to the outbox in that transaction and returned.
type ResourceService struct {
	store     Store
	directory Directory
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

// Option customizes a ResourceService
type Option func(*ResourceService)

// WithClock overrides time.Now, mostly for season-sensitive tests
func WithClock(now func() time.Time) Option {
	return func(s *ResourceService) {
		s.now = now
	}
}

// WithMetrics records transition counters and durations
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ResourceService) {
		s.metrics = m
	}
}

// NewResourceService creates a new resource service
func NewResourceService(store Store, directory Directory, log *logger.Logger, opts ...Option) *ResourceService {
	s := &ResourceService{
		store:     store,
		directory: directory,
		logger:    log.WithComponent("resource-ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransitionResult is returned by every committed request transition
type TransitionResult struct {
	RequestID   string               `json:"request_id"`
	Kind        domain.RequestKind   `json:"kind"`
	Status      domain.RequestStatus `json:"status"`
	Balances    domain.Balances      `json:"balances"`
	Allocations []domain.Allocation  `json:"allocations,omitempty"`
	Events      []domain.Event       `json:"events"`
}

// SubmitResult is returned when a farmer request is created
type SubmitResult struct {
	Request  *domain.ResourceRequest `json:"request"`
	Warnings []string                `json:"warnings,omitempty"`
	Events   []domain.Event          `json:"events"`
}

// CellSubmitResult is returned when a cell request is created
type CellSubmitResult struct {
	Request *domain.CellResourceRequest `json:"request"`
	Events  []domain.Event              `json:"events"`
}

// LedgerResult is returned by stock intake and deduction
type LedgerResult struct {
	Batch         *domain.DistrictBatch   `json:"batch,omitempty"`
	FarmerBalance *domain.FarmerBalance   `json:"farmer_balance,omitempty"`
	Deduction     *domain.FarmerDeduction `json:"deduction,omitempty"`
	Events        []domain.Event          `json:"events"`
}

// FeedbackResult is returned when feedback is recorded
type FeedbackResult struct {
	Feedback *domain.Feedback `json:"feedback"`
	Events   []domain.Event   `json:"events"`
}

func requireActor(ctx context.Context) (*actor.Actor, error) {
	a := actor.FromContext(ctx)
	if a == nil || a.ID == "" {
		return nil, errors.Unauthorized("authentication required")
	}
	return a, nil
}

// observe records metrics and logs the outcome of one ledger operation
func (s *ResourceService) observe(ctx context.Context, kind domain.RequestKind, op, id string, started time.Time, err error) {
	s.metrics.ObserveTransition(string(kind), op, started, err)

	log := s.logger.WithRequest(string(kind), id)
	if a := actor.FromContext(ctx); a != nil {
		log = log.WithActor(a.ID, a.Role)
	}

	switch {
	case err == nil:
		log.Info().Str("operation", op).Dur("duration", time.Since(started)).Msg("ledger operation committed")
	case errors.Is(err, errors.ErrRetryable):
		log.Warn().Err(err).Str("operation", op).Msg("ledger operation hit a lock or statement timeout")
	default:
		var appErr *errors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode < 500 {
			log.Debug().Err(err).Str("operation", op).Msg("ledger operation refused")
			return
		}
		log.Error().Err(err).Str("operation", op).Msg("ledger operation failed")
	}
}

func strPtr(s string) *string {
	return &s
}
