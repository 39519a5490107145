package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// AddDistrictStock records a new acquisition batch for a district
func (s *ResourceService) AddDistrictStock(ctx context.Context, districtID, productID string, quantity decimal.Decimal) (result *LedgerResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "district", "add_stock", districtID, started, err) }()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(districtID) == "" {
		return nil, errors.ValidationField("district_id", "this field is required")
	}
	if !a.IsSuperAdmin() && !a.ManagesDistrict(districtID) {
		return nil, errors.Forbidden("only the officer of this district can add stock to it")
	}
	if !quantity.IsPositive() {
		return nil, errors.ValidationField("quantity", "must be greater than zero")
	}

	product, err := s.directory.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	batch := &domain.DistrictBatch{
		ID:                       uuid.New().String(),
		DistrictID:               districtID,
		ProductID:                product.ID,
		QuantityAdded:            quantity,
		QuantityAllocatedToCells: decimal.Zero,
		AddedBy:                  a.ID,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	event, err := domain.NewEvent(messaging.EventStockAdded, domain.AggregateDistrictBatch, batch.ID, now,
		messaging.StockAddedEvent{
			BatchID:    batch.ID,
			DistrictID: districtID,
			ProductID:  product.ID,
			Quantity:   quantity.String(),
			AddedBy:    a.ID,
		})
	if err != nil {
		return nil, err
	}
	events := []domain.Event{event}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		if err := tx.InsertDistrictBatch(ctx, batch); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, events)
	})
	if err != nil {
		return nil, err
	}

	return &LedgerResult{Batch: batch, Events: events}, nil
}

// DeductFarmerStock records consumption from a farmer's balance. It fails
// without side effects when amount exceeds what remains.
func (s *ResourceService) DeductFarmerStock(ctx context.Context, farmerID, productID string, amount decimal.Decimal) (result *LedgerResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "farmer_balance", "deduct", farmerID, started, err) }()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if farmerID == "" {
		farmerID = a.ID
	}
	if !a.IsSuperAdmin() && a.ID != farmerID {
		return nil, errors.Forbidden("farmers can only deduct from their own balance")
	}
	if strings.TrimSpace(productID) == "" {
		return nil, errors.ValidationField("product_id", "this field is required")
	}
	if !amount.IsPositive() {
		return nil, errors.ValidationField("amount", "must be greater than zero")
	}

	result = &LedgerResult{}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		balance, err := tx.LockFarmerBalance(ctx, farmerID, productID)
		if err != nil {
			return err
		}

		available := balance.Remaining()
		if !balance.Deduct(amount) {
			return errors.InsufficientBalance(
				"deduction exceeds the remaining balance",
				available.String(),
				amount.String(),
				amount.Sub(available).String(),
			)
		}

		now := s.now()
		balance.UpdatedAt = now
		if err := tx.SaveFarmerBalance(ctx, balance); err != nil {
			return err
		}

		deduction := &domain.FarmerDeduction{
			ID:        uuid.New().String(),
			FarmerID:  farmerID,
			ProductID: productID,
			Amount:    amount,
			ActorID:   a.ID,
			CreatedAt: now,
		}
		if err := tx.InsertDeduction(ctx, deduction); err != nil {
			return err
		}

		event, err := domain.NewEvent(messaging.EventFarmerDeducted, domain.AggregateFarmerBalance, balance.ID, now,
			messaging.FarmerBalanceEvent{
				FarmerID:  farmerID,
				ProductID: productID,
				Amount:    amount.String(),
				Remaining: balance.Remaining().String(),
			})
		if err != nil {
			return err
		}
		events := []domain.Event{event}
		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}

		result.FarmerBalance = balance
		result.Deduction = deduction
		result.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SubmitFeedback records the owning farmer's rating of a delivered request
func (s *ResourceService) SubmitFeedback(ctx context.Context, requestID string, rating int, comment *string) (result *FeedbackResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, domain.KindFarmer, "feedback", requestID, started, err) }()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, errors.ValidationField("rating", "must be between 1 and 5")
	}

	req, err := s.store.GetResourceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != a.ID {
		return nil, errors.Forbidden("only the farmer who made the request can rate it")
	}
	if req.Status != domain.StatusDelivered {
		return nil, errors.ValidationField("status", "feedback can only be given on delivered requests")
	}

	existing, err := s.store.GetFeedback(ctx, requestID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Conflict("feedback for this request was already submitted")
	}

	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		comment = &trimmed
		if trimmed == "" {
			comment = nil
		}
	}

	now := s.now()
	feedback := &domain.Feedback{
		ID:        uuid.New().String(),
		RequestID: requestID,
		FarmerID:  a.ID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
	}

	event, err := domain.NewEvent(messaging.EventFeedbackSubmitted, domain.AggregateResourceRequest, requestID, now,
		messaging.FeedbackSubmittedEvent{
			FeedbackID: feedback.ID,
			RequestID:  requestID,
			FarmerID:   a.ID,
			Rating:     rating,
			Comment:    comment,
		})
	if err != nil {
		return nil, err
	}
	events := []domain.Event{event}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		if err := tx.InsertFeedback(ctx, feedback); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, events)
	})
	if err != nil {
		return nil, err
	}

	return &FeedbackResult{Feedback: feedback, Events: events}, nil
}
