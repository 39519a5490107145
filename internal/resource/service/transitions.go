package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
)

var farmerEventTypes = map[domain.Transition]string{
	domain.TransitionApprove: messaging.EventRequestApproved,
	domain.TransitionReject:  messaging.EventRequestRejected,
	domain.TransitionDeliver: messaging.EventRequestDelivered,
}

var cellEventTypes = map[domain.Transition]string{
	domain.TransitionApprove: messaging.EventCellRequestApproved,
	domain.TransitionReject:  messaging.EventCellRequestRejected,
	domain.TransitionDeliver: messaging.EventCellRequestDelivered,
}

// ApproveResourceRequest moves a pending farmer request to approved and
// debits the cell balance by the requested quantity.
func (s *ResourceService) ApproveResourceRequest(ctx context.Context, requestID string, comment *string) (*TransitionResult, error) {
	return s.transitionFarmer(ctx, requestID, domain.TransitionApprove, comment)
}

// RejectResourceRequest rejects a pending or approved farmer request.
// Rejecting an approved request does not return stock to the cell.
func (s *ResourceService) RejectResourceRequest(ctx context.Context, requestID string, comment string) (*TransitionResult, error) {
	return s.transitionFarmer(ctx, requestID, domain.TransitionReject, &comment)
}

// MarkResourceRequestDelivered moves an approved farmer request to delivered
// and credits the farmer's balance once.
func (s *ResourceService) MarkResourceRequestDelivered(ctx context.Context, requestID string, comment *string) (*TransitionResult, error) {
	return s.transitionFarmer(ctx, requestID, domain.TransitionDeliver, comment)
}

// ApproveCellRequest moves a pending cell request to approved, allocating
// the quantity from the district's batches oldest first.
func (s *ResourceService) ApproveCellRequest(ctx context.Context, requestID string, comment *string) (*TransitionResult, error) {
	return s.transitionCell(ctx, requestID, domain.TransitionApprove, comment)
}

// RejectCellRequest rejects a pending or approved cell request
func (s *ResourceService) RejectCellRequest(ctx context.Context, requestID string, comment string) (*TransitionResult, error) {
	return s.transitionCell(ctx, requestID, domain.TransitionReject, &comment)
}

// MarkCellRequestDelivered records physical delivery of an approved cell request
func (s *ResourceService) MarkCellRequestDelivered(ctx context.Context, requestID string, comment *string) (*TransitionResult, error) {
	return s.transitionCell(ctx, requestID, domain.TransitionDeliver, comment)
}

func normalizeComment(t domain.Transition, comment *string) (*string, error) {
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if trimmed == "" {
			comment = nil
		} else {
			comment = &trimmed
		}
	}
	if t == domain.TransitionReject && comment == nil {
		return nil, errors.ValidationField("comment", "a comment is required when rejecting a request")
	}
	return comment, nil
}

func (s *ResourceService) transitionFarmer(ctx context.Context, requestID string, t domain.Transition, comment *string) (result *TransitionResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, domain.KindFarmer, string(t), requestID, started, err) }()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	comment, err = normalizeComment(t, comment)
	if err != nil {
		return nil, err
	}

	// authorization and the cheap status check use an unlocked read; the
	// status is checked again once the row is locked
	current, err := s.store.GetResourceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !a.IsSuperAdmin() && !a.ManagesCell(current.CellID) {
		return nil, errors.Forbidden("only the officer of the request's cell can " + string(t) + " it")
	}
	if err := domain.CheckTransition(current.Status, t); err != nil {
		return nil, err
	}

	result = &TransitionResult{RequestID: requestID, Kind: domain.KindFarmer}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		req, err := tx.LockResourceRequest(ctx, requestID)
		if err != nil {
			return err
		}
		from := req.Status
		if err := domain.CheckTransition(from, t); err != nil {
			return err
		}

		now := s.now()
		var events []domain.Event

		switch t {
		case domain.TransitionApprove:
			// approvals for one target share its cell balance row, so counting
			// after the lock sees any approval that committed ahead of us
			balance, err := tx.LockCellBalance(ctx, req.CellID, req.ProductID)
			if err != nil {
				return err
			}

			n, err := tx.CountCommittedRequests(ctx, req.Target(), req.ProductID, req.Season, req.Year, req.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return errors.ValidationField("product_id", "another request for this product is already approved for this target in the same season")
			}

			if balance.QuantityAvailable.LessThan(req.QuantityRequested) {
				return errors.InsufficientStock(
					"not enough stock in the cell to approve this request",
					balance.QuantityAvailable.String(),
					req.QuantityRequested.String(),
					req.QuantityRequested.Sub(balance.QuantityAvailable).String(),
				)
			}
			balance.Debit(req.QuantityRequested)
			balance.UpdatedAt = now
			if err := tx.SaveCellBalance(ctx, balance); err != nil {
				return err
			}
			result.Balances.CellBalance = balance

		case domain.TransitionDeliver:
			if req.CreditedAt == nil {
				balance, err := tx.LockFarmerBalance(ctx, req.RequesterID, req.ProductID)
				if err != nil {
					return err
				}
				balance.Credit(req.QuantityRequested)
				balance.UpdatedAt = now
				if err := tx.SaveFarmerBalance(ctx, balance); err != nil {
					return err
				}
				req.CreditedAt = &now
				result.Balances.FarmerBalance = balance

				credited, err := domain.NewEvent(messaging.EventFarmerCredited, domain.AggregateFarmerBalance, balance.ID, now,
					messaging.FarmerBalanceEvent{
						FarmerID:  balance.FarmerID,
						ProductID: balance.ProductID,
						Amount:    req.QuantityRequested.String(),
						Remaining: balance.Remaining().String(),
						RequestID: strPtr(req.ID),
					})
				if err != nil {
					return err
				}
				events = append(events, credited)
			}
		}

		req.Stamp(t, a.ID, now)
		if comment != nil {
			req.Comment = comment
		}
		if err := tx.UpdateResourceRequest(ctx, req); err != nil {
			return err
		}

		payload := farmerTransitionPayload(req, from, a.ID)
		if t == domain.TransitionReject && from == domain.StatusApproved {
			payload.StrandedQuantity = strPtr(req.QuantityRequested.String())
		}
		transitioned, err := domain.NewEvent(farmerEventTypes[t], domain.AggregateResourceRequest, req.ID, now, payload)
		if err != nil {
			return err
		}
		// the status change comes first so consumers see it before the credit
		events = append([]domain.Event{transitioned}, events...)

		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}

		result.Status = req.Status
		result.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ResourceService) transitionCell(ctx context.Context, requestID string, t domain.Transition, comment *string) (result *TransitionResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, domain.KindCell, string(t), requestID, started, err) }()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	comment, err = normalizeComment(t, comment)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetCellRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !canDecideCellRequest(a, current) {
		return nil, errors.Forbidden("only the officer of the cell's district can " + string(t) + " this request")
	}
	if err := domain.CheckTransition(current.Status, t); err != nil {
		return nil, err
	}

	result = &TransitionResult{RequestID: requestID, Kind: domain.KindCell}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		req, err := tx.LockCellRequest(ctx, requestID)
		if err != nil {
			return err
		}
		from := req.Status
		if err := domain.CheckTransition(from, t); err != nil {
			return err
		}

		now := s.now()

		if t == domain.TransitionApprove {
			batches, err := tx.LockDistrictBatches(ctx, req.DistrictID, req.ProductID)
			if err != nil {
				return err
			}

			if req.QuotaRule == domain.QuotaDistrictShare {
				if err := domain.CheckDistrictShare(req.QuantityRequested, domain.TotalRemaining(batches)); err != nil {
					return err
				}
			}

			allocations, err := domain.Allocate(batches, req.QuantityRequested)
			if err != nil {
				return err
			}

			touched := make([]domain.DistrictBatch, 0, len(allocations))
			for i := range allocations {
				allocations[i].ID = uuid.New().String()
				allocations[i].CellRequestID = req.ID
				for _, b := range batches {
					if b.ID == allocations[i].BatchID {
						b.UpdatedAt = now
						touched = append(touched, b)
						break
					}
				}
			}
			if err := tx.UpdateDistrictBatches(ctx, touched); err != nil {
				return err
			}

			balance, err := tx.LockCellBalance(ctx, req.CellID, req.ProductID)
			if err != nil {
				return err
			}
			balance.Credit(req.QuantityRequested)
			balance.UpdatedAt = now
			if err := tx.SaveCellBalance(ctx, balance); err != nil {
				return err
			}

			if err := tx.InsertAllocations(ctx, allocations); err != nil {
				return err
			}

			req.Allocations = allocations
			result.Allocations = allocations
			result.Balances.DistrictBatches = touched
			result.Balances.CellBalance = balance
		}

		req.Stamp(t, a.ID, now)
		if comment != nil {
			req.Comment = comment
		}
		if err := tx.UpdateCellRequest(ctx, req); err != nil {
			return err
		}

		payload := cellTransitionPayload(req, from, a.ID)
		if t == domain.TransitionReject && from == domain.StatusApproved {
			payload.StrandedQuantity = strPtr(req.QuantityRequested.String())
		}
		event, err := domain.NewEvent(cellEventTypes[t], domain.AggregateCellRequest, req.ID, now, payload)
		if err != nil {
			return err
		}
		events := []domain.Event{event}
		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}

		result.Status = req.Status
		result.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func canDecideCellRequest(a *actor.Actor, req *domain.CellResourceRequest) bool {
	return a.IsSuperAdmin() || a.ManagesDistrict(req.DistrictID)
}
