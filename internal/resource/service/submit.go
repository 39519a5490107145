package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// SubmitResourceRequestInput is a farmer's request. ProductID defaults to
// the planned crop of the target's cell; Quantity defaults to the
// recommended amount for the land.
type SubmitResourceRequestInput struct {
	Target    domain.RequestTarget
	ProductID *string
	Quantity  *decimal.Decimal
}

// SubmitCellRequestInput is a cell officer's request against the district pool
type SubmitCellRequestInput struct {
	CellID    string
	ProductID string
	Quantity  *decimal.Decimal
}

// SubmitResourceRequest validates a farmer request against the quota rules
// and records it as pending. Nothing is locked; stock moves on approval.
func (s *ResourceService) SubmitResourceRequest(ctx context.Context, in SubmitResourceRequestInput) (result *SubmitResult, err error) {
	started := time.Now()
	defer func() {
		id := ""
		if result != nil {
			id = result.Request.ID
		}
		s.observe(ctx, domain.KindFarmer, "submit", id, started, err)
	}()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err := in.Target.Validate(); err != nil {
		return nil, errors.ValidationField("target", err.Error())
	}

	site, err := s.directory.ResolveTarget(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	if site.OwnerID != a.ID {
		return nil, errors.ValidationField("target", fmt.Sprintf("the %s does not belong to the requester", in.Target.Kind))
	}

	now := s.now()
	season, year := domain.SeasonFor(now)

	planned, err := s.directory.PlannedCrop(ctx, site.CellID, season, year)
	if err != nil {
		return nil, err
	}

	var productID string
	switch {
	case in.ProductID != nil && *in.ProductID != "":
		productID = *in.ProductID
	case planned != nil:
		productID = *planned
	default:
		return nil, errors.ValidationField("product_id", "No product specified and no planned crop found for the cell.")
	}

	product, err := s.directory.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	rate, err := s.directory.RecommendedRate(ctx, product.ID, product.Name)
	if err != nil {
		return nil, err
	}

	remaining, err := s.store.DistrictRemaining(ctx, site.DistrictID, product.ID)
	if err != nil {
		return nil, err
	}

	quotaIn := domain.QuotaInput{
		ProductID:         product.ID,
		PlannedProductID:  planned,
		Rate:              rate,
		DistrictRemaining: remaining,
		Requested:         in.Quantity,
	}
	if in.Target.Kind == domain.TargetLand {
		quotaIn.Hectares = site.SizeHectares
	} else {
		quotaIn.Livestock = true
	}

	decision, err := domain.EvaluateQuota(quotaIn)
	if err != nil {
		return nil, err
	}

	committed, err := s.store.HasCommittedRequest(ctx, in.Target, product.ID, season, year)
	if err != nil {
		return nil, err
	}
	if committed {
		return nil, errors.ValidationField("product_id", duplicateMessage(product.Name, in.Target.Kind, season, year))
	}

	price, err := s.directory.UnitPrice(ctx, product.ID, site.CellID, site.SectorID, site.DistrictID)
	if err != nil {
		return nil, err
	}

	req := &domain.ResourceRequest{
		ID:                uuid.New().String(),
		RequesterID:       a.ID,
		CellID:            site.CellID,
		DistrictID:        site.DistrictID,
		ProductID:         product.ID,
		QuantityRequested: decision.Quantity,
		Status:            domain.StatusPending,
		Season:            season,
		Year:              year,
		QuotaRule:         decision.Rule,
		QuotaCeiling:      decision.Ceiling,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	req.SetTarget(in.Target)
	if price != nil {
		req.UnitPrice = decimal.NewNullDecimal(price.Amount)
		req.TotalPrice = decimal.NewNullDecimal(price.Amount.Mul(decision.Quantity).Round(4))
	}

	var warnings []string
	if planned != nil && *planned != product.ID {
		warnings = append(warnings, fmt.Sprintf("%s is not the planned crop for season %s %d", product.Name, season, year))
	}

	event, err := domain.NewEvent(messaging.EventRequestSubmitted, domain.AggregateResourceRequest, req.ID, now,
		farmerTransitionPayload(req, "", a.ID))
	if err != nil {
		return nil, err
	}
	events := []domain.Event{event}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		if err := tx.InsertResourceRequest(ctx, req); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, events)
	})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{Request: req, Warnings: warnings, Events: events}, nil
}

// SubmitCellRequest validates a cell officer's request for district stock
// and records it as pending. The hectare basis is the cell's owned farmland.
func (s *ResourceService) SubmitCellRequest(ctx context.Context, in SubmitCellRequestInput) (result *CellSubmitResult, err error) {
	started := time.Now()
	defer func() {
		id := ""
		if result != nil {
			id = result.Request.ID
		}
		s.observe(ctx, domain.KindCell, "submit", id, started, err)
	}()

	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.CellID) == "" {
		return nil, errors.ValidationField("cell_id", "this field is required")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, errors.ValidationField("product_id", "this field is required")
	}

	if !a.IsSuperAdmin() && !a.ManagesCell(in.CellID) {
		return nil, errors.Forbidden("only the officer of this cell can request district stock for it")
	}

	cell, err := s.directory.GetCell(ctx, in.CellID)
	if err != nil {
		return nil, err
	}

	product, err := s.directory.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	season, year := domain.SeasonFor(now)

	planned, err := s.directory.PlannedCrop(ctx, cell.ID, season, year)
	if err != nil {
		return nil, err
	}

	rate, err := s.directory.RecommendedRate(ctx, product.ID, product.Name)
	if err != nil {
		return nil, err
	}

	hectares, err := s.directory.CellFarmlandHectares(ctx, cell.ID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.store.DistrictRemaining(ctx, cell.DistrictID, product.ID)
	if err != nil {
		return nil, err
	}

	decision, err := domain.EvaluateQuota(domain.QuotaInput{
		ProductID:         product.ID,
		PlannedProductID:  planned,
		Rate:              rate,
		Hectares:          &hectares,
		DistrictRemaining: remaining,
		Requested:         in.Quantity,
	})
	if err != nil {
		return nil, err
	}

	req := &domain.CellResourceRequest{
		ID:                uuid.New().String(),
		RequesterID:       a.ID,
		CellID:            cell.ID,
		DistrictID:        cell.DistrictID,
		ProductID:         product.ID,
		QuantityRequested: decision.Quantity,
		Status:            domain.StatusPending,
		Season:            season,
		Year:              year,
		QuotaRule:         decision.Rule,
		QuotaCeiling:      decision.Ceiling,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	event, err := domain.NewEvent(messaging.EventCellRequestSubmitted, domain.AggregateCellRequest, req.ID, now,
		cellTransitionPayload(req, "", a.ID))
	if err != nil {
		return nil, err
	}
	events := []domain.Event{event}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		if err := tx.InsertCellRequest(ctx, req); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, events)
	})
	if err != nil {
		return nil, err
	}

	return &CellSubmitResult{Request: req, Events: events}, nil
}

func duplicateMessage(productName string, kind domain.TargetKind, season domain.Season, year int) string {
	place := "land"
	if kind == domain.TargetLivestock {
		place = "livestock location"
	}
	return fmt.Sprintf("A request for %s is already approved for this %s in Season %s %d.", productName, place, season, year)
}

func farmerTransitionPayload(req *domain.ResourceRequest, from domain.RequestStatus, actorID string) messaging.RequestTransitionedEvent {
	return messaging.RequestTransitionedEvent{
		RequestID:   req.ID,
		Kind:        string(domain.KindFarmer),
		FromStatus:  string(from),
		ToStatus:    string(req.Status),
		ActorID:     actorID,
		RequesterID: req.RequesterID,
		ProductID:   req.ProductID,
		CellID:      req.CellID,
		DistrictID:  req.DistrictID,
		Quantity:    req.QuantityRequested.String(),
		Comment:     req.Comment,
	}
}

func cellTransitionPayload(req *domain.CellResourceRequest, from domain.RequestStatus, actorID string) messaging.RequestTransitionedEvent {
	return messaging.RequestTransitionedEvent{
		RequestID:   req.ID,
		Kind:        string(domain.KindCell),
		FromStatus:  string(from),
		ToStatus:    string(req.Status),
		ActorID:     actorID,
		RequesterID: req.RequesterID,
		ProductID:   req.ProductID,
		CellID:      req.CellID,
		DistrictID:  req.DistrictID,
		Quantity:    req.QuantityRequested.String(),
		Comment:     req.Comment,
	}
}
