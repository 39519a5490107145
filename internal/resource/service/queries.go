package service

import (
	"context"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/errors"
)

// requestScope narrows request listings to what the actor may see
func requestScope(a *actor.Actor) (domain.Scope, error) {
	switch {
	case a.IsSuperAdmin():
		return domain.Scope{}, nil
	case a.Role == actor.RoleDistrictOfficer && a.ManagedDistrictID != nil:
		return domain.Scope{DistrictID: *a.ManagedDistrictID}, nil
	case a.Role == actor.RoleCellOfficer && a.ManagedCellID != nil:
		return domain.Scope{CellID: *a.ManagedCellID}, nil
	case a.IsFarmer():
		return domain.Scope{RequesterID: a.ID}, nil
	}
	return domain.Scope{}, errors.Forbidden("no district or cell is assigned to this account")
}

func canViewFarmerRequest(a *actor.Actor, req *domain.ResourceRequest) bool {
	return a.IsSuperAdmin() ||
		a.ID == req.RequesterID ||
		a.ManagesCell(req.CellID) ||
		a.ManagesDistrict(req.DistrictID)
}

func canViewCellRequest(a *actor.Actor, req *domain.CellResourceRequest) bool {
	return a.IsSuperAdmin() ||
		a.ManagesCell(req.CellID) ||
		a.ManagesDistrict(req.DistrictID)
}

// GetResourceRequest returns a farmer request visible to the actor
func (s *ResourceService) GetResourceRequest(ctx context.Context, id string) (*domain.ResourceRequest, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	req, err := s.store.GetResourceRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewFarmerRequest(a, req) {
		// hide existence from actors outside the request's scope
		return nil, errors.NotFound("resource request")
	}
	return req, nil
}

// ListResourceRequests lists farmer requests in the actor's scope
func (s *ResourceService) ListResourceRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.ResourceRequest, int64, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}

	scope, err := requestScope(a)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope

	return s.store.ListResourceRequests(ctx, filter)
}

// GetCellRequest returns a cell request with its batch allocations
func (s *ResourceService) GetCellRequest(ctx context.Context, id string) (*domain.CellResourceRequest, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	req, err := s.store.GetCellRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewCellRequest(a, req) {
		return nil, errors.NotFound("cell resource request")
	}
	return req, nil
}

// ListCellRequests lists cell requests in the actor's scope
func (s *ResourceService) ListCellRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.CellResourceRequest, int64, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}
	if a.IsFarmer() {
		return nil, 0, errors.Forbidden("cell requests are only visible to officers")
	}

	scope, err := requestScope(a)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope

	return s.store.ListCellRequests(ctx, filter)
}

// ListDistrictBatches lists district batches with their remaining stock
func (s *ResourceService) ListDistrictBatches(ctx context.Context, filter domain.BatchFilter) ([]domain.DistrictBatch, int64, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}

	switch {
	case a.IsSuperAdmin():
	case a.Role == actor.RoleDistrictOfficer && a.ManagedDistrictID != nil:
		filter.DistrictID = *a.ManagedDistrictID
	default:
		return nil, 0, errors.Forbidden("district stock is only visible to district officers")
	}

	return s.store.ListDistrictBatches(ctx, filter)
}

// ListCellBalances lists cell balances in the actor's scope
func (s *ResourceService) ListCellBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.CellBalance, int64, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}
	if a.IsFarmer() {
		return nil, 0, errors.Forbidden("cell balances are only visible to officers")
	}

	scope, err := requestScope(a)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope

	return s.store.ListCellBalances(ctx, filter)
}

// ListFarmerBalances lists farmer balances. Farmers only see their own.
func (s *ResourceService) ListFarmerBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.FarmerBalance, int64, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}

	switch {
	case a.IsSuperAdmin():
		filter.Scope = domain.Scope{FarmerID: filter.FarmerID}
	case a.IsFarmer():
		filter.Scope = domain.Scope{FarmerID: a.ID}
	default:
		return nil, 0, errors.Forbidden("farmer balances are only visible to their owner")
	}

	return s.store.ListFarmerBalances(ctx, filter)
}
