package service

import (
	"context"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/shopspring/decimal"
)

// LedgerTx is the unit of work for one ledger operation. Lock* methods take
// row locks that are held until the surrounding transaction ends; callers
// take them in the order request, district batches, cell balance, farmer
// balance.
type LedgerTx interface {
	LockResourceRequest(ctx context.Context, id string) (*domain.ResourceRequest, error)
	LockCellRequest(ctx context.Context, id string) (*domain.CellResourceRequest, error)
	// LockDistrictBatches returns the batches oldest first.
	LockDistrictBatches(ctx context.Context, districtID, productID string) ([]domain.DistrictBatch, error)
	// LockCellBalance and LockFarmerBalance create an empty row when none exists.
	LockCellBalance(ctx context.Context, cellID, productID string) (*domain.CellBalance, error)
	LockFarmerBalance(ctx context.Context, farmerID, productID string) (*domain.FarmerBalance, error)

	CountCommittedRequests(ctx context.Context, target domain.RequestTarget, productID string, season domain.Season, year int, excludeID string) (int, error)

	InsertResourceRequest(ctx context.Context, req *domain.ResourceRequest) error
	UpdateResourceRequest(ctx context.Context, req *domain.ResourceRequest) error
	InsertCellRequest(ctx context.Context, req *domain.CellResourceRequest) error
	UpdateCellRequest(ctx context.Context, req *domain.CellResourceRequest) error
	InsertAllocations(ctx context.Context, allocations []domain.Allocation) error

	InsertDistrictBatch(ctx context.Context, batch *domain.DistrictBatch) error
	UpdateDistrictBatches(ctx context.Context, batches []domain.DistrictBatch) error
	SaveCellBalance(ctx context.Context, balance *domain.CellBalance) error
	SaveFarmerBalance(ctx context.Context, balance *domain.FarmerBalance) error
	InsertDeduction(ctx context.Context, deduction *domain.FarmerDeduction) error
	InsertFeedback(ctx context.Context, feedback *domain.Feedback) error

	AppendEvents(ctx context.Context, events []domain.Event) error
}

// Queries are unlocked reads. Results may be slightly stale.
type Queries interface {
	GetResourceRequest(ctx context.Context, id string) (*domain.ResourceRequest, error)
	GetCellRequest(ctx context.Context, id string) (*domain.CellResourceRequest, error)
	ListResourceRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.ResourceRequest, int64, error)
	ListCellRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.CellResourceRequest, int64, error)
	ListDistrictBatches(ctx context.Context, filter domain.BatchFilter) ([]domain.DistrictBatch, int64, error)
	DistrictRemaining(ctx context.Context, districtID, productID string) (decimal.Decimal, error)
	ListCellBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.CellBalance, int64, error)
	ListFarmerBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.FarmerBalance, int64, error)
	HasCommittedRequest(ctx context.Context, target domain.RequestTarget, productID string, season domain.Season, year int) (bool, error)
	GetFeedback(ctx context.Context, requestID string) (*domain.Feedback, error)
}

// Store runs ledger transactions and answers queries
type Store interface {
	Queries
	// WithinTx runs fn in one transaction. Returning an error rolls back
	// every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// Directory resolves geography and catalog data owned by other services
type Directory interface {
	ResolveTarget(ctx context.Context, target domain.RequestTarget) (*domain.Site, error)
	GetCell(ctx context.Context, cellID string) (*domain.Cell, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	PlannedCrop(ctx context.Context, cellID string, season domain.Season, year int) (*string, error)
	RecommendedRate(ctx context.Context, productID, cropName string) (*decimal.Decimal, error)
	CellFarmlandHectares(ctx context.Context, cellID string) (decimal.Decimal, error)
	// UnitPrice looks for a cell price, then sector, then district.
	UnitPrice(ctx context.Context, productID, cellID, sectorID, districtID string) (*domain.Price, error)
}
