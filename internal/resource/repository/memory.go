package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store and Directory. A transaction holds one
// store-wide lock and works on a copy of the ledger that replaces the live
// state only on commit, which gives the same all-or-nothing behaviour as the
// postgres store with coarser locking. Used by tests and local tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	seq   int64

	// reference data, written only by the Seed* helpers
	cells     map[string]domain.Cell
	sites     map[domain.RequestTarget]domain.Site
	products  map[string]domain.Product
	rates     map[string]decimal.Decimal
	plans     map[string]string
	prices    []memPrice
	delivery  map[string]*memDelivery
}

// memDelivery mirrors the status and attempts columns of outbox_events
type memDelivery struct {
	status   string
	attempts int
}

type memPrice struct {
	productID  string
	cellID     string
	sectorID   string
	districtID string
	price      domain.Price
}

type memState struct {
	requests       map[string]domain.ResourceRequest
	cellRequests   map[string]domain.CellResourceRequest
	batches        map[string]domain.DistrictBatch
	cellBalances   map[string]domain.CellBalance
	farmerBalances map[string]domain.FarmerBalance
	allocations    []domain.Allocation
	deductions     []domain.FarmerDeduction
	feedback       map[string]domain.Feedback
	outbox         []domain.Event
}

func newMemState() *memState {
	return &memState{
		requests:       make(map[string]domain.ResourceRequest),
		cellRequests:   make(map[string]domain.CellResourceRequest),
		batches:        make(map[string]domain.DistrictBatch),
		cellBalances:   make(map[string]domain.CellBalance),
		farmerBalances: make(map[string]domain.FarmerBalance),
		feedback:       make(map[string]domain.Feedback),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.cellRequests {
		c.cellRequests[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.cellBalances {
		c.cellBalances[k] = v
	}
	for k, v := range s.farmerBalances {
		c.farmerBalances[k] = v
	}
	for k, v := range s.feedback {
		c.feedback[k] = v
	}
	c.allocations = append(c.allocations, s.allocations...)
	c.deductions = append(c.deductions, s.deductions...)
	c.outbox = append(c.outbox, s.outbox...)
	return c
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:     newMemState(),
		cells:     make(map[string]domain.Cell),
		sites:     make(map[domain.RequestTarget]domain.Site),
		products:  make(map[string]domain.Product),
		rates:     make(map[string]decimal.Decimal),
		plans:     make(map[string]string),
		delivery:  make(map[string]*memDelivery),
	}
}

var (
	_ service.Store     = (*MemoryStore)(nil)
	_ service.Directory = (*MemoryStore)(nil)
)

func pairKey(a, b string) string {
	return a + "|" + b
}

// Seed helpers

// SeedCell registers a cell with its sector and district
func (m *MemoryStore) SeedCell(cell domain.Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[cell.ID] = cell
}

// SeedLand registers a land parcel owned by ownerID. hectares may be nil.
func (m *MemoryStore) SeedLand(id, ownerID, cellID string, hectares *decimal.Decimal) {
	m.seedSite(domain.LandTarget(id), ownerID, cellID, hectares)
}

// SeedLivestock registers a livestock location owned by ownerID
func (m *MemoryStore) SeedLivestock(id, ownerID, cellID string) {
	m.seedSite(domain.LivestockTarget(id), ownerID, cellID, nil)
}

func (m *MemoryStore) seedSite(target domain.RequestTarget, ownerID, cellID string, hectares *decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cell := m.cells[cellID]
	m.sites[target] = domain.Site{
		Target:       target,
		OwnerID:      ownerID,
		CellID:       cellID,
		SectorID:     cell.SectorID,
		DistrictID:   cell.DistrictID,
		SizeHectares: hectares,
	}
}

// SeedProduct registers a catalog product
func (m *MemoryStore) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// SeedRecommendedRate sets the per-hectare rate for a product and crop name
func (m *MemoryStore) SeedRecommendedRate(productID, cropName string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[pairKey(productID, cropName)] = rate
}

// SeedPlannedCrop sets a cell's planned crop for a season
func (m *MemoryStore) SeedPlannedCrop(cellID string, season domain.Season, year int, productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[planKey(cellID, season, year)] = productID
}

// SeedPrice sets a price scoped to exactly one of cell, sector or district
func (m *MemoryStore) SeedPrice(productID, cellID, sectorID, districtID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, memPrice{
		productID:  productID,
		cellID:     cellID,
		sectorID:   sectorID,
		districtID: districtID,
		price:      domain.Price{ProductID: productID, Amount: amount, Currency: "RWF"},
	})
}

// SeedCellBalance sets a cell balance directly
func (m *MemoryStore) SeedCellBalance(cellID, productID string, available decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.cellBalances[pairKey(cellID, productID)] = domain.CellBalance{
		ID:                uuid.New().String(),
		CellID:            cellID,
		ProductID:         productID,
		QuantityAvailable: available,
	}
}

// Inspection helpers

// Batches returns all district batches oldest first
func (m *MemoryStore) Batches() []domain.DistrictBatch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DistrictBatch, 0, len(m.state.batches))
	for _, b := range m.state.batches {
		out = append(out, b)
	}
	domain.SortBatches(out)
	return out
}

// CellBalance returns the balance for (cell, product), zero when absent
func (m *MemoryStore) CellBalance(cellID, productID string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.cellBalances[pairKey(cellID, productID)].QuantityAvailable
}

// FarmerBalance returns the balance row for (farmer, product)
func (m *MemoryStore) FarmerBalance(farmerID, productID string) domain.FarmerBalance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.farmerBalances[pairKey(farmerID, productID)]
}

// Allocations returns every recorded batch allocation
func (m *MemoryStore) Allocations() []domain.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Allocation(nil), m.state.allocations...)
}

// Outbox returns every event appended so far
func (m *MemoryStore) Outbox() []domain.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Event(nil), m.state.outbox...)
}

// WithinTx runs fn against a private copy of the ledger
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: m, state: m.state.clone(), seq: m.seq}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.state = tx.state
	m.seq = tx.seq
	return nil
}

// ProcessPending hands up to limit pending events to fn in order. Accepted
// events are published; a rejected event is retried on the next call until
// it has failed maxAttempts times.
func (m *MemoryStore) ProcessPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, domain.Event) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	selected, processed := 0, 0
	for _, e := range m.state.outbox {
		if selected >= limit {
			break
		}
		d := m.deliveryOf(e.ID)
		if d.status != outboxPending {
			continue
		}
		selected++

		if err := fn(ctx, e); err != nil {
			d.attempts++
			if d.attempts >= maxAttempts {
				d.status = outboxFailed
			}
			continue
		}
		d.status = outboxPublished
		processed++
	}
	return processed, nil
}

// CountPending returns the number of events still waiting to be published
func (m *MemoryStore) CountPending(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.state.outbox {
		d, ok := m.delivery[e.ID]
		if !ok || d.status == outboxPending {
			n++
		}
	}
	return n, nil
}

const (
	outboxPending   = "pending"
	outboxPublished = "published"
	outboxFailed    = "failed"
)

// deliveryOf must be called with mu held for writing
func (m *MemoryStore) deliveryOf(id string) *memDelivery {
	d, ok := m.delivery[id]
	if !ok {
		d = &memDelivery{status: outboxPending}
		m.delivery[id] = d
	}
	return d
}

type memTx struct {
	store *MemoryStore
	state *memState
	seq   int64
}

func (t *memTx) LockResourceRequest(_ context.Context, id string) (*domain.ResourceRequest, error) {
	req, ok := t.state.requests[id]
	if !ok {
		return nil, errors.NotFound("resource request")
	}
	return &req, nil
}

func (t *memTx) LockCellRequest(_ context.Context, id string) (*domain.CellResourceRequest, error) {
	req, ok := t.state.cellRequests[id]
	if !ok {
		return nil, errors.NotFound("cell resource request")
	}
	return &req, nil
}

func (t *memTx) LockDistrictBatches(_ context.Context, districtID, productID string) ([]domain.DistrictBatch, error) {
	var out []domain.DistrictBatch
	for _, b := range t.state.batches {
		if b.DistrictID == districtID && b.ProductID == productID {
			out = append(out, b)
		}
	}
	domain.SortBatches(out)
	return out, nil
}

func (t *memTx) LockCellBalance(_ context.Context, cellID, productID string) (*domain.CellBalance, error) {
	key := pairKey(cellID, productID)
	b, ok := t.state.cellBalances[key]
	if !ok {
		b = domain.CellBalance{ID: uuid.New().String(), CellID: cellID, ProductID: productID}
		t.state.cellBalances[key] = b
	}
	return &b, nil
}

func (t *memTx) LockFarmerBalance(_ context.Context, farmerID, productID string) (*domain.FarmerBalance, error) {
	key := pairKey(farmerID, productID)
	b, ok := t.state.farmerBalances[key]
	if !ok {
		b = domain.FarmerBalance{ID: uuid.New().String(), FarmerID: farmerID, ProductID: productID}
		t.state.farmerBalances[key] = b
	}
	return &b, nil
}

func (t *memTx) CountCommittedRequests(_ context.Context, target domain.RequestTarget, productID string, season domain.Season, year int, excludeID string) (int, error) {
	return countCommitted(t.state, target, productID, season, year, excludeID), nil
}

func countCommitted(s *memState, target domain.RequestTarget, productID string, season domain.Season, year int, excludeID string) int {
	n := 0
	for _, r := range s.requests {
		if r.ID == excludeID || r.Target() != target || r.ProductID != productID {
			continue
		}
		if r.Season != season || r.Year != year {
			continue
		}
		if r.Status == domain.StatusApproved || r.Status == domain.StatusDelivered {
			n++
		}
	}
	return n
}

func (t *memTx) InsertResourceRequest(_ context.Context, req *domain.ResourceRequest) error {
	if _, exists := t.state.requests[req.ID]; exists {
		return errors.Conflict("a record with these values already exists")
	}
	t.state.requests[req.ID] = *req
	return nil
}

func (t *memTx) UpdateResourceRequest(_ context.Context, req *domain.ResourceRequest) error {
	if _, ok := t.state.requests[req.ID]; !ok {
		return errors.NotFound("resource request")
	}
	t.state.requests[req.ID] = *req
	return nil
}

func (t *memTx) InsertCellRequest(_ context.Context, req *domain.CellResourceRequest) error {
	if _, exists := t.state.cellRequests[req.ID]; exists {
		return errors.Conflict("a record with these values already exists")
	}
	t.state.cellRequests[req.ID] = *req
	return nil
}

func (t *memTx) UpdateCellRequest(_ context.Context, req *domain.CellResourceRequest) error {
	if _, ok := t.state.cellRequests[req.ID]; !ok {
		return errors.NotFound("cell resource request")
	}
	stored := *req
	stored.Allocations = nil
	t.state.cellRequests[req.ID] = stored
	return nil
}

func (t *memTx) InsertAllocations(_ context.Context, allocations []domain.Allocation) error {
	t.state.allocations = append(t.state.allocations, allocations...)
	return nil
}

func (t *memTx) InsertDistrictBatch(_ context.Context, batch *domain.DistrictBatch) error {
	t.seq++
	batch.Seq = t.seq
	t.state.batches[batch.ID] = *batch
	return nil
}

func (t *memTx) UpdateDistrictBatches(_ context.Context, batches []domain.DistrictBatch) error {
	for _, b := range batches {
		if b.QuantityAllocatedToCells.IsNegative() || b.QuantityAllocatedToCells.GreaterThan(b.QuantityAdded) {
			return errors.InsufficientStock("ledger constraint rejected the movement: district_batches_allocation_within_added", "", "", "")
		}
		t.state.batches[b.ID] = b
	}
	return nil
}

func (t *memTx) SaveCellBalance(_ context.Context, balance *domain.CellBalance) error {
	if balance.QuantityAvailable.IsNegative() {
		return errors.InsufficientStock("ledger constraint rejected the movement: cell_balances_available_non_negative", "", "", "")
	}
	t.state.cellBalances[pairKey(balance.CellID, balance.ProductID)] = *balance
	return nil
}

func (t *memTx) SaveFarmerBalance(_ context.Context, balance *domain.FarmerBalance) error {
	if balance.Remaining().IsNegative() {
		return errors.InsufficientBalance("ledger constraint rejected the deduction: farmer_balances_deducted_within_added", "", "", "")
	}
	t.state.farmerBalances[pairKey(balance.FarmerID, balance.ProductID)] = *balance
	return nil
}

func (t *memTx) InsertDeduction(_ context.Context, deduction *domain.FarmerDeduction) error {
	t.state.deductions = append(t.state.deductions, *deduction)
	return nil
}

func (t *memTx) InsertFeedback(_ context.Context, feedback *domain.Feedback) error {
	if _, exists := t.state.feedback[feedback.RequestID]; exists {
		return errors.Conflict("feedback for this request was already submitted")
	}
	t.state.feedback[feedback.RequestID] = *feedback
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, events []domain.Event) error {
	t.state.outbox = append(t.state.outbox, events...)
	return nil
}

// Queries

func (m *MemoryStore) GetResourceRequest(_ context.Context, id string) (*domain.ResourceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.state.requests[id]
	if !ok {
		return nil, errors.NotFound("resource request")
	}
	return &req, nil
}

func (m *MemoryStore) GetCellRequest(_ context.Context, id string) (*domain.CellResourceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.state.cellRequests[id]
	if !ok {
		return nil, errors.NotFound("cell resource request")
	}
	for _, a := range m.state.allocations {
		if a.CellRequestID == id {
			req.Allocations = append(req.Allocations, a)
		}
	}
	return &req, nil
}

func matchesRequest(f domain.RequestFilter, requesterID, cellID, districtID, productID string, status domain.RequestStatus, season domain.Season, year int) bool {
	switch {
	case f.RequesterID != "" && f.RequesterID != requesterID,
		f.CellID != "" && f.CellID != cellID,
		f.DistrictID != "" && f.DistrictID != districtID,
		f.ProductID != "" && f.ProductID != productID,
		f.Status != "" && f.Status != status,
		f.Season != "" && f.Season != season,
		f.Year != 0 && f.Year != year:
		return false
	}
	return true
}

func page[T any](items []T, pageNum, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	start := domain.Offset(pageNum, perPage)
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (m *MemoryStore) ListResourceRequests(_ context.Context, f domain.RequestFilter) ([]domain.ResourceRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ResourceRequest
	for _, r := range m.state.requests {
		if matchesRequest(f, r.RequesterID, r.CellID, r.DistrictID, r.ProductID, r.Status, r.Season, r.Year) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Page, f.PerPage), int64(len(out)), nil
}

func (m *MemoryStore) ListCellRequests(_ context.Context, f domain.RequestFilter) ([]domain.CellResourceRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CellResourceRequest
	for _, r := range m.state.cellRequests {
		if matchesRequest(f, r.RequesterID, r.CellID, r.DistrictID, r.ProductID, r.Status, r.Season, r.Year) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Page, f.PerPage), int64(len(out)), nil
}

func (m *MemoryStore) ListDistrictBatches(_ context.Context, f domain.BatchFilter) ([]domain.DistrictBatch, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.DistrictBatch
	for _, b := range m.state.batches {
		if (f.DistrictID == "" || f.DistrictID == b.DistrictID) && (f.ProductID == "" || f.ProductID == b.ProductID) {
			out = append(out, b)
		}
	}
	domain.SortBatches(out)
	return page(out, f.Page, f.PerPage), int64(len(out)), nil
}

func (m *MemoryStore) DistrictRemaining(_ context.Context, districtID, productID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, b := range m.state.batches {
		if b.DistrictID == districtID && b.ProductID == productID {
			total = total.Add(b.Remaining())
		}
	}
	return total, nil
}

func (m *MemoryStore) ListCellBalances(_ context.Context, f domain.BalanceFilter) ([]domain.CellBalance, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CellBalance
	for _, b := range m.state.cellBalances {
		if f.CellID != "" && f.CellID != b.CellID {
			continue
		}
		if f.DistrictID != "" && m.cells[b.CellID].DistrictID != f.DistrictID {
			continue
		}
		if f.ProductID != "" && f.ProductID != b.ProductID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return pairKey(out[i].CellID, out[i].ProductID) < pairKey(out[j].CellID, out[j].ProductID) })
	return page(out, f.Page, f.PerPage), int64(len(out)), nil
}

func (m *MemoryStore) ListFarmerBalances(_ context.Context, f domain.BalanceFilter) ([]domain.FarmerBalance, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.FarmerBalance
	for _, b := range m.state.farmerBalances {
		if (f.FarmerID == "" || f.FarmerID == b.FarmerID) && (f.ProductID == "" || f.ProductID == b.ProductID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return pairKey(out[i].FarmerID, out[i].ProductID) < pairKey(out[j].FarmerID, out[j].ProductID)
	})
	return page(out, f.Page, f.PerPage), int64(len(out)), nil
}

func (m *MemoryStore) HasCommittedRequest(_ context.Context, target domain.RequestTarget, productID string, season domain.Season, year int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return countCommitted(m.state, target, productID, season, year, "") > 0, nil
}

func (m *MemoryStore) GetFeedback(_ context.Context, requestID string) (*domain.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.state.feedback[requestID]
	if !ok {
		return nil, errors.NotFound("feedback")
	}
	return &f, nil
}

// Directory

func (m *MemoryStore) ResolveTarget(_ context.Context, target domain.RequestTarget) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[target]
	if !ok {
		return nil, errors.NotFound(string(target.Kind))
	}
	return &site, nil
}

func (m *MemoryStore) GetCell(_ context.Context, cellID string) (*domain.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cells[cellID]
	if !ok {
		return nil, errors.NotFound("cell")
	}
	return &c, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, errors.NotFound("product")
	}
	return &p, nil
}

func planKey(cellID string, season domain.Season, year int) string {
	return cellID + "|" + string(season) + "|" + strconv.Itoa(year)
}

func (m *MemoryStore) PlannedCrop(_ context.Context, cellID string, season domain.Season, year int) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[planKey(cellID, season, year)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) RecommendedRate(_ context.Context, productID, cropName string) (*decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[pairKey(productID, cropName)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) CellFarmlandHectares(_ context.Context, cellID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, s := range m.sites {
		if s.Target.Kind == domain.TargetLand && s.CellID == cellID && s.OwnerID != "" && s.SizeHectares != nil {
			total = total.Add(*s.SizeHectares)
		}
	}
	return total, nil
}

func (m *MemoryStore) UnitPrice(_ context.Context, productID, cellID, sectorID, districtID string) (*domain.Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, match := range []func(memPrice) bool{
		func(p memPrice) bool { return p.cellID != "" && p.cellID == cellID },
		func(p memPrice) bool { return p.sectorID != "" && p.sectorID == sectorID },
		func(p memPrice) bool { return p.districtID != "" && p.districtID == districtID },
	} {
		for _, p := range m.prices {
			if p.productID == productID && match(p) {
				price := p.price
				return &price, nil
			}
		}
	}
	return nil, nil
}
