package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	resourceRequestColumns = `id, requester_id, target_kind, land_id, livestock_location_id, cell_id, district_id,
		product_id, quantity_requested, status, season, year, quota_rule, quota_ceiling, unit_price, total_price,
		comment, approved_by, approved_at, rejected_by, rejected_at, delivered_by, delivered_at, credited_at,
		created_at, updated_at`

	cellRequestColumns = `id, requester_id, cell_id, district_id, product_id, quantity_requested, status, season,
		year, quota_rule, quota_ceiling, comment, approved_by, approved_at, rejected_by, rejected_at,
		delivered_by, delivered_at, created_at, updated_at`

	batchColumns = `id, seq, district_id, product_id, quantity_added, quantity_allocated_to_cells, added_by,
		created_at, updated_at`
)

// PostgresStore is the service.Store backed by postgres. Ledger transactions
// run with bounded lock and statement timeouts; a timeout surfaces as a
// retryable error instead of a hung request.
type PostgresStore struct {
	db               *database.DB
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

// NewPostgresStore creates a new postgres store
func NewPostgresStore(db *database.DB, lockTimeout, statementTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout, statementTimeout: statementTimeout}
}

var _ service.Store = (*PostgresStore)(nil)

// mapError converts pq errors to AppErrors and leaves everything else alone
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// WithinTx runs fn in a locking transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.LedgerTx) error) error {
	err := s.db.LockingTransaction(ctx, s.lockTimeout, s.statementTimeout, func(tx *sqlx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	return mapError(err)
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) LockResourceRequest(ctx context.Context, id string) (*domain.ResourceRequest, error) {
	var req domain.ResourceRequest
	query := `SELECT ` + resourceRequestColumns + ` FROM resource_requests WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("resource request")
		}
		return nil, mapError(err)
	}
	return &req, nil
}

func (t *pgTx) LockCellRequest(ctx context.Context, id string) (*domain.CellResourceRequest, error) {
	var req domain.CellResourceRequest
	query := `SELECT ` + cellRequestColumns + ` FROM cell_resource_requests WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("cell resource request")
		}
		return nil, mapError(err)
	}
	return &req, nil
}

func (t *pgTx) LockDistrictBatches(ctx context.Context, districtID, productID string) ([]domain.DistrictBatch, error) {
	var batches []domain.DistrictBatch
	query := `
		SELECT ` + batchColumns + `
		FROM district_batches
		WHERE district_id = $1 AND product_id = $2
		ORDER BY created_at, seq, id
		FOR UPDATE
	`
	if err := t.tx.SelectContext(ctx, &batches, query, districtID, productID); err != nil {
		return nil, mapError(err)
	}
	return batches, nil
}

func (t *pgTx) LockCellBalance(ctx context.Context, cellID, productID string) (*domain.CellBalance, error) {
	insert := `
		INSERT INTO cell_balances (id, cell_id, product_id, quantity_available)
		VALUES (gen_random_uuid(), $1, $2, 0)
		ON CONFLICT (cell_id, product_id) DO NOTHING
	`
	if _, err := t.tx.ExecContext(ctx, insert, cellID, productID); err != nil {
		return nil, mapError(err)
	}

	var balance domain.CellBalance
	query := `
		SELECT id, cell_id, product_id, quantity_available, updated_at
		FROM cell_balances
		WHERE cell_id = $1 AND product_id = $2
		FOR UPDATE
	`
	if err := t.tx.GetContext(ctx, &balance, query, cellID, productID); err != nil {
		return nil, mapError(err)
	}
	return &balance, nil
}

func (t *pgTx) LockFarmerBalance(ctx context.Context, farmerID, productID string) (*domain.FarmerBalance, error) {
	insert := `
		INSERT INTO farmer_balances (id, farmer_id, product_id, quantity_added, quantity_deducted)
		VALUES (gen_random_uuid(), $1, $2, 0, 0)
		ON CONFLICT (farmer_id, product_id) DO NOTHING
	`
	if _, err := t.tx.ExecContext(ctx, insert, farmerID, productID); err != nil {
		return nil, mapError(err)
	}

	var balance domain.FarmerBalance
	query := `
		SELECT id, farmer_id, product_id, quantity_added, quantity_deducted, updated_at
		FROM farmer_balances
		WHERE farmer_id = $1 AND product_id = $2
		FOR UPDATE
	`
	if err := t.tx.GetContext(ctx, &balance, query, farmerID, productID); err != nil {
		return nil, mapError(err)
	}
	return &balance, nil
}

func targetColumn(target domain.RequestTarget) string {
	if target.Kind == domain.TargetLivestock {
		return "livestock_location_id"
	}
	return "land_id"
}

func countCommittedQuery(target domain.RequestTarget) string {
	return `
		SELECT COUNT(*) FROM resource_requests
		WHERE ` + targetColumn(target) + ` = $1
		  AND product_id = $2 AND season = $3 AND year = $4
		  AND status IN ('approved', 'delivered')
		  AND id <> $5
	`
}

func (t *pgTx) CountCommittedRequests(ctx context.Context, target domain.RequestTarget, productID string, season domain.Season, year int, excludeID string) (int, error) {
	if excludeID == "" {
		excludeID = "00000000-0000-0000-0000-000000000000"
	}
	var n int
	err := t.tx.GetContext(ctx, &n, countCommittedQuery(target), target.ID, productID, string(season), year, excludeID)
	return n, mapError(err)
}

func (t *pgTx) InsertResourceRequest(ctx context.Context, req *domain.ResourceRequest) error {
	query := `
		INSERT INTO resource_requests (
			id, requester_id, target_kind, land_id, livestock_location_id, cell_id, district_id,
			product_id, quantity_requested, status, season, year, quota_rule, quota_ceiling,
			unit_price, total_price, comment, created_at, updated_at
		) VALUES (
			:id, :requester_id, :target_kind, :land_id, :livestock_location_id, :cell_id, :district_id,
			:product_id, :quantity_requested, :status, :season, :year, :quota_rule, :quota_ceiling,
			:unit_price, :total_price, :comment, :created_at, :updated_at
		)
	`
	_, err := t.tx.NamedExecContext(ctx, query, req)
	return mapError(err)
}

func (t *pgTx) UpdateResourceRequest(ctx context.Context, req *domain.ResourceRequest) error {
	query := `
		UPDATE resource_requests SET
			status = :status, comment = :comment,
			approved_by = :approved_by, approved_at = :approved_at,
			rejected_by = :rejected_by, rejected_at = :rejected_at,
			delivered_by = :delivered_by, delivered_at = :delivered_at,
			credited_at = :credited_at, updated_at = :updated_at
		WHERE id = :id
	`
	result, err := t.tx.NamedExecContext(ctx, query, req)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result, "resource request")
}

func (t *pgTx) InsertCellRequest(ctx context.Context, req *domain.CellResourceRequest) error {
	query := `
		INSERT INTO cell_resource_requests (
			id, requester_id, cell_id, district_id, product_id, quantity_requested, status,
			season, year, quota_rule, quota_ceiling, comment, created_at, updated_at
		) VALUES (
			:id, :requester_id, :cell_id, :district_id, :product_id, :quantity_requested, :status,
			:season, :year, :quota_rule, :quota_ceiling, :comment, :created_at, :updated_at
		)
	`
	_, err := t.tx.NamedExecContext(ctx, query, req)
	return mapError(err)
}

func (t *pgTx) UpdateCellRequest(ctx context.Context, req *domain.CellResourceRequest) error {
	query := `
		UPDATE cell_resource_requests SET
			status = :status, comment = :comment,
			approved_by = :approved_by, approved_at = :approved_at,
			rejected_by = :rejected_by, rejected_at = :rejected_at,
			delivered_by = :delivered_by, delivered_at = :delivered_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := t.tx.NamedExecContext(ctx, query, req)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result, "cell resource request")
}

func (t *pgTx) InsertAllocations(ctx context.Context, allocations []domain.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	query := `
		INSERT INTO cell_request_allocations (id, cell_request_id, batch_id, quantity)
		VALUES (:id, :cell_request_id, :batch_id, :quantity)
	`
	_, err := t.tx.NamedExecContext(ctx, query, allocations)
	return mapError(err)
}

func (t *pgTx) InsertDistrictBatch(ctx context.Context, batch *domain.DistrictBatch) error {
	query := `
		INSERT INTO district_batches (
			id, district_id, product_id, quantity_added, quantity_allocated_to_cells, added_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`
	err := t.tx.QueryRowxContext(ctx, query,
		batch.ID, batch.DistrictID, batch.ProductID, batch.QuantityAdded,
		batch.QuantityAllocatedToCells, batch.AddedBy, batch.CreatedAt, batch.UpdatedAt,
	).Scan(&batch.Seq)
	return mapError(err)
}

func (t *pgTx) UpdateDistrictBatches(ctx context.Context, batches []domain.DistrictBatch) error {
	query := `
		UPDATE district_batches
		SET quantity_allocated_to_cells = $2, updated_at = $3
		WHERE id = $1
	`
	for _, b := range batches {
		result, err := t.tx.ExecContext(ctx, query, b.ID, b.QuantityAllocatedToCells, b.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		if err := expectRow(result, "district batch"); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) SaveCellBalance(ctx context.Context, balance *domain.CellBalance) error {
	query := `UPDATE cell_balances SET quantity_available = $2, updated_at = $3 WHERE id = $1`
	result, err := t.tx.ExecContext(ctx, query, balance.ID, balance.QuantityAvailable, balance.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result, "cell balance")
}

func (t *pgTx) SaveFarmerBalance(ctx context.Context, balance *domain.FarmerBalance) error {
	query := `
		UPDATE farmer_balances
		SET quantity_added = $2, quantity_deducted = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query, balance.ID, balance.QuantityAdded, balance.QuantityDeducted, balance.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result, "farmer balance")
}

func (t *pgTx) InsertDeduction(ctx context.Context, d *domain.FarmerDeduction) error {
	query := `
		INSERT INTO farmer_deductions (id, farmer_id, product_id, amount, actor_id, created_at)
		VALUES (:id, :farmer_id, :product_id, :amount, :actor_id, :created_at)
	`
	_, err := t.tx.NamedExecContext(ctx, query, d)
	return mapError(err)
}

func (t *pgTx) InsertFeedback(ctx context.Context, f *domain.Feedback) error {
	query := `
		INSERT INTO resource_request_feedback (id, request_id, farmer_id, rating, comment, created_at)
		VALUES (:id, :request_id, :farmer_id, :rating, :comment, :created_at)
	`
	_, err := t.tx.NamedExecContext(ctx, query, f)
	return mapError(err)
}

func (t *pgTx) AppendEvents(ctx context.Context, events []domain.Event) error {
	return appendEvents(ctx, t.tx, events)
}

func expectRow(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}

// Queries

func (s *PostgresStore) GetResourceRequest(ctx context.Context, id string) (*domain.ResourceRequest, error) {
	var req domain.ResourceRequest
	query := `SELECT ` + resourceRequestColumns + ` FROM resource_requests WHERE id = $1`
	if err := s.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("resource request")
		}
		return nil, mapError(err)
	}
	return &req, nil
}

func (s *PostgresStore) GetCellRequest(ctx context.Context, id string) (*domain.CellResourceRequest, error) {
	var req domain.CellResourceRequest
	query := `SELECT ` + cellRequestColumns + ` FROM cell_resource_requests WHERE id = $1`
	if err := s.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("cell resource request")
		}
		return nil, mapError(err)
	}

	allocQuery := `
		SELECT a.id, a.cell_request_id, a.batch_id, a.quantity
		FROM cell_request_allocations a
		JOIN district_batches b ON b.id = a.batch_id
		WHERE a.cell_request_id = $1
		ORDER BY b.created_at, b.seq
	`
	if err := s.db.SelectContext(ctx, &req.Allocations, allocQuery, id); err != nil {
		return nil, mapError(err)
	}
	return &req, nil
}

// whereBuilder accumulates AND conditions with positional args
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) eq(column string, value interface{}) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *whereBuilder) eqIf(column, value string) {
	if value != "" {
		w.eq(column, value)
	}
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// limit appends LIMIT/OFFSET placeholders; perPage <= 0 means no limit
func (w *whereBuilder) limit(page, perPage int) string {
	if perPage <= 0 {
		return ""
	}
	w.args = append(w.args, perPage, domain.Offset(page, perPage))
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func requestWhere(f domain.RequestFilter) *whereBuilder {
	w := &whereBuilder{}
	w.eqIf("requester_id", f.RequesterID)
	w.eqIf("cell_id", f.CellID)
	w.eqIf("district_id", f.DistrictID)
	w.eqIf("product_id", f.ProductID)
	w.eqIf("status", string(f.Status))
	w.eqIf("season", string(f.Season))
	if f.Year != 0 {
		w.eq("year", f.Year)
	}
	return w
}

func (s *PostgresStore) count(ctx context.Context, table string, w *whereBuilder) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM `+table+w.String(), w.args...)
	return total, mapError(err)
}

func (s *PostgresStore) ListResourceRequests(ctx context.Context, f domain.RequestFilter) ([]domain.ResourceRequest, int64, error) {
	w := requestWhere(f)
	total, err := s.count(ctx, "resource_requests", w)
	if err != nil {
		return nil, 0, err
	}

	where := w.String()
	query := `SELECT ` + resourceRequestColumns + ` FROM resource_requests` + where +
		` ORDER BY created_at DESC, id` + w.limit(f.Page, f.PerPage)

	items := []domain.ResourceRequest{}
	if err := s.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (s *PostgresStore) ListCellRequests(ctx context.Context, f domain.RequestFilter) ([]domain.CellResourceRequest, int64, error) {
	w := requestWhere(f)
	total, err := s.count(ctx, "cell_resource_requests", w)
	if err != nil {
		return nil, 0, err
	}

	where := w.String()
	query := `SELECT ` + cellRequestColumns + ` FROM cell_resource_requests` + where +
		` ORDER BY created_at DESC, id` + w.limit(f.Page, f.PerPage)

	items := []domain.CellResourceRequest{}
	if err := s.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (s *PostgresStore) ListDistrictBatches(ctx context.Context, f domain.BatchFilter) ([]domain.DistrictBatch, int64, error) {
	w := &whereBuilder{}
	w.eqIf("district_id", f.DistrictID)
	w.eqIf("product_id", f.ProductID)

	total, err := s.count(ctx, "district_batches", w)
	if err != nil {
		return nil, 0, err
	}

	where := w.String()
	query := `SELECT ` + batchColumns + ` FROM district_batches` + where +
		` ORDER BY created_at, seq, id` + w.limit(f.Page, f.PerPage)

	items := []domain.DistrictBatch{}
	if err := s.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (s *PostgresStore) DistrictRemaining(ctx context.Context, districtID, productID string) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	query := `
		SELECT COALESCE(SUM(quantity_added - quantity_allocated_to_cells), 0)
		FROM district_batches
		WHERE district_id = $1 AND product_id = $2
	`
	err := s.db.GetContext(ctx, &remaining, query, districtID, productID)
	return remaining, mapError(err)
}

func (s *PostgresStore) ListCellBalances(ctx context.Context, f domain.BalanceFilter) ([]domain.CellBalance, int64, error) {
	w := &whereBuilder{}
	w.eqIf("cb.cell_id", f.CellID)
	w.eqIf("s.district_id", f.DistrictID)
	w.eqIf("cb.product_id", f.ProductID)

	from := ` FROM cell_balances cb JOIN cells c ON c.id = cb.cell_id JOIN sectors s ON s.id = c.sector_id`

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+w.String(), w.args...); err != nil {
		return nil, 0, mapError(err)
	}

	where := w.String()
	query := `SELECT cb.id, cb.cell_id, cb.product_id, cb.quantity_available, cb.updated_at` + from + where +
		` ORDER BY cb.cell_id, cb.product_id` + w.limit(f.Page, f.PerPage)

	items := []domain.CellBalance{}
	if err := s.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (s *PostgresStore) ListFarmerBalances(ctx context.Context, f domain.BalanceFilter) ([]domain.FarmerBalance, int64, error) {
	w := &whereBuilder{}
	w.eqIf("farmer_id", f.FarmerID)
	w.eqIf("product_id", f.ProductID)

	total, err := s.count(ctx, "farmer_balances", w)
	if err != nil {
		return nil, 0, err
	}

	where := w.String()
	query := `SELECT id, farmer_id, product_id, quantity_added, quantity_deducted, updated_at FROM farmer_balances` +
		where + ` ORDER BY farmer_id, product_id` + w.limit(f.Page, f.PerPage)

	items := []domain.FarmerBalance{}
	if err := s.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func (s *PostgresStore) HasCommittedRequest(ctx context.Context, target domain.RequestTarget, productID string, season domain.Season, year int) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, countCommittedQuery(target),
		target.ID, productID, string(season), year, "00000000-0000-0000-0000-000000000000")
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

func (s *PostgresStore) GetFeedback(ctx context.Context, requestID string) (*domain.Feedback, error) {
	var f domain.Feedback
	query := `
		SELECT id, request_id, farmer_id, rating, comment, created_at
		FROM resource_request_feedback WHERE request_id = $1
	`
	if err := s.db.GetContext(ctx, &f, query, requestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("feedback")
		}
		return nil, mapError(err)
	}
	return &f, nil
}
