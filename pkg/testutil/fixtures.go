package testutil

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Geography is one district with a sector and a cell
type Geography struct {
	DistrictID string
	SectorID   string
	CellID     string
}

// FixtureFactory inserts reference data with generated ids and names
type FixtureFactory struct {
	db       *sqlx.DB
	sequence int
}

// NewFixtureFactory creates a fixture factory writing to db
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

func (f *FixtureFactory) insert(ctx context.Context, query string, args ...interface{}) (string, error) {
	id := uuid.New().String()
	if _, err := f.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...); err != nil {
		return "", fmt.Errorf("fixture insert failed: %w", err)
	}
	return id, nil
}

// Geography creates a district, a sector and a cell
func (f *FixtureFactory) Geography(ctx context.Context) (Geography, error) {
	n := f.next()

	var g Geography
	var err error
	if g.DistrictID, err = f.insert(ctx, `INSERT INTO districts (id, name) VALUES ($1, $2)`, fmt.Sprintf("District %d", n)); err != nil {
		return g, err
	}
	if g.SectorID, err = f.insert(ctx, `INSERT INTO sectors (id, district_id, name) VALUES ($1, $2, $3)`, g.DistrictID, fmt.Sprintf("Sector %d", n)); err != nil {
		return g, err
	}
	g.CellID, err = f.AddCell(ctx, g.SectorID)
	return g, err
}

// AddCell adds another cell to a sector
func (f *FixtureFactory) AddCell(ctx context.Context, sectorID string) (string, error) {
	return f.insert(ctx, `INSERT INTO cells (id, sector_id, name) VALUES ($1, $2, $3)`, sectorID, fmt.Sprintf("Cell %d", f.next()))
}

// Product creates a catalog product measured in kg
func (f *FixtureFactory) Product(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("Product %d", f.next())
	}
	return f.insert(ctx, `INSERT INTO products (id, name, unit, category) VALUES ($1, $2, 'kg', 'fertilizer')`, name)
}

// Land registers a plot owned by ownerID. hectares may be empty for an unmeasured plot.
func (f *FixtureFactory) Land(ctx context.Context, ownerID, cellID, hectares string) (string, error) {
	var size *decimal.Decimal
	if hectares != "" {
		d, err := decimal.NewFromString(hectares)
		if err != nil {
			return "", err
		}
		size = &d
	}
	return f.insert(ctx, `INSERT INTO lands (id, owner_id, cell_id, size_hectares) VALUES ($1, $2, $3, $4)`, ownerID, cellID, size)
}

// RecommendedRate records the per-hectare quantity of a product for a crop
func (f *FixtureFactory) RecommendedRate(ctx context.Context, productID, crop, rate string) error {
	_, err := f.insert(ctx,
		`INSERT INTO recommended_quantities (id, product_id, crop_name, quantity_per_hectare) VALUES ($1, $2, $3, $4)`,
		productID, crop, rate)
	return err
}

// PlannedCrop records the crop planned for a cell in a season
func (f *FixtureFactory) PlannedCrop(ctx context.Context, cellID, season string, year int, productID string) error {
	_, err := f.insert(ctx,
		`INSERT INTO seasonal_crop_plans (id, cell_id, season, year, product_id) VALUES ($1, $2, $3, $4, $5)`,
		cellID, season, year, productID)
	return err
}
