package repository

import (
	"context"
	"database/sql"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// PostgresDirectory reads geography, catalog and planning reference data
type PostgresDirectory struct {
	db *database.DB
}

// NewPostgresDirectory creates a new directory
func NewPostgresDirectory(db *database.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

var _ service.Directory = (*PostgresDirectory)(nil)

type siteRow struct {
	OwnerID      string              `db:"owner_id"`
	CellID       string              `db:"cell_id"`
	SectorID     string              `db:"sector_id"`
	DistrictID   string              `db:"district_id"`
	SizeHectares decimal.NullDecimal `db:"size_hectares"`
}

// ResolveTarget loads the owner and geography of a land parcel or livestock location
func (d *PostgresDirectory) ResolveTarget(ctx context.Context, target domain.RequestTarget) (*domain.Site, error) {
	if err := target.Validate(); err != nil {
		return nil, errors.ValidationField("target", err.Error())
	}

	table, size := "lands", "t.size_hectares"
	if target.Kind == domain.TargetLivestock {
		table, size = "livestock_locations", "NULL::numeric"
	}

	var row siteRow
	query := `
		SELECT t.owner_id, t.cell_id, c.sector_id, s.district_id, ` + size + ` AS size_hectares
		FROM ` + table + ` t
		JOIN cells c ON c.id = t.cell_id
		JOIN sectors s ON s.id = c.sector_id
		WHERE t.id = $1
	`
	if err := d.db.GetContext(ctx, &row, query, target.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound(string(target.Kind))
		}
		return nil, mapError(err)
	}

	site := &domain.Site{
		Target:     target,
		OwnerID:    row.OwnerID,
		CellID:     row.CellID,
		SectorID:   row.SectorID,
		DistrictID: row.DistrictID,
	}
	if row.SizeHectares.Valid {
		size := row.SizeHectares.Decimal
		site.SizeHectares = &size
	}
	return site, nil
}

// GetCell returns a cell with its sector and district
func (d *PostgresDirectory) GetCell(ctx context.Context, cellID string) (*domain.Cell, error) {
	var cell domain.Cell
	query := `
		SELECT c.id, c.name, c.sector_id, s.district_id
		FROM cells c
		JOIN sectors s ON s.id = c.sector_id
		WHERE c.id = $1
	`
	if err := d.db.GetContext(ctx, &cell, query, cellID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("cell")
		}
		return nil, mapError(err)
	}
	return &cell, nil
}

// GetProduct returns a catalog product
func (d *PostgresDirectory) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	query := `SELECT id, name, unit, category, created_at FROM products WHERE id = $1`
	if err := d.db.GetContext(ctx, &p, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, mapError(err)
	}
	return &p, nil
}

// PlannedCrop returns the product planned for a cell in a season, or nil
func (d *PostgresDirectory) PlannedCrop(ctx context.Context, cellID string, season domain.Season, year int) (*string, error) {
	var productID string
	query := `SELECT product_id FROM seasonal_crop_plans WHERE cell_id = $1 AND season = $2 AND year = $3`
	if err := d.db.GetContext(ctx, &productID, query, cellID, string(season), year); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &productID, nil
}

// RecommendedRate returns the per-hectare recommendation, or nil
func (d *PostgresDirectory) RecommendedRate(ctx context.Context, productID, cropName string) (*decimal.Decimal, error) {
	var rate decimal.Decimal
	query := `
		SELECT quantity_per_hectare FROM recommended_quantities
		WHERE product_id = $1 AND crop_name = $2
	`
	if err := d.db.GetContext(ctx, &rate, query, productID, cropName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &rate, nil
}

// CellFarmlandHectares sums the sized land parcels in a cell
func (d *PostgresDirectory) CellFarmlandHectares(ctx context.Context, cellID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(size_hectares), 0) FROM lands WHERE cell_id = $1 AND size_hectares IS NOT NULL`
	err := d.db.GetContext(ctx, &total, query, cellID)
	return total, mapError(err)
}

// UnitPrice picks the most specific price: cell, then sector, then district
func (d *PostgresDirectory) UnitPrice(ctx context.Context, productID, cellID, sectorID, districtID string) (*domain.Price, error) {
	var price domain.Price
	query := `
		SELECT product_id, price, currency
		FROM product_prices
		WHERE product_id = $1
		  AND (cell_id = $2 OR sector_id = $3 OR district_id = $4)
		ORDER BY CASE
			WHEN cell_id IS NOT NULL THEN 1
			WHEN sector_id IS NOT NULL THEN 2
			ELSE 3
		END
		LIMIT 1
	`
	if err := d.db.GetContext(ctx, &price, query, productID, cellID, sectorID, districtID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &price, nil
}
