package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state shared by farmer and cell requests
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusDelivered RequestStatus = "delivered"
)

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDelivered:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s RequestStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusDelivered
}

// RequestKind distinguishes the two request logs
type RequestKind string

const (
	KindFarmer RequestKind = "farmer"
	KindCell   RequestKind = "cell"
)

// TargetKind is the variant tag of a RequestTarget
type TargetKind string

const (
	TargetLand      TargetKind = "land"
	TargetLivestock TargetKind = "livestock"
)

// RequestTarget is either a land parcel or a livestock location.
type RequestTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// LandTarget returns a land-parcel target
func LandTarget(id string) RequestTarget {
	return RequestTarget{Kind: TargetLand, ID: id}
}

// LivestockTarget returns a livestock-location target
func LivestockTarget(id string) RequestTarget {
	return RequestTarget{Kind: TargetLivestock, ID: id}
}

// Validate checks the tag and the id
func (t RequestTarget) Validate() error {
	if t.Kind != TargetLand && t.Kind != TargetLivestock {
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	return nil
}

func (t RequestTarget) String() string {
	return string(t.Kind) + ":" + t.ID
}

// Site is a resolved request target with its place in the geography.
// SizeHectares is nil for livestock locations and for land without a recorded size.
type Site struct {
	Target       RequestTarget    `json:"target"`
	OwnerID      string           `json:"owner_id"`
	CellID       string           `json:"cell_id"`
	SectorID     string           `json:"sector_id"`
	DistrictID   string           `json:"district_id"`
	SizeHectares *decimal.Decimal `json:"size_hectares,omitempty"`
}

// Cell is the smallest administrative unit that holds a balance
type Cell struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	SectorID   string `json:"sector_id" db:"sector_id"`
	DistrictID string `json:"district_id" db:"district_id"`
}

// Product is a catalog entry
type Product struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Unit      string    `json:"unit" db:"unit"`
	Category  string    `json:"category" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Price is a unit price resolved for a location
type Price struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Amount    decimal.Decimal `json:"amount" db:"price"`
	Currency  string          `json:"currency" db:"currency"`
}
