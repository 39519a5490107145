package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceRequest is a farmer's request against their cell's balance
type ResourceRequest struct {
	ID                  string              `json:"id" db:"id"`
	RequesterID         string              `json:"requester_id" db:"requester_id"`
	TargetKind          TargetKind          `json:"target_kind" db:"target_kind"`
	LandID              *string             `json:"land_id,omitempty" db:"land_id"`
	LivestockLocationID *string             `json:"livestock_location_id,omitempty" db:"livestock_location_id"`
	CellID              string              `json:"cell_id" db:"cell_id"`
	DistrictID          string              `json:"district_id" db:"district_id"`
	ProductID           string              `json:"product_id" db:"product_id"`
	QuantityRequested   decimal.Decimal     `json:"quantity_requested" db:"quantity_requested"`
	Status              RequestStatus       `json:"status" db:"status"`
	Season              Season              `json:"season" db:"season"`
	Year                int                 `json:"year" db:"year"`
	QuotaRule           QuotaRule           `json:"quota_rule" db:"quota_rule"`
	QuotaCeiling        decimal.Decimal     `json:"quota_ceiling" db:"quota_ceiling"`
	UnitPrice           decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	TotalPrice          decimal.NullDecimal `json:"total_price" db:"total_price"`
	Comment             *string             `json:"comment,omitempty" db:"comment"`
	ApprovedBy          *string             `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt          *time.Time          `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy          *string             `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt          *time.Time          `json:"rejected_at,omitempty" db:"rejected_at"`
	DeliveredBy         *string             `json:"delivered_by,omitempty" db:"delivered_by"`
	DeliveredAt         *time.Time          `json:"delivered_at,omitempty" db:"delivered_at"`
	CreditedAt          *time.Time          `json:"credited_at,omitempty" db:"credited_at"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`
}

// Target rebuilds the tagged target from the stored columns
func (r *ResourceRequest) Target() RequestTarget {
	if r.TargetKind == TargetLivestock && r.LivestockLocationID != nil {
		return LivestockTarget(*r.LivestockLocationID)
	}
	if r.LandID != nil {
		return LandTarget(*r.LandID)
	}
	return RequestTarget{Kind: r.TargetKind}
}

// SetTarget stores the tagged target in its columns
func (r *ResourceRequest) SetTarget(t RequestTarget) {
	id := t.ID
	r.TargetKind = t.Kind
	r.LandID, r.LivestockLocationID = nil, nil
	if t.Kind == TargetLivestock {
		r.LivestockLocationID = &id
		return
	}
	r.LandID = &id
}

// Stamp records the actor and time of a transition
func (r *ResourceRequest) Stamp(t Transition, actorID string, at time.Time) {
	r.Status = t.Target()
	r.UpdatedAt = at
	switch t {
	case TransitionApprove:
		r.ApprovedBy, r.ApprovedAt = &actorID, &at
	case TransitionReject:
		r.RejectedBy, r.RejectedAt = &actorID, &at
	case TransitionDeliver:
		r.DeliveredBy, r.DeliveredAt = &actorID, &at
	}
}

// CellResourceRequest is a cell officer's request against the district pool
type CellResourceRequest struct {
	ID                string          `json:"id" db:"id"`
	RequesterID       string          `json:"requester_id" db:"requester_id"`
	CellID            string          `json:"cell_id" db:"cell_id"`
	DistrictID        string          `json:"district_id" db:"district_id"`
	ProductID         string          `json:"product_id" db:"product_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested" db:"quantity_requested"`
	Status            RequestStatus   `json:"status" db:"status"`
	Season            Season          `json:"season" db:"season"`
	Year              int             `json:"year" db:"year"`
	QuotaRule         QuotaRule       `json:"quota_rule" db:"quota_rule"`
	QuotaCeiling      decimal.Decimal `json:"quota_ceiling" db:"quota_ceiling"`
	Comment           *string         `json:"comment,omitempty" db:"comment"`
	ApprovedBy        *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy        *string         `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt        *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	DeliveredBy       *string         `json:"delivered_by,omitempty" db:"delivered_by"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`

	Allocations []Allocation `json:"allocations,omitempty" db:"-"`
}

// Stamp records the actor and time of a transition
func (r *CellResourceRequest) Stamp(t Transition, actorID string, at time.Time) {
	r.Status = t.Target()
	r.UpdatedAt = at
	switch t {
	case TransitionApprove:
		r.ApprovedBy, r.ApprovedAt = &actorID, &at
	case TransitionReject:
		r.RejectedBy, r.RejectedAt = &actorID, &at
	case TransitionDeliver:
		r.DeliveredBy, r.DeliveredAt = &actorID, &at
	}
}
