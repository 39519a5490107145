package domain

import (
	"fmt"

	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// QuotaRule names which ceiling rule applied to a request
type QuotaRule string

const (
	QuotaPlannedCrop   QuotaRule = "planned_crop"
	QuotaRecommended   QuotaRule = "recommended"
	QuotaDistrictShare QuotaRule = "district_share"
)

// quantities are stored as NUMERIC(14,4)
const quantityScale = 4

var (
	plannedFactor       = decimal.RequireFromString("1.5")
	recommendedFactor   = decimal.RequireFromString("0.3")
	districtShareFactor = decimal.RequireFromString("0.05")
)

// QuotaInput is everything the quota rules look at.
type QuotaInput struct {
	ProductID string
	// PlannedProductID is the cell's planned crop for the season, if any.
	PlannedProductID *string
	// Rate is the recommended quantity per hectare for the product, if any.
	Rate *decimal.Decimal
	// Hectares is the land size (farmer requests) or the cell's farmland
	// total (cell requests). Nil counts as zero.
	Hectares *decimal.Decimal
	// Livestock targets have no hectare basis and always use the district share.
	Livestock         bool
	DistrictRemaining decimal.Decimal
	// Requested is nil when the caller wants the default quantity.
	Requested *decimal.Decimal
}

// QuotaDecision is an accepted quantity and the ceiling it was checked against
type QuotaDecision struct {
	Rule         QuotaRule
	Ceiling      decimal.Decimal
	Quantity     decimal.Decimal
	AutoComputed bool
}

// EvaluateQuota applies the ceiling rules in priority order:
//  1. planned crop matches the product: rate x hectares x 1.5
//  2. a recommendation exists: rate x hectares x 0.3
//  3. otherwise: 5% of the district's remaining stock
//
// A missing rate or hectare figure makes the recommended amount zero.
// The default quantity (rate x hectares) is not capped by the ceiling.
func EvaluateQuota(in QuotaInput) (*QuotaDecision, error) {
	if in.Requested != nil && !in.Requested.IsPositive() {
		return nil, errors.ValidationField("quantity", "must be greater than zero")
	}

	recommended := decimal.Zero
	if in.Rate != nil && in.Hectares != nil {
		recommended = in.Rate.Mul(*in.Hectares)
	}

	decision := &QuotaDecision{}
	switch {
	case in.Livestock:
		decision.Rule = QuotaDistrictShare
		decision.Ceiling = in.DistrictRemaining.Mul(districtShareFactor)
	case in.PlannedProductID != nil && *in.PlannedProductID == in.ProductID:
		decision.Rule = QuotaPlannedCrop
		decision.Ceiling = recommended.Mul(plannedFactor)
	case in.Rate != nil:
		decision.Rule = QuotaRecommended
		decision.Ceiling = recommended.Mul(recommendedFactor)
	default:
		decision.Rule = QuotaDistrictShare
		decision.Ceiling = in.DistrictRemaining.Mul(districtShareFactor)
	}
	decision.Ceiling = decision.Ceiling.Round(quantityScale)

	if in.Requested == nil {
		if decision.Rule == QuotaDistrictShare || !recommended.IsPositive() {
			return nil, errors.ValidationField("quantity", "quantity is required when no recommendation applies")
		}
		decision.Quantity = recommended.Round(quantityScale)
		decision.AutoComputed = true
		return decision, nil
	}

	decision.Quantity = *in.Requested
	if decision.Quantity.GreaterThan(decision.Ceiling) {
		return nil, errors.QuotaExceeded(
			quotaMessage(decision.Rule, decision.Ceiling),
			decision.Ceiling.String(),
			decision.Quantity.String(),
			string(decision.Rule),
		)
	}

	return decision, nil
}

// CheckDistrictShare re-applies the district share rule against a fresh
// remaining figure read under lock.
func CheckDistrictShare(quantity, districtRemaining decimal.Decimal) error {
	ceiling := districtRemaining.Mul(districtShareFactor).Round(quantityScale)
	if quantity.GreaterThan(ceiling) {
		return errors.QuotaExceeded(
			quotaMessage(QuotaDistrictShare, ceiling),
			ceiling.String(),
			quantity.String(),
			string(QuotaDistrictShare),
		)
	}
	return nil
}

func quotaMessage(rule QuotaRule, ceiling decimal.Decimal) string {
	switch rule {
	case QuotaPlannedCrop:
		return fmt.Sprintf("request exceeds 150%% of recommended amount (%s) for planned crop", ceiling)
	case QuotaRecommended:
		return fmt.Sprintf("request exceeds 30%% of recommended amount (%s) for unplanned recommended crop", ceiling)
	default:
		return fmt.Sprintf("request exceeds 5%% of district inventory (%s) for non-recommended product", ceiling)
	}
}
