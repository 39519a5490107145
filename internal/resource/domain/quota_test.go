package domain_test

import (
	"testing"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func TestEvaluateQuota(t *testing.T) {
	const product = "maize"

	tests := []struct {
		name        string
		input       domain.QuotaInput
		wantRule    domain.QuotaRule
		wantCeiling string
		wantQty     string
		wantAuto    bool
		wantCode    string
	}{
		{
			name: "planned crop at the ceiling",
			input: domain.QuotaInput{
				ProductID:        product,
				PlannedProductID: strPtr(product),
				Rate:             decPtr("50"),
				Hectares:         decPtr("2"),
				Requested:        decPtr("150"),
			},
			wantRule:    domain.QuotaPlannedCrop,
			wantCeiling: "150",
			wantQty:     "150",
		},
		{
			name: "planned crop above the ceiling",
			input: domain.QuotaInput{
				ProductID:        product,
				PlannedProductID: strPtr(product),
				Rate:             decPtr("50"),
				Hectares:         decPtr("2"),
				Requested:        decPtr("151"),
			},
			wantCode: "QUOTA_EXCEEDED",
		},
		{
			name: "planned crop default quantity",
			input: domain.QuotaInput{
				ProductID:        product,
				PlannedProductID: strPtr(product),
				Rate:             decPtr("50"),
				Hectares:         decPtr("2"),
			},
			wantRule:    domain.QuotaPlannedCrop,
			wantCeiling: "150",
			wantQty:     "100",
			wantAuto:    true,
		},
		{
			name: "recommended but not planned",
			input: domain.QuotaInput{
				ProductID:        product,
				PlannedProductID: strPtr("beans"),
				Rate:             decPtr("50"),
				Hectares:         decPtr("2"),
				Requested:        decPtr("30"),
			},
			wantRule:    domain.QuotaRecommended,
			wantCeiling: "30",
			wantQty:     "30",
		},
		{
			name: "recommended default is not capped",
			input: domain.QuotaInput{
				ProductID: product,
				Rate:      decPtr("50"),
				Hectares:  decPtr("2"),
			},
			wantRule:    domain.QuotaRecommended,
			wantCeiling: "30",
			wantQty:     "100",
			wantAuto:    true,
		},
		{
			name: "recommended explicit quantity above thirty percent",
			input: domain.QuotaInput{
				ProductID: product,
				Rate:      decPtr("50"),
				Hectares:  decPtr("2"),
				Requested: decPtr("31"),
			},
			wantCode: "QUOTA_EXCEEDED",
		},
		{
			name: "planned crop on land without size has zero ceiling",
			input: domain.QuotaInput{
				ProductID:         product,
				PlannedProductID:  strPtr(product),
				Rate:              decPtr("50"),
				DistrictRemaining: dec("1000"),
				Requested:         decPtr("40"),
			},
			wantCode: "QUOTA_EXCEEDED",
		},
		{
			name: "planned crop without rate has zero ceiling",
			input: domain.QuotaInput{
				ProductID:         product,
				PlannedProductID:  strPtr(product),
				Hectares:          decPtr("2"),
				DistrictRemaining: dec("1000"),
				Requested:         decPtr("1"),
			},
			wantCode: "QUOTA_EXCEEDED",
		},
		{
			name: "recommended on land without size needs a quantity",
			input: domain.QuotaInput{
				ProductID:         product,
				Rate:              decPtr("50"),
				DistrictRemaining: dec("1000"),
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "non recommended uses district share",
			input: domain.QuotaInput{
				ProductID:         product,
				DistrictRemaining: dec("1000"),
				Requested:         decPtr("50"),
			},
			wantRule:    domain.QuotaDistrictShare,
			wantCeiling: "50",
			wantQty:     "50",
		},
		{
			name: "livestock has no hectare basis",
			input: domain.QuotaInput{
				ProductID:         product,
				Livestock:         true,
				PlannedProductID:  strPtr(product),
				Rate:              decPtr("50"),
				DistrictRemaining: dec("100"),
				Requested:         decPtr("6"),
			},
			wantCode: "QUOTA_EXCEEDED",
		},
		{
			name: "quantity required without basis",
			input: domain.QuotaInput{
				ProductID:         product,
				DistrictRemaining: dec("100"),
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "zero quantity",
			input: domain.QuotaInput{
				ProductID:         product,
				DistrictRemaining: dec("100"),
				Requested:         decPtr("0"),
			},
			wantCode: "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := domain.EvaluateQuota(tt.input)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRule, decision.Rule)
			assert.True(t, dec(tt.wantCeiling).Equal(decision.Ceiling), "ceiling %s", decision.Ceiling)
			assert.True(t, dec(tt.wantQty).Equal(decision.Quantity), "quantity %s", decision.Quantity)
			assert.Equal(t, tt.wantAuto, decision.AutoComputed)
		})
	}
}

func TestEvaluateQuota_ExceededDetails(t *testing.T) {
	_, err := domain.EvaluateQuota(domain.QuotaInput{
		ProductID:        "maize",
		PlannedProductID: strPtr("maize"),
		Rate:             decPtr("50"),
		Hectares:         decPtr("2"),
		Requested:        decPtr("151"),
	})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	assert.Equal(t, "150", appErr.Details["ceiling"])
	assert.Equal(t, "151", appErr.Details["requested"])
	assert.Equal(t, "planned_crop", appErr.Details["rule"])
	assert.Contains(t, appErr.Message, "150% of recommended amount (150)")
}

func TestCheckDistrictShare(t *testing.T) {
	require.NoError(t, domain.CheckDistrictShare(dec("5"), dec("100")))

	err := domain.CheckDistrictShare(dec("5.0001"), dec("100"))
	assert.Equal(t, "QUOTA_EXCEEDED", errors.Code(err))
}
