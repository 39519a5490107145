package httputil_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Error(rec, errors.InsufficientStock("not enough stock", "12", "15", "3"))

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", body.Error.Code)
	assert.Equal(t, "3", body.Error.Details["shortfall"])
}

func TestError_RetryableSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Error(rec, errors.Retryable(fmt.Errorf("lock timeout"), "lock_timeout"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestError_PlainErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Error(rec, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

type quantityInput struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"omitempty,dpositive"`
	Amount   decimal.Decimal  `json:"amount" validate:"dpositive"`
}

func TestValidate_Decimals(t *testing.T) {
	neg := decimal.NewFromInt(-1)

	tests := []struct {
		name    string
		input   quantityInput
		wantErr []string
	}{
		{name: "valid", input: quantityInput{Amount: decimal.NewFromInt(5)}},
		{name: "zero amount", input: quantityInput{Amount: decimal.Zero}, wantErr: []string{"Amount"}},
		{name: "negative quantity", input: quantityInput{Quantity: &neg, Amount: decimal.NewFromInt(1)}, wantErr: []string{"Quantity"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := httputil.Validate(tt.input)
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			for _, field := range tt.wantErr {
				assert.Equal(t, "must be greater than zero", appErr.Details[field])
			}
		})
	}
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&per_page=500", nil)
	page, perPage := httputil.Pagination(req)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, perPage)

	meta := httputil.NewMeta(2, 20, 41)
	assert.Equal(t, 3, meta.TotalPages)
}
