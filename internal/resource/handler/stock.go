package handler

import (
	"net/http"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// StockHandler handles district stock and balance endpoints
type StockHandler struct {
	service *service.ResourceService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.ResourceService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

type addStockBody struct {
	DistrictID string          `json:"district_id" validate:"required"`
	ProductID  string          `json:"product_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"dpositive"`
}

type deductBody struct {
	FarmerID  string          `json:"farmer_id"`
	ProductID string          `json:"product_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"dpositive"`
}

// AddDistrictStock records a new district batch
func (h *StockHandler) AddDistrictStock(w http.ResponseWriter, r *http.Request) {
	var body addStockBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.AddDistrictStock(r.Context(), body.DistrictID, body.ProductID, body.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// ListDistrictStock lists district batches oldest first
func (h *StockHandler) ListDistrictStock(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := domain.BatchFilter{
		DistrictID: r.URL.Query().Get("district_id"),
		ProductID:  r.URL.Query().Get("product_id"),
		Page:       page,
		PerPage:    perPage,
	}

	items, total, err := h.service.ListDistrictBatches(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// ListCellBalances lists cell balances in the caller's scope
func (h *StockHandler) ListCellBalances(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := domain.BalanceFilter{
		ProductID: r.URL.Query().Get("product_id"),
		Page:      page,
		PerPage:   perPage,
	}

	items, total, err := h.service.ListCellBalances(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// ListFarmerBalances lists farmer balances; farmers only see their own
func (h *StockHandler) ListFarmerBalances(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := domain.BalanceFilter{
		Scope:     domain.Scope{FarmerID: r.URL.Query().Get("farmer_id")},
		ProductID: r.URL.Query().Get("product_id"),
		Page:      page,
		PerPage:   perPage,
	}

	items, total, err := h.service.ListFarmerBalances(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// DeductFarmerStock records consumption from a farmer balance
func (h *StockHandler) DeductFarmerStock(w http.ResponseWriter, r *http.Request) {
	var body deductBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.DeductFarmerStock(r.Context(), body.FarmerID, body.ProductID, body.Amount)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
