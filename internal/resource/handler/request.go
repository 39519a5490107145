package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	apperrors "github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// RequestHandler handles farmer and cell request endpoints
type RequestHandler struct {
	service *service.ResourceService
	logger  *logger.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(svc *service.ResourceService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: svc,
		logger:  log,
	}
}

type submitRequestBody struct {
	LandID              *string          `json:"land_id"`
	LivestockLocationID *string          `json:"livestock_location_id"`
	ProductID           *string          `json:"product_id"`
	Quantity            *decimal.Decimal `json:"quantity" validate:"omitempty,dpositive"`
}

func (b submitRequestBody) target() (domain.RequestTarget, error) {
	hasLand := b.LandID != nil && *b.LandID != ""
	hasLivestock := b.LivestockLocationID != nil && *b.LivestockLocationID != ""
	switch {
	case hasLand && hasLivestock:
		return domain.RequestTarget{}, apperrors.ValidationField("target", "specify either land_id or livestock_location_id, not both")
	case hasLand:
		return domain.LandTarget(*b.LandID), nil
	case hasLivestock:
		return domain.LivestockTarget(*b.LivestockLocationID), nil
	}
	return domain.RequestTarget{}, apperrors.ValidationField("target", "land_id or livestock_location_id is required")
}

type submitCellRequestBody struct {
	CellID    string           `json:"cell_id" validate:"required"`
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  *decimal.Decimal `json:"quantity" validate:"omitempty,dpositive"`
}

type commentBody struct {
	Comment *string `json:"comment"`
}

type rejectBody struct {
	Comment string `json:"comment" validate:"required"`
}

type feedbackBody struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment"`
}

// decodeOptionalJSON accepts an empty body
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("invalid JSON body")
	}
	return nil
}

func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}

// requestFilter reads status, season, year and product_id query parameters
func requestFilter(r *http.Request) (domain.RequestFilter, error) {
	q := r.URL.Query()
	page, perPage := httputil.Pagination(r)
	f := domain.RequestFilter{
		ProductID: q.Get("product_id"),
		Page:      page,
		PerPage:   perPage,
	}

	if s := q.Get("status"); s != "" {
		f.Status = domain.RequestStatus(s)
		if !f.Status.Valid() {
			return f, apperrors.ValidationField("status", "must be one of: pending, approved, rejected, delivered")
		}
	}
	if s := q.Get("season"); s != "" {
		f.Season = domain.Season(s)
		if !f.Season.Valid() {
			return f, apperrors.ValidationField("season", "must be one of: A, B, C")
		}
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return f, apperrors.ValidationField("year", "must be a number")
		}
		f.Year = year
	}
	return f, nil
}

// Submit creates a farmer request
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	target, err := body.target()
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.SubmitResourceRequest(r.Context(), service.SubmitResourceRequestInput{
		Target:    target,
		ProductID: body.ProductID,
		Quantity:  body.Quantity,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// List lists farmer requests visible to the caller
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	items, total, err := h.service.ListResourceRequests(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(filter.Page, filter.PerPage, total))
}

// Get returns one farmer request
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetResourceRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Approve approves a pending farmer request
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ApproveResourceRequest(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Reject rejects a farmer request; a comment is required
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body rejectBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RejectResourceRequest(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Deliver marks an approved farmer request delivered
func (h *RequestHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.MarkResourceRequestDelivered(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Feedback records the farmer's rating of a delivered request
func (h *RequestHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), body.Rating, body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// SubmitCell creates a cell request against district stock
func (h *RequestHandler) SubmitCell(w http.ResponseWriter, r *http.Request) {
	var body submitCellRequestBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.SubmitCellRequest(r.Context(), service.SubmitCellRequestInput{
		CellID:    body.CellID,
		ProductID: body.ProductID,
		Quantity:  body.Quantity,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// ListCell lists cell requests visible to the caller
func (h *RequestHandler) ListCell(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	items, total, err := h.service.ListCellRequests(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(filter.Page, filter.PerPage, total))
}

// GetCell returns one cell request with its allocations
func (h *RequestHandler) GetCell(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetCellRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// ApproveCell approves a cell request and allocates district stock
func (h *RequestHandler) ApproveCell(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ApproveCellRequest(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// RejectCell rejects a cell request
func (h *RequestHandler) RejectCell(w http.ResponseWriter, r *http.Request) {
	var body rejectBody
	if err := decodeAndValidate(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RejectCellRequest(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// DeliverCell marks an approved cell request delivered
func (h *RequestHandler) DeliverCell(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.MarkCellRequestDelivered(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
