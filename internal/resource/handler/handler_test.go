package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ibabi/ibabi-backend/internal/auth/jwt"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/handler"
	"github.com/ibabi/ibabi-backend/internal/resource/repository"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/config"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

type testServer struct {
	handler http.Handler
	tokens  *jwt.Manager
	store   *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	store.SeedCell(domain.Cell{ID: "cell-1", Name: "Gahanga", SectorID: "sector-1", DistrictID: "district-1"})
	store.SeedProduct(domain.Product{ID: "npk", Name: "NPK", Unit: "kg"})
	store.SeedLand("land-1", "farmer-1", "cell-1", nil)
	ha := decimal.NewFromInt(2)
	store.SeedLand("land-2", "farmer-1", "cell-1", &ha)
	store.SeedRecommendedRate("npk", "NPK", decimal.NewFromInt(50))
	store.SeedPlannedCrop("cell-1", domain.SeasonA, 2024, "npk")

	clock := func() time.Time { return time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC) }
	svc := service.NewResourceService(store, store, logger.Nop(), service.WithClock(clock))

	tokens := jwt.NewManager(&config.JWTConfig{Secret: "test-secret", AccessExpiry: time.Hour, Issuer: "ibabi"})
	api := handler.Routes(
		handler.NewRequestHandler(svc, logger.Nop()),
		handler.NewStockHandler(svc, logger.Nop()),
	)

	return &testServer{
		handler: jwt.Authenticate(tokens, logger.Nop())(api),
		tokens:  tokens,
		store:   store,
	}
}

func (s *testServer) do(t *testing.T, a *actor.Actor, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if a != nil {
		token, _, err := s.tokens.GenerateAccessToken(a)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func ptr(s string) *string { return &s }

var (
	farmer          = &actor.Actor{ID: "farmer-1", Role: actor.RoleFarmer}
	cellOfficer     = &actor.Actor{ID: "co-1", Role: actor.RoleCellOfficer, ManagedCellID: ptr("cell-1")}
	districtOfficer = &actor.Actor{ID: "do-1", Role: actor.RoleDistrictOfficer, ManagedDistrictID: ptr("district-1")}
)

func TestRoutes_RequireToken(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, nil, http.MethodGet, "/requests", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
}

func TestSubmitRequest(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "defaults from plan and land size",
			body:   `{"land_id":"land-2"}`,
			status: http.StatusCreated,
		},
		{
			name:   "explicit quantity as string",
			body:   `{"land_id":"land-2","product_id":"npk","quantity":"150"}`,
			status: http.StatusCreated,
		},
		{
			name:   "over the planned crop ceiling",
			body:   `{"land_id":"land-2","quantity":150.0001}`,
			status: http.StatusUnprocessableEntity,
			code:   "QUOTA_EXCEEDED",
		},
		{
			name:   "no target",
			body:   `{"product_id":"npk","quantity":1}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "both targets",
			body:   `{"land_id":"land-2","livestock_location_id":"barn-1","quantity":1}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "negative quantity",
			body:   `{"land_id":"land-2","quantity":-3}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "malformed json",
			body:   `{"land_id":`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			rec, env := srv.do(t, farmer, http.MethodPost, "/requests", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.code, env.Error.Code)
				return
			}

			var result struct {
				Request domain.ResourceRequest `json:"request"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &result))
			assert.Equal(t, domain.StatusPending, result.Request.Status)
			assert.Equal(t, domain.SeasonA, result.Request.Season)
		})
	}
}

func TestCellRequestFlow(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, districtOfficer, http.MethodPost, "/district-stock",
		`{"district_id":"district-1","product_id":"npk","quantity":"40"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := srv.do(t, cellOfficer, http.MethodPost, "/cell-requests",
		`{"cell_id":"cell-1","product_id":"npk","quantity":"60"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var submitted struct {
		Request domain.CellResourceRequest `json:"request"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	id := submitted.Request.ID

	// 60 requested against 40 in stock
	rec, env = srv.do(t, districtOfficer, http.MethodPost, "/cell-requests/"+id+"/approve", "")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	assert.Equal(t, "20", env.Error.Details["shortfall"])

	rec, env = srv.do(t, districtOfficer, http.MethodPost, "/cell-requests/"+id+"/reject", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = srv.do(t, districtOfficer, http.MethodPost, "/cell-requests/"+id+"/reject", `{"comment":"not enough stock this season"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = srv.do(t, districtOfficer, http.MethodPost, "/cell-requests/"+id+"/approve", `{"comment":"retry"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TERMINAL_STATE", env.Error.Code)

	rec, env = srv.do(t, districtOfficer, http.MethodGet, "/district-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)
}

func TestListRequests_QueryValidation(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, cellOfficer, http.MethodGet, "/requests?season=D", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "season", keys(env.Error.Details)[0])

	rec, _ = srv.do(t, cellOfficer, http.MethodGet, "/requests?status=approved&year=2024&page=2&per_page=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFarmerBalances_Deduct(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, farmer, http.MethodPost, "/farmer-balances/deduct", `{"product_id":"npk","amount":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", env.Error.Code)

	rec, _ = srv.do(t, cellOfficer, http.MethodGet, "/farmer-balances", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
