package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ibabi/ibabi-backend/internal/auth/jwt"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/config"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(expiry time.Duration) *jwt.Manager {
	return jwt.NewManager(&config.JWTConfig{
		Secret:       "test-secret",
		AccessExpiry: expiry,
		Issuer:       "ibabi",
	})
}

func TestManager_RoundTrip(t *testing.T) {
	m := newManager(time.Minute)
	cell := "cell-1"

	token, _, err := m.GenerateAccessToken(&actor.Actor{ID: "u1", Role: actor.RoleCellOfficer, ManagedCellID: &cell})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)

	a := claims.Actor()
	assert.Equal(t, "u1", a.ID)
	assert.True(t, a.ManagesCell("cell-1"))
	assert.Nil(t, a.ManagedDistrictID)
}

func TestManager_Expired(t *testing.T) {
	m := newManager(-time.Minute)

	token, _, err := m.GenerateAccessToken(&actor.Actor{ID: "u1", Role: actor.RoleFarmer})
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.Equal(t, "TOKEN_EXPIRED", errors.Code(err))
}

func TestManager_WrongSecret(t *testing.T) {
	token, _, err := newManager(time.Minute).GenerateAccessToken(&actor.Actor{ID: "u1", Role: actor.RoleFarmer})
	require.NoError(t, err)

	other := jwt.NewManager(&config.JWTConfig{Secret: "other", AccessExpiry: time.Minute, Issuer: "ibabi"})
	_, err = other.ValidateAccessToken(token)
	assert.Equal(t, "TOKEN_INVALID", errors.Code(err))
}

func TestAuthenticate(t *testing.T) {
	m := newManager(time.Minute)
	token, _, err := m.GenerateAccessToken(&actor.Actor{ID: "farmer-1", Role: actor.RoleFarmer})
	require.NoError(t, err)

	var seen *actor.Actor
	handler := jwt.Authenticate(m, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "bad scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc", wantStatus: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "farmer-1", seen.ID)
}
