package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/config"
	apperrors "github.com/ibabi/ibabi-backend/pkg/errors"
)

// Claims represents the access token claims. Officer assignments travel in
// the token so the ledger can authorize without calling the user service.
type Claims struct {
	jwt.RegisteredClaims
	UserID            string  `json:"user_id"`
	Role              string  `json:"role"`
	ManagedDistrictID *string `json:"managed_district_id,omitempty"`
	ManagedCellID     *string `json:"managed_cell_id,omitempty"`
}

// Actor converts the claims into the request actor
func (c *Claims) Actor() *actor.Actor {
	return &actor.Actor{
		ID:                c.UserID,
		Role:              c.Role,
		ManagedDistrictID: c.ManagedDistrictID,
		ManagedCellID:     c.ManagedCellID,
	}
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg}
}

// GenerateAccessToken signs an access token for a. Tokens are normally
// issued by the identity service; this is used by tooling and tests.
func (m *Manager) GenerateAccessToken(a *actor.Actor) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:            a.ID,
		Role:              a.Role,
		ManagedDistrictID: a.ManagedDistrictID,
		ManagedCellID:     a.ManagedCellID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(m.config.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.TokenInvalid()
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, apperrors.TokenInvalid()
	}

	return claims, nil
}

// GetTokenExpiry returns the access token expiry duration
func (m *Manager) GetTokenExpiry() time.Duration {
	return m.config.AccessExpiry
}
