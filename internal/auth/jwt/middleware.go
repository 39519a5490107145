package jwt

import (
	"net/http"
	"strings"

	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/ibabi/ibabi-backend/pkg/logger"
)

// Authenticate validates the bearer token and puts the actor into the
// request context
func Authenticate(m *Manager, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.Error(w, errors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := m.ValidateAccessToken(parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("token validation failed")
				httputil.Error(w, err)
				return
			}

			ctx := actor.WithActor(r.Context(), claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
