package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/auth"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

type contextKey string

const identityKey contextKey = "identity"

func identityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// authMiddleware verifies the bearer token. An expired token is reported
// as "token expired" so that clients know to refresh.
func (r *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			respondError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		id, err := auth.ParseToken(token, r.jwtSecret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				respondError(w, http.StatusUnauthorized, common.ErrTokenExpired.Error())
				return
			}
			respondError(w, http.StatusUnauthorized, common.ErrInvalidToken.Error())
			return
		}

		ctx := context.WithValue(req.Context(), identityKey, id)
		ctx = logging.ContextWith(ctx, "user", id.UserID, "company", id.CompanyID)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		args := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		}
		if rec.status >= http.StatusInternalServerError {
			r.logger.Error(req.Context(), "HTTP request", args...)
			return
		}
		r.logger.Debug(req.Context(), "HTTP request", args...)
	})
}
