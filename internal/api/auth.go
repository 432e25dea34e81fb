package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/middleware"
	"github.com/patrickwarner/flagdesk/internal/token"
)

type claimsKey struct{}

// ClaimsFromContext returns the verified caller, if any.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return c, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// requireRole verifies the bearer token and checks the caller holds one of roles.
func (s *Server) requireRole(roles []string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		claims, err := token.Verify(raw, s.TokenSecret)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, token.ErrExpired) {
				msg = "session expired, please sign in again"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		allowed := false
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			middleware.LoggerFromRequest(r, s.Logger).Info("role denied",
				zap.Int("user_id", claims.UserID), zap.String("role", claims.Role), zap.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// limited rejects the request with 429 once the caller's bucket is empty. It
// runs inside requireRole so the caller is known.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if ok && !s.Limiter.Allow("user:"+strconv.Itoa(claims.UserID)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests; slow down")
			return
		}
		next(w, r)
	}
}
