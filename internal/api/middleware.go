package api

import (
	"context"
	"net/http"

	"learner-records-api/internal/telemetry"
)

// PrincipalHeader carries the authenticated user id, injected by the
// authenticating gateway in front of this service.
const PrincipalHeader = "X-Registrar-User"

type contextKey string

const principalKey contextKey = "principal"

// requirePrincipal resolves the authenticated user or rejects with 401.
func (s *Server) requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(PrincipalHeader)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, user)))
	})
}

func principalFrom(ctx context.Context) string {
	if user, ok := ctx.Value(principalKey).(string); ok {
		return user
	}
	return ""
}

// throttleWrites applies the per-user token bucket to write endpoints.
func (s *Server) throttleWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := s.limiter.AllowUser(r.Context(), principalFrom(r.Context()))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
