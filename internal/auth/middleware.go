package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/platform/httputil"
	"crediflow/pkg/requestcontext"
)

// TokenValidator validates a bearer token into claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stashes the
// authenticated subject and role in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("rejected invalid token",
					"request_id", requestcontext.RequestID(r.Context()), "error", err)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx := requestcontext.WithSubject(r.Context(), claims.Subject)
			ctx = requestcontext.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// allowed set. Must run after RequireAuth.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := set[requestcontext.Role(r.Context())]; !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
