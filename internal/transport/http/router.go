// Package httptransport assembles the HTTP surface: middleware chain, public
// endpoints, the authenticated API and operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphandler "crediflow/internal/application/handler"
	"crediflow/internal/auth"
	authhandler "crediflow/internal/auth/handler"
	webhookhandler "crediflow/internal/evaluation/handler"
	"crediflow/internal/transport/ws"
	"crediflow/pkg/platform/httputil"
	"crediflow/pkg/requestcontext"
)

// Deps carries everything the router mounts.
type Deps struct {
	Auth         *authhandler.Handler
	Applications *apphandler.Handler
	Webhooks     *webhookhandler.Handler
	Hub          *ws.Hub
	Tokens       auth.TokenValidator
	Health       map[string]func(context.Context) error
	Logger       *slog.Logger
}

// NewRouter wires middleware and endpoints. Everything under /api requires a
// bearer token except the bank-data webhook, which bureaus call directly.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(requestTime)
	r.Use(requestLogger(deps.Logger))

	r.Get("/healthz", healthHandler(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	deps.Auth.Register(r)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(auth.RequireAuth(deps.Tokens, deps.Logger))
			deps.Applications.Register(g, auth.RequireRole(auth.RoleAdmin, auth.RoleAnalyst))
		})
		deps.Webhooks.Register(api)
	})

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWS)
	}
	return r
}

// requestID reuses the caller's X-Request-ID when present so ids correlate
// across services, and mints one otherwise.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

// requestTime pins one "now" per request so every timestamp written while
// serving it agrees.
func requestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now())))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			logger.Info("http request",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			} else {
				body[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, body)
	}
}
