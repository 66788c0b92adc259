// Package http assembles the service router: middleware chain, public auth
// routes, and the authenticated fund and governance surfaces.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "tranche/internal/auth/handler"
	governancehandler "tranche/internal/governance/handler"
	"tranche/internal/idempotency"
	ledgerhandler "tranche/internal/ledger/handler"
	"tranche/internal/platform/metrics"
	"tranche/internal/platform/middleware"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TokenValidator middleware.TokenValidator
	Idempotency    idempotency.Guard

	Auth       *authhandler.Handler
	Fund       *ledgerhandler.Handler
	Governance *governancehandler.Handler

	RequestTimeout time.Duration
	// HealthCheckers are probed by /healthz; nil entries are skipped.
	HealthCheckers map[string]HealthChecker
}

// New builds the HTTP handler tree.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(deps.Metrics))
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", healthz(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Token issuance and onboarding are the only unauthenticated routes.
	deps.Auth.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.TokenValidator, deps.Logger))
		r.Use(idempotency.Middleware(deps.Idempotency, deps.Logger))
		deps.Fund.Register(r)
		deps.Governance.Register(r)
	})

	return r
}

func healthz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, checker := range deps.HealthCheckers {
			if checker == nil {
				continue
			}
			if err := checker.Health(ctx); err != nil {
				deps.Logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","dependency":"` + name + `"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
