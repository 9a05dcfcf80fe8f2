// Package httptransport assembles the HTTP surface: middleware chain,
// public and authenticated routes, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	achievementhandler "accolade/internal/achievement/handler"
	authhandler "accolade/internal/auth/handler"
	"accolade/internal/platform/metrics"
	"accolade/internal/platform/middleware"
	"accolade/pkg/platform/httputil"
	authmw "accolade/pkg/platform/middleware/auth"
	"accolade/pkg/platform/middleware/metadata"
	"accolade/pkg/platform/middleware/requesttime"
)

const requestTimeout = 10 * time.Second

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Validator    authmw.JWTValidator
	Achievements *achievementhandler.Handler
	Auth         *authhandler.Handler
	HealthChecks map[string]HealthCheck
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.LatencyMiddleware(deps.Metrics))

	r.Get("/healthz", healthHandler(deps.HealthChecks, deps.Logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)

		deps.Auth.Register(r)
		deps.Achievements.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(deps.Validator, deps.Logger))
			deps.Achievements.RegisterAuthenticated(r)
		})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed",
					"dependency", name,
					"error", err,
				)
				report[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "up"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       http.StatusText(status),
			"dependencies": report,
		})
	}
}
