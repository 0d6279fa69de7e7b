// Package httpapi assembles the HTTP surface: middleware chain, module
// routes under /api, and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gradenorm/internal/platform/metrics"
	"gradenorm/internal/platform/middleware"
	"gradenorm/pkg/platform/httputil"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router needs.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.HTTP
	Handlers []Registrar

	// Optional dependency probes surfaced by /healthz.
	Checks map[string]HealthChecker
}

// NewRouter wires the middleware chain and mounts every module handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Actor)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.AccessLog(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Instrument(deps.Metrics))
	}

	r.Route("/api", func(api chi.Router) {
		for _, h := range deps.Handlers {
			h.Register(api)
		}
	})

	r.Get("/healthz", handleHealth(deps.Checks))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		detail := make(map[string]string, len(checks)+1)
		detail["status"] = "ok"
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				detail["status"] = "degraded"
				detail[name] = err.Error()
			} else {
				detail[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, detail)
	}
}
