package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leasing/risk-engine/internal/metrics"
)

// NewRouter creates and returns a configured Chi router. auth may be nil,
// which leaves every route open.
func NewRouter(h *Handler, auth *Authenticator) http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger, h.metrics))
	r.Use(middleware.Recoverer)

	// ── Health check ──────────────────────────────────────────────────────────
	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	// ── Risk API ──────────────────────────────────────────────────────────────
	r.Route("/v1/risk", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth.Middleware)
			}
			r.Post("/evaluate", h.Evaluate)
			r.Get("/assessments/{request_id}", h.GetAssessment)
			r.Get("/customers/{customer_id}/assessments", h.ListCustomerAssessments)
			r.Get("/rules", h.ListRules)
		})
	})

	// ── Admin ─────────────────────────────────────────────────────────────────
	r.Route("/v1/admin", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware)
			r.Use(requireRole(RoleAdmin))
		}
		r.Get("/calibration", h.GetCalibration)
		r.Put("/calibration", h.PutCalibration)
		r.Route("/calibration/versions", func(r chi.Router) {
			r.Get("/", h.ListCalibrationVersions)
			r.Post("/", h.CreateCalibrationVersion)
			r.Get("/{version_id}", h.GetCalibrationVersion)
			r.Post("/{version_id}/publish", h.PublishCalibrationVersion)
			r.Get("/{version_id}/audit", h.ListCalibrationAudit)
		})
		r.Post("/refresh-dealer-metrics", h.RefreshDealerMetrics)
		r.Post("/refresh-segment-performance", h.RefreshSegmentPerformance)
	})

	return r
}

// requestLogger emits one slog record per request and feeds the HTTP
// metrics, labelled by route pattern to keep cardinality bounded.
func requestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveHTTP(route, r.Method, ww.Status(), elapsed)

			logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
