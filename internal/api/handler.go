package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/events"
	"leasing/risk-engine/internal/metrics"
	"leasing/risk-engine/internal/registry"
	"leasing/risk-engine/internal/scoring"
	"leasing/risk-engine/internal/segments"
	"leasing/risk-engine/internal/store"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "risk-engine"

// customerLister is implemented by stores that index assessments by customer.
type customerLister interface {
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Assessment, error)
}

// DealerRefresher runs the dealer snapshot job on demand.
type DealerRefresher interface {
	Run(ctx context.Context, date domain.Date) (dealers.Result, error)
}

// SegmentRefresher runs the segment performance job on demand.
type SegmentRefresher interface {
	Run(ctx context.Context, date domain.Date, windowMonths int) (segments.Result, error)
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	engine    *scoring.Engine
	store     store.Store
	events    *events.Dispatcher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	refresher DealerRefresher
	segments  SegmentRefresher
	registry  registry.Registry
}

// NewHandler creates a Handler wired to the given dependencies. d and m may be nil.
func NewHandler(e *scoring.Engine, s store.Store, d *events.Dispatcher, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, store: s, events: d, metrics: m, logger: logger}
}

// WithDealerRefresher enables POST /v1/admin/refresh-dealer-metrics.
func (h *Handler) WithDealerRefresher(r DealerRefresher) *Handler {
	h.refresher = r
	return h
}

// WithSegmentRefresher enables POST /v1/admin/refresh-segment-performance.
func (h *Handler) WithSegmentRefresher(r SegmentRefresher) *Handler {
	h.segments = r
	return h
}

// WithRegistry records every calibration change as a version with an audit
// trail and enables the /v1/admin/calibration/versions routes.
func (h *Handler) WithRegistry(r registry.Registry) *Handler {
	h.registry = r
	return h
}

// ─── POST /v1/risk/evaluate ───────────────────────────────────────────────────

// Evaluate scores a lease application synchronously. A request_id that was
// already evaluated returns the stored response unchanged.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.RiskEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	if err := req.Validate(); err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	ctx := r.Context()
	log := h.logger.With("request_id", req.RequestID)
	if caller, ok := ClaimsFromContext(ctx); ok {
		log = log.With("caller", caller.Subject)
	}
	log.Info("risk evaluation started",
		"contract_id", req.Contract.ContractID,
		"customer_id", req.Customer.CustomerID,
	)

	if existing, err := h.store.Get(ctx, req.RequestID); err == nil {
		log.Info("duplicate request", "assessment_id", existing.Response.AssessmentID)
		h.metrics.Replayed()
		ok(w, existing.Response)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error("assessment lookup failed", "error", err)
		internalError(w)
		return
	}

	start := time.Now()
	resp := h.engine.Evaluate(&req)
	elapsed := time.Since(start)
	a := &domain.Assessment{Request: req, Response: resp}

	if err := h.store.Save(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateRequest) {
			// A concurrent call with the same request_id won the write.
			if existing, gerr := h.store.Get(ctx, req.RequestID); gerr == nil {
				h.metrics.Replayed()
				ok(w, existing.Response)
				return
			}
		}
		log.Error("assessment persist failed", "error", err)
		internalError(w)
		return
	}

	h.metrics.ObserveEvaluation(req.Customer.PartyType, &resp, elapsed)
	if h.events != nil {
		h.events.PublishAsync(events.NewEvent(a))
	}

	ok(w, resp)
}

// ─── GET /v1/risk/assessments/{request_id} ───────────────────────────────────

// GetAssessment returns the stored request and response for a request_id.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")
	a, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, fmt.Sprintf("assessment for request '%s' not found", id))
		return
	}
	if err != nil {
		h.logger.Error("assessment lookup failed", "request_id", id, "error", err)
		internalError(w)
		return
	}
	ok(w, a)
}

// ─── GET /v1/risk/customers/{customer_id}/assessments ────────────────────────

// ListCustomerAssessments returns a customer's evaluation history, oldest first.
func (h *Handler) ListCustomerAssessments(w http.ResponseWriter, r *http.Request) {
	lister, supported := h.store.(customerLister)
	if !supported {
		notImplemented(w, "the configured store does not index assessments by customer")
		return
	}
	id := chi.URLParam(r, "customer_id")
	list, err := lister.ListByCustomer(r.Context(), id)
	if err != nil {
		h.logger.Error("customer history lookup failed", "customer_id", id, "error", err)
		internalError(w)
		return
	}
	ok(w, list)
}

// ─── GET /v1/risk/rules ──────────────────────────────────────────────────────

// ListRules returns the business rule catalogue in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ok(w, scoring.Rules())
}

// ─── Health ──────────────────────────────────────────────────────────────────

// Health reports liveness and the active model version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{
		"status":        "ok",
		"service":       ServiceName,
		"model_version": h.engine.Calibration().Version,
	})
}

// ─── Calibration admin ───────────────────────────────────────────────────────

// GetCalibration returns the active calibration snapshot.
func (h *Handler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	ok(w, h.engine.Calibration())
}

// PutCalibration validates and publishes a new calibration. Evaluations in
// flight finish on the snapshot they started with. With a registry the
// calibration is also recorded as a new version, so a version_id can only be
// used once.
func (h *Handler) PutCalibration(w http.ResponseWriter, r *http.Request) {
	var cal scoring.Calibration
	if err := json.NewDecoder(r.Body).Decode(&cal); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if err := cal.Validate(); err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	if h.registry != nil {
		by := changedBy(r.Context())
		if _, err := h.registry.Create(r.Context(), &cal, "", by); err != nil {
			h.writeRegistryError(w, cal.Version, err)
			return
		}
		if _, err := h.registry.Publish(r.Context(), cal.Version, by); err != nil {
			h.writeRegistryError(w, cal.Version, err)
			return
		}
	}
	h.activate(&cal)
	ok(w, h.engine.Calibration())
}

// ─── Calibration versions ────────────────────────────────────────────────────

type createVersionRequest struct {
	Description string               `json:"description"`
	Calibration *scoring.Calibration `json:"calibration"`
}

// ListCalibrationVersions returns every stored version, newest first.
func (h *Handler) ListCalibrationVersions(w http.ResponseWriter, r *http.Request) {
	if !h.registryConfigured(w) {
		return
	}
	list, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list calibration versions failed", "error", err)
		internalError(w)
		return
	}
	ok(w, list)
}

// CreateCalibrationVersion stores a DRAFT version without activating it.
func (h *Handler) CreateCalibrationVersion(w http.ResponseWriter, r *http.Request) {
	if !h.registryConfigured(w) {
		return
	}
	var body createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if body.Calibration == nil {
		badRequest(w, "VALIDATION_ERROR", "calibration is required")
		return
	}
	if err := body.Calibration.Validate(); err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	v, err := h.registry.Create(r.Context(), body.Calibration, body.Description, changedBy(r.Context()))
	if err != nil {
		h.writeRegistryError(w, body.Calibration.Version, err)
		return
	}
	h.logger.Info("calibration version created", "version", v.VersionID, "created_by", v.CreatedBy)
	created(w, v)
}

// GetCalibrationVersion returns one stored version.
func (h *Handler) GetCalibrationVersion(w http.ResponseWriter, r *http.Request) {
	if !h.registryConfigured(w) {
		return
	}
	id := chi.URLParam(r, "version_id")
	v, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeRegistryError(w, id, err)
		return
	}
	ok(w, v)
}

// PublishCalibrationVersion makes a stored version the active calibration.
func (h *Handler) PublishCalibrationVersion(w http.ResponseWriter, r *http.Request) {
	if !h.registryConfigured(w) {
		return
	}
	id := chi.URLParam(r, "version_id")
	v, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeRegistryError(w, id, err)
		return
	}
	if err := v.Calibration.Validate(); err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	v, err = h.registry.Publish(r.Context(), id, changedBy(r.Context()))
	if err != nil {
		h.writeRegistryError(w, id, err)
		return
	}
	h.activate(v.Calibration)
	ok(w, v)
}

// ListCalibrationAudit returns a version's audit trail, newest first,
// capped by ?limit= (default 50).
func (h *Handler) ListCalibrationAudit(w http.ResponseWriter, r *http.Request) {
	if !h.registryConfigured(w) {
		return
	}
	limit := registry.DefaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			badRequest(w, "INVALID_PARAM", "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}
	id := chi.URLParam(r, "version_id")
	entries, err := h.registry.ListAudit(r.Context(), id, limit)
	if err != nil {
		h.writeRegistryError(w, id, err)
		return
	}
	ok(w, entries)
}

// activate swaps the engine calibration. cal is already validated.
func (h *Handler) activate(cal *scoring.Calibration) {
	previous := h.engine.Calibration().Version
	if err := h.engine.Publish(cal); err != nil {
		h.logger.Error("calibration publish failed", "version", cal.Version, "error", err)
		return
	}
	h.logger.Info("calibration published", "previous_version", previous, "version", cal.Version)
}

func (h *Handler) registryConfigured(w http.ResponseWriter) bool {
	if h.registry == nil {
		notImplemented(w, "calibration version history is not configured")
		return false
	}
	return true
}

func (h *Handler) writeRegistryError(w http.ResponseWriter, versionID string, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		notFound(w, fmt.Sprintf("calibration version '%s' not found", versionID))
	case errors.Is(err, registry.ErrDuplicateVersion):
		conflict(w, fmt.Sprintf("calibration version '%s' already exists", versionID))
	default:
		h.logger.Error("calibration registry failed", "version", versionID, "error", err)
		internalError(w)
	}
}

// changedBy names the caller for the audit trail.
func changedBy(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok && c.Subject != "" {
		return c.Subject
	}
	return "anonymous"
}

// RefreshDealerMetrics runs the dealer snapshot job for ?date=YYYY-MM-DD,
// defaulting to today.
func (h *Handler) RefreshDealerMetrics(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		notImplemented(w, "dealer metrics refresh is not configured")
		return
	}
	date := domain.DateOf(time.Now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			badRequest(w, "INVALID_PARAM", "date must be YYYY-MM-DD")
			return
		}
		date = domain.DateOf(t)
	}
	res, err := h.refresher.Run(r.Context(), date)
	if err != nil {
		h.logger.Error("dealer refresh failed", "snapshot_date", date.Format(domain.DateLayout), "error", err)
		internalError(w)
		return
	}
	ok(w, res)
}

// ─── POST /v1/admin/refresh-segment-performance ──────────────────────────────

// RefreshSegmentPerformance runs the segment job synchronously for
// ?date= (default today) over ?window_months= (default 12).
func (h *Handler) RefreshSegmentPerformance(w http.ResponseWriter, r *http.Request) {
	if h.segments == nil {
		notImplemented(w, "segment performance refresh is not configured")
		return
	}
	q := r.URL.Query()
	date := domain.DateOf(time.Now())
	if raw := q.Get("date"); raw != "" {
		t, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			badRequest(w, "INVALID_PARAM", "date must be YYYY-MM-DD")
			return
		}
		date = domain.DateOf(t)
	}
	window := segments.DefaultWindowMonths
	if raw := q.Get("window_months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 60 {
			badRequest(w, "INVALID_PARAM", "window_months must be an integer between 1 and 60")
			return
		}
		window = n
	}

	h.logger.Info("segment refresh triggered",
		"snapshot_date", date.Format(domain.DateLayout),
		"window_months", window,
		"triggered_by", changedBy(r.Context()),
	)
	res, err := h.segments.Run(r.Context(), date, window)
	if err != nil {
		h.logger.Error("segment refresh failed", "snapshot_date", date.Format(domain.DateLayout), "error", err)
		internalError(w)
		return
	}
	ok(w, res)
}
