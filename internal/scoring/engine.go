// Package scoring implements the lease credit-risk scoring engine.
//
// Architecture:
//
//	The engine is pure: it performs no I/O and keeps no per-request state.
//	The only shared data is the active Calibration, an immutable snapshot
//	swapped atomically. Each call to Evaluate loads the snapshot once, so an
//	evaluation never mixes parameters from two versions.
//
// Scoring:
//
//	Ten factor functions map request fields to bin scores (higher is lower
//	risk). The composite score is the plain sum of those bin scores. Weights
//	from the calibration are attached to each factor for reporting only.
//	The tier comes from a descending threshold ladder; any fired business
//	rule forces RED.
package scoring

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"leasing/risk-engine/internal/domain"
)

// Engine evaluates lease applications against the active calibration.
type Engine struct {
	cal    atomic.Pointer[Calibration]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for the age reference date and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCalibration sets the initial calibration. It is not validated; use
// Publish for untrusted input.
func WithCalibration(c *Calibration) Option {
	return func(e *Engine) { e.cal.Store(c.Clone()) }
}

// New creates an engine with the default calibration unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now, logger: slog.Default()}
	e.cal.Store(DefaultCalibration())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Calibration returns a copy of the active calibration.
func (e *Engine) Calibration() *Calibration {
	return e.cal.Load().Clone()
}

// Publish validates c and makes it the active calibration. Evaluations in
// flight finish with the snapshot they started with.
func (e *Engine) Publish(c *Calibration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.cal.Store(c.Clone())
	return nil
}

// Evaluate scores one request. The request must already be validated; the
// engine treats missing optional data as risk-relevant, not as an error.
func (e *Engine) Evaluate(req *domain.RiskEvaluationRequest) domain.RiskEvaluationResponse {
	start := e.now()
	cal := e.cal.Load()
	ref := domain.DateOf(start)

	profile := req.Customer.Profile()
	dscr := CalculateDSCR(profile, req.Contract)

	var (
		factors []domain.FactorResult
		weights map[string]float64
	)
	switch p := profile.(type) {
	case domain.Company:
		factors, weights = scoreB2B(req, p, dscr), cal.B2BWeights
	case domain.Individual:
		factors, weights = scoreB2C(req, p, dscr, ref), cal.B2CWeights
	}

	scores := make([]domain.FactorScore, len(factors))
	var sum float64
	for i, f := range factors {
		scores[i] = domain.FactorScore{
			FactorName:    f.FactorName,
			RawValue:      f.RawValue,
			BinLabel:      f.BinLabel,
			Weight:        weights[f.FactorName],
			RawScore:      f.RawScore,
			WeightedScore: f.RawScore,
		}
		sum += f.RawScore
	}
	total := round2(sum)

	tier := cal.tierFor(total)
	overrides := CheckBusinessRules(req, profile, dscr, ref)
	if len(overrides) > 0 {
		tier = domain.TierRed
	}

	resp := domain.RiskEvaluationResponse{
		RequestID:             req.RequestID,
		AssessmentID:          uuid.NewString(),
		ModelVersion:          cal.Version,
		TotalScore:            total,
		Tier:                  tier,
		Decision:              DecisionFor(tier),
		ProbabilityOfDefault:  cal.PD[tier],
		FactorScores:          scores,
		DSCR:                  dscr,
		BusinessRuleOverrides: overrides,
	}
	if req.ModelVersion != nil && *req.ModelVersion != "" {
		resp.ModelVersion = *req.ModelVersion
	}

	if profile.PartyType() != domain.PartyB2B {
		points, band := ComputeLegacyScore(req, dscr, ref)
		resp.LegacyScore = &points
		resp.LegacyBand = &band
	}

	end := e.now()
	resp.EvaluatedAt = end.UTC()
	resp.ProcessingTimeMs = end.Sub(start).Milliseconds()

	e.logger.Info("risk evaluation complete",
		"assessment_id", resp.AssessmentID,
		"request_id", resp.RequestID,
		"party_type", profile.PartyType(),
		"score", resp.TotalScore,
		"tier", resp.Tier,
		"decision", resp.Decision,
		"overrides", len(overrides),
		"elapsed_ms", resp.ProcessingTimeMs,
	)
	return resp
}
