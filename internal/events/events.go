// Package events publishes assessment-completed notifications to downstream
// consumers. Publication is fire-and-forget: failures are logged and counted
// but never change the response already returned to the caller.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"leasing/risk-engine/internal/domain"
)

// TypeAssessmentCompleted is the event_type of every published event.
const TypeAssessmentCompleted = "RISK_ASSESSMENT_COMPLETED"

// Event is the payload sent to Kafka and webhooks.
type Event struct {
	EventType    string          `json:"event_type"`
	AssessmentID string          `json:"assessment_id"`
	RequestID    string          `json:"request_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	Tier         domain.RiskTier `json:"tier"`
	Decision     domain.Decision `json:"decision"`
	TotalScore   float64         `json:"total_score"`
	ModelVersion string          `json:"model_version"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
}

// NewEvent builds the completed event for an assessment.
func NewEvent(a *domain.Assessment) Event {
	r := a.Response
	return Event{
		EventType:    TypeAssessmentCompleted,
		AssessmentID: r.AssessmentID,
		RequestID:    r.RequestID,
		CustomerID:   a.Request.Customer.CustomerID,
		Tier:         r.Tier,
		Decision:     r.Decision,
		TotalScore:   r.TotalScore,
		ModelVersion: r.ModelVersion,
		EvaluatedAt:  r.EvaluatedAt,
	}
}

// Publisher delivers one event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FailureCounter is notified when a publication fails.
type FailureCounter interface {
	PublishFailed()
}

// Dispatcher runs publications in the background with a bounded timeout.
type Dispatcher struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
	onFail  FailureCounter
}

// NewDispatcher wraps pub. onFail may be nil.
func NewDispatcher(pub Publisher, timeout time.Duration, logger *slog.Logger, onFail FailureCounter) *Dispatcher {
	if pub == nil {
		pub = Nop{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pub: pub, timeout: timeout, logger: logger, onFail: onFail}
}

// PublishAsync sends e in a goroutine. The returned channel is closed once
// the attempt has finished.
func (d *Dispatcher) PublishAsync(e Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.pub.Publish(ctx, e); err != nil {
			d.logger.Warn("events: publish failed",
				"request_id", e.RequestID,
				"assessment_id", e.AssessmentID,
				"error", err,
			)
			if d.onFail != nil {
				d.onFail.PublishFailed()
			}
			return
		}
		d.logger.Debug("events: published", "request_id", e.RequestID, "tier", e.Tier)
	}()
	return done
}
