// Package store persists risk assessments for the audit trail and for
// idempotent replay by request_id.
//
// Three backends share one contract: Memory for local runs and tests,
// Postgres for the audit table, and Redis for a TTL-bounded replay cache.
package store

import (
	"context"
	"errors"

	"leasing/risk-engine/internal/domain"
)

var (
	// ErrNotFound is returned when no assessment exists for a request_id.
	ErrNotFound = errors.New("assessment not found")

	// ErrDuplicateRequest is returned when an assessment for the same
	// request_id was saved first by someone else.
	ErrDuplicateRequest = errors.New("assessment already exists for request")
)

// Store reads and writes assessments keyed by the caller's request_id.
type Store interface {
	// Get returns the assessment saved for requestID, or ErrNotFound.
	Get(ctx context.Context, requestID string) (*domain.Assessment, error)

	// Save records a new assessment. Saving a request_id twice returns
	// ErrDuplicateRequest and leaves the first record untouched.
	Save(ctx context.Context, a *domain.Assessment) error
}
