// Package registry keeps the version history of scoring calibrations and
// the audit trail of who created and published each one.
//
// A version is created as DRAFT, becomes PUBLISHED when it is activated and
// ARCHIVED when another version replaces it. At most one version is
// PUBLISHED at a time.
package registry

import (
	"context"
	"errors"
	"time"

	"leasing/risk-engine/internal/scoring"
)

// Status is the lifecycle state of a calibration version.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

// Action names an audit log entry.
type Action string

const (
	ActionCreated   Action = "CREATED"
	ActionUpdated   Action = "UPDATED"
	ActionPublished Action = "PUBLISHED"
	ActionArchived  Action = "ARCHIVED"
)

// DefaultAuditLimit caps ListAudit when the caller passes no limit.
const DefaultAuditLimit = 50

var (
	// ErrNotFound is returned for an unknown version_id, or by Published
	// when nothing has been published yet.
	ErrNotFound = errors.New("calibration version not found")

	// ErrDuplicateVersion is returned when a version_id is reused.
	ErrDuplicateVersion = errors.New("calibration version already exists")
)

// Version is a stored calibration snapshot. VersionID equals
// Calibration.Version.
type Version struct {
	VersionID   string               `json:"version_id"`
	Description string               `json:"description,omitempty"`
	Status      Status               `json:"status"`
	Calibration *scoring.Calibration `json:"calibration"`
	CreatedBy   string               `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	PublishedBy *string              `json:"published_by"`
	PublishedAt *time.Time           `json:"published_at"`
}

// AuditEntry is one row of the calibration audit log. Field-level UPDATED
// entries compare a new version with the version published when it was
// created.
type AuditEntry struct {
	ID        int64     `json:"id"`
	VersionID string    `json:"version_id"`
	Action    Action    `json:"action"`
	FieldName string    `json:"field_name,omitempty"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// Registry stores calibration versions and their audit trail.
type Registry interface {
	// Create stores cal as a new DRAFT version.
	Create(ctx context.Context, cal *scoring.Calibration, description, by string) (*Version, error)

	// Get returns one version, or ErrNotFound.
	Get(ctx context.Context, versionID string) (*Version, error)

	// List returns every version, newest first.
	List(ctx context.Context) ([]*Version, error)

	// Published returns the active version, or ErrNotFound.
	Published(ctx context.Context) (*Version, error)

	// Publish activates a version and archives the one it replaces.
	// Publishing the active version again changes nothing.
	Publish(ctx context.Context, versionID, by string) (*Version, error)

	// ListAudit returns up to limit audit entries for a version, newest
	// first. limit <= 0 means DefaultAuditLimit.
	ListAudit(ctx context.Context, versionID string, limit int) ([]AuditEntry, error)
}

// creationEntries builds the CREATED row plus one UPDATED row per field that
// differs from the published calibration. published may be nil.
func creationEntries(published, cal *scoring.Calibration, by string, at time.Time) []AuditEntry {
	entries := []AuditEntry{{
		VersionID: cal.Version,
		Action:    ActionCreated,
		ChangedBy: by,
		ChangedAt: at,
	}}
	if published == nil {
		return entries
	}
	for _, c := range scoring.Diff(published, cal) {
		if c.Field == "version" {
			continue
		}
		entries = append(entries, AuditEntry{
			VersionID: cal.Version,
			Action:    ActionUpdated,
			FieldName: c.Field,
			OldValue:  c.Old,
			NewValue:  c.New,
			ChangedBy: by,
			ChangedAt: at,
		})
	}
	return entries
}

func statusEntry(versionID string, action Action, from, to Status, by string, at time.Time) AuditEntry {
	return AuditEntry{
		VersionID: versionID,
		Action:    action,
		FieldName: "status",
		OldValue:  string(from),
		NewValue:  string(to),
		ChangedBy: by,
		ChangedAt: at,
	}
}
