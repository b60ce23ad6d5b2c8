package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/scoring"
)

// DB is the subset of pgxpool.Pool used by the Postgres registry.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres keeps versions in risk_engine.model_version and the audit trail
// in risk_engine.calibration_audit_log.
type Postgres struct {
	db  DB
	now func() time.Time
}

// NewPostgres creates a registry backed by db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

const versionColumns = `version_id, COALESCE(description, ''), status, calibration,
       created_by, created_at, published_by, published_at`

const selectPublishedCalibration = `
SELECT calibration FROM risk_engine.model_version WHERE status = 'PUBLISHED'`

const insertVersion = `
INSERT INTO risk_engine.model_version (
    version_id, description, status, calibration, created_by, created_at
) VALUES ($1, $2, 'DRAFT', $3, $4, $5)
ON CONFLICT (version_id) DO NOTHING`

const insertAudit = `
INSERT INTO risk_engine.calibration_audit_log (
    version_id, action, field_name, old_value, new_value, changed_by, changed_at
) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)`

const archivePublished = `
UPDATE risk_engine.model_version SET status = 'ARCHIVED'
WHERE status = 'PUBLISHED' AND version_id <> $1
RETURNING version_id`

const markPublished = `
UPDATE risk_engine.model_version
SET status = 'PUBLISHED', published_by = $2, published_at = $3
WHERE version_id = $1`

// Create inserts a DRAFT version and its audit rows in one transaction.
func (p *Postgres) Create(ctx context.Context, cal *scoring.Calibration, description, by string) (*Version, error) {
	calJSON, err := json.Marshal(cal)
	if err != nil {
		return nil, eris.Wrap(err, "registry: marshal calibration")
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "registry: begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var published *scoring.Calibration
	var raw []byte
	switch err := tx.QueryRow(ctx, selectPublishedCalibration).Scan(&raw); {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "registry: load published calibration")
	default:
		published = new(scoring.Calibration)
		if err := json.Unmarshal(raw, published); err != nil {
			return nil, eris.Wrap(err, "registry: decode published calibration")
		}
	}

	now := p.now().UTC()
	tag, err := tx.Exec(ctx, insertVersion, cal.Version, description, calJSON, by, now)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: insert version %s", cal.Version)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDuplicateVersion
	}
	if err := writeAudit(ctx, tx, creationEntries(published, cal, by, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "registry: commit version")
	}

	return &Version{
		VersionID:   cal.Version,
		Description: description,
		Status:      StatusDraft,
		Calibration: cal.Clone(),
		CreatedBy:   by,
		CreatedAt:   now,
	}, nil
}

// Get loads one version.
func (p *Postgres) Get(ctx context.Context, versionID string) (*Version, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM risk_engine.model_version WHERE version_id = $1`,
		versionID,
	)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: get version %s", versionID)
	}
	return v, nil
}

// Published loads the active version.
func (p *Postgres) Published(ctx context.Context) (*Version, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM risk_engine.model_version WHERE status = 'PUBLISHED'`,
	)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: get published version")
	}
	return v, nil
}

// List returns every version, newest first.
func (p *Postgres) List(ctx context.Context) ([]*Version, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+versionColumns+` FROM risk_engine.model_version ORDER BY created_at DESC, version_id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "registry: list versions")
	}
	defer rows.Close()

	out := []*Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "registry: scan version")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "registry: read versions")
	}
	return out, nil
}

// Publish archives the active version and publishes versionID in one
// transaction.
func (p *Postgres) Publish(ctx context.Context, versionID, by string) (*Version, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "registry: begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	v, err := scanVersion(tx.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM risk_engine.model_version WHERE version_id = $1 FOR UPDATE`,
		versionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: lock version %s", versionID)
	}
	if v.Status == StatusPublished {
		return v, nil
	}

	archived, err := archive(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	if _, err := tx.Exec(ctx, markPublished, versionID, by, now); err != nil {
		return nil, eris.Wrapf(err, "registry: publish version %s", versionID)
	}

	entries := make([]AuditEntry, 0, len(archived)+1)
	for _, id := range archived {
		entries = append(entries, statusEntry(id, ActionArchived, StatusPublished, StatusArchived, by, now))
	}
	entries = append(entries, statusEntry(versionID, ActionPublished, v.Status, StatusPublished, by, now))
	if err := writeAudit(ctx, tx, entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "registry: commit publish")
	}

	v.Status = StatusPublished
	v.PublishedBy = &by
	v.PublishedAt = &now
	return v, nil
}

// ListAudit returns a version's audit entries, newest first.
func (p *Postgres) ListAudit(ctx context.Context, versionID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	rows, err := p.db.Query(ctx, `
SELECT id, version_id, action, COALESCE(field_name, ''), COALESCE(old_value, ''),
       COALESCE(new_value, ''), changed_by, changed_at
FROM risk_engine.calibration_audit_log
WHERE version_id = $1
ORDER BY changed_at DESC, id DESC
LIMIT $2`,
		versionID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: list audit for %s", versionID)
	}
	defer rows.Close()

	out := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &e.VersionID, &action, &e.FieldName, &e.OldValue, &e.NewValue, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "registry: scan audit entry")
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "registry: read audit entries")
	}
	return out, nil
}

func archive(ctx context.Context, tx pgx.Tx, keep string) ([]string, error) {
	rows, err := tx.Query(ctx, archivePublished, keep)
	if err != nil {
		return nil, eris.Wrap(err, "registry: archive published version")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "registry: scan archived version")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "registry: archive published version")
	}
	return ids, nil
}

func writeAudit(ctx context.Context, tx pgx.Tx, entries []AuditEntry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx, insertAudit,
			e.VersionID, string(e.Action), e.FieldName, e.OldValue, e.NewValue, e.ChangedBy, e.ChangedAt,
		); err != nil {
			return eris.Wrapf(err, "registry: write %s audit entry for %s", e.Action, e.VersionID)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVersion(row scannable) (*Version, error) {
	var v Version
	var status string
	var raw []byte
	if err := row.Scan(
		&v.VersionID, &v.Description, &status, &raw,
		&v.CreatedBy, &v.CreatedAt, &v.PublishedBy, &v.PublishedAt,
	); err != nil {
		return nil, err
	}
	v.Status = Status(status)
	v.Calibration = new(scoring.Calibration)
	if err := json.Unmarshal(raw, v.Calibration); err != nil {
		return nil, eris.Wrap(err, "decode calibration")
	}
	return &v, nil
}
