package registry_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/registry"
)

var versionCols = []string{
	"version_id", "description", "status", "calibration",
	"created_by", "created_at", "published_by", "published_at",
}

var createdAt = time.Date(2026, 2, 26, 9, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func calibrationJSON(t *testing.T, version string) []byte {
	t.Helper()
	raw, err := json.Marshal(calibration(version))
	require.NoError(t, err)
	return raw
}

func TestPostgres_Create_WritesVersionAndAudit(t *testing.T) {
	mock := newMock(t)
	next := calibration("1.3")
	next.PD[domain.TierRed] = 0.18

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT calibration FROM risk_engine.model_version WHERE status = 'PUBLISHED'").
		WillReturnRows(pgxmock.NewRows([]string{"calibration"}).AddRow(calibrationJSON(t, "1.2")))
	mock.ExpectExec("INSERT INTO risk_engine.model_version").
		WithArgs("1.3", "PD refresh", pgxmock.AnyArg(), "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO risk_engine.calibration_audit_log").
		WithArgs("1.3", "CREATED", "", "", "", "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO risk_engine.calibration_audit_log").
		WithArgs("1.3", "UPDATED", "probability_of_default.RED", "0.15", "0.18", "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	v, err := registry.NewPostgres(mock).Create(ctx, next, "PD refresh", "alice")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusDraft, v.Status)
	assert.Equal(t, "1.3", v.VersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Create_Duplicate(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT calibration FROM risk_engine.model_version").
		WillReturnRows(pgxmock.NewRows([]string{"calibration"}))
	mock.ExpectExec("ON CONFLICT \\(version_id\\) DO NOTHING").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	_, err := registry.NewPostgres(mock).Create(ctx, calibration("1.2"), "", "alice")
	assert.ErrorIs(t, err, registry.ErrDuplicateVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	mock := newMock(t)
	by := "alice"
	at := createdAt.Add(time.Hour)

	mock.ExpectQuery("FROM risk_engine.model_version WHERE version_id = \\$1").
		WithArgs("1.2").
		WillReturnRows(pgxmock.NewRows(versionCols).
			AddRow("1.2", "boot", "PUBLISHED", calibrationJSON(t, "1.2"), "system", createdAt, &by, &at))

	v, err := registry.NewPostgres(mock).Get(ctx, "1.2")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusPublished, v.Status)
	assert.Equal(t, "1.2", v.Calibration.Version)
	require.NotNil(t, v.PublishedAt)
	assert.True(t, at.Equal(*v.PublishedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM risk_engine.model_version").
		WithArgs("9.9").
		WillReturnRows(pgxmock.NewRows(versionCols))

	_, err := registry.NewPostgres(mock).Get(ctx, "9.9")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestPostgres_List(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("ORDER BY created_at DESC").
		WillReturnRows(pgxmock.NewRows(versionCols).
			AddRow("1.3", "", "DRAFT", calibrationJSON(t, "1.3"), "bob", createdAt.Add(time.Hour), (*string)(nil), (*time.Time)(nil)).
			AddRow("1.2", "", "ARCHIVED", calibrationJSON(t, "1.2"), "system", createdAt, (*string)(nil), (*time.Time)(nil)))

	list, err := registry.NewPostgres(mock).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1.3", list[0].VersionID)
	assert.Nil(t, list[0].PublishedBy)
	assert.Equal(t, registry.StatusArchived, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Publish_ArchivesAndAudits(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("1.3").
		WillReturnRows(pgxmock.NewRows(versionCols).
			AddRow("1.3", "", "DRAFT", calibrationJSON(t, "1.3"), "bob", createdAt, (*string)(nil), (*time.Time)(nil)))
	mock.ExpectQuery("UPDATE risk_engine.model_version SET status = 'ARCHIVED'").
		WithArgs("1.3").
		WillReturnRows(pgxmock.NewRows([]string{"version_id"}).AddRow("1.2"))
	mock.ExpectExec("SET status = 'PUBLISHED'").
		WithArgs("1.3", "carol", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO risk_engine.calibration_audit_log").
		WithArgs("1.2", "ARCHIVED", "status", "PUBLISHED", "ARCHIVED", "carol", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO risk_engine.calibration_audit_log").
		WithArgs("1.3", "PUBLISHED", "status", "DRAFT", "PUBLISHED", "carol", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	v, err := registry.NewPostgres(mock).Publish(ctx, "1.3", "carol")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusPublished, v.Status)
	assert.Equal(t, "carol", *v.PublishedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Publish_AuditFailureRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("1.3").
		WillReturnRows(pgxmock.NewRows(versionCols).
			AddRow("1.3", "", "DRAFT", calibrationJSON(t, "1.3"), "bob", createdAt, (*string)(nil), (*time.Time)(nil)))
	mock.ExpectQuery("SET status = 'ARCHIVED'").
		WithArgs("1.3").
		WillReturnRows(pgxmock.NewRows([]string{"version_id"}))
	mock.ExpectExec("SET status = 'PUBLISHED'").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO risk_engine.calibration_audit_log").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := registry.NewPostgres(mock).Publish(ctx, "1.3", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write PUBLISHED audit entry for 1.3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Publish_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("9.9").
		WillReturnRows(pgxmock.NewRows(versionCols))
	mock.ExpectRollback()

	_, err := registry.NewPostgres(mock).Publish(ctx, "9.9", "carol")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListAudit_DefaultLimit(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM risk_engine.calibration_audit_log").
		WithArgs("1.3", registry.DefaultAuditLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "version_id", "action", "field_name", "old_value", "new_value", "changed_by", "changed_at",
		}).
			AddRow(int64(7), "1.3", "PUBLISHED", "status", "DRAFT", "PUBLISHED", "carol", createdAt.Add(time.Hour)).
			AddRow(int64(5), "1.3", "CREATED", "", "", "", "bob", createdAt))

	audit, err := registry.NewPostgres(mock).ListAudit(ctx, "1.3", 0)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, registry.ActionPublished, audit[0].Action)
	assert.Equal(t, int64(5), audit[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
