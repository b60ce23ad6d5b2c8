package dealers_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/domain"
)

var discard = slog.New(slog.DiscardHandler)

func newMocks(t *testing.T) (pgxmock.PgxPoolIface, pgxmock.PgxPoolIface) {
	t.Helper()
	datahub, err := pgxmock.NewPool()
	require.NoError(t, err)
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		datahub.Close()
		db.Close()
	})
	return datahub, db
}

var statsColumns = []string{
	"dealer_id", "dealer_name", "active_contracts", "total_originated",
	"default_count", "current_default_rate", "avg_contract_size", "first_contract_date",
}

func statsRows() *pgxmock.Rows {
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	name := "Garage Muster AG"
	return pgxmock.NewRows(statsColumns).
		AddRow("D-1", &name, 120, 240, 7, 0.0292, 41250.5, &first).
		AddRow("D-2", (*string)(nil), 10, 25, 6, 0.24, 28000.0, (*time.Time)(nil))
}

func TestRefresher_Run_WritesSnapshot(t *testing.T) {
	datahub, db := newMocks(t)

	datahub.ExpectQuery("FROM dwh.dim_contract").
		WithArgs(5).
		WillReturnRows(statsRows())
	db.ExpectQuery("SELECT DISTINCT ON \\(dealer_id\\)").
		WillReturnRows(pgxmock.NewRows([]string{"dealer_id", "current_default_rate"}).
			AddRow("D-1", 0.0612))
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO risk_engine.dealer_risk_metrics").
		WithArgs(
			"D-1", pgxmock.AnyArg(), snapshotDate.Time,
			120, 240, 7, 0.0292,
			domain.Ptr(0.0612), "IMPROVING",
			23, "PLATINUM", 41250.5,
			false, (*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("ON CONFLICT \\(dealer_id, snapshot_date\\) DO UPDATE").
		WithArgs(
			"D-2", pgxmock.AnyArg(), snapshotDate.Time,
			10, 25, 6, 0.24,
			(*float64)(nil), "NEW",
			0, "SILVER", 28000.0,
			true, domain.Ptr("Default rate 24.0% exceeds 20% threshold"),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectCommit()

	res, err := dealers.NewRefresher(datahub, db, 5, discard).Run(context.Background(), snapshotDate)

	require.NoError(t, err)
	assert.Equal(t, snapshotDate, res.SnapshotDate)
	assert.Equal(t, 2, res.DealersProcessed)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 1, res.WatchlistCount)
	assert.NoError(t, datahub.ExpectationsWereMet())
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_NoDealers_CommitsEmpty(t *testing.T) {
	datahub, db := newMocks(t)

	datahub.ExpectQuery("FROM dwh.dim_contract").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(statsColumns))
	db.ExpectQuery("SELECT DISTINCT ON").
		WillReturnRows(pgxmock.NewRows([]string{"dealer_id", "current_default_rate"}))
	db.ExpectBegin()
	db.ExpectCommit()

	res, err := dealers.NewRefresher(datahub, db, 10, discard).Run(context.Background(), snapshotDate)

	require.NoError(t, err)
	assert.Zero(t, res.DealersProcessed)
	assert.Zero(t, res.RowsWritten)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_DataHubError(t *testing.T) {
	datahub, db := newMocks(t)

	datahub.ExpectQuery("FROM dwh.dim_contract").
		WillReturnError(errors.New("connection refused"))

	_, err := dealers.NewRefresher(datahub, db, 5, discard).Run(context.Background(), snapshotDate)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dealers: query datahub")
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_UpsertError_RollsBack(t *testing.T) {
	datahub, db := newMocks(t)

	datahub.ExpectQuery("FROM dwh.dim_contract").WithArgs(5).WillReturnRows(statsRows())
	db.ExpectQuery("SELECT DISTINCT ON").
		WillReturnRows(pgxmock.NewRows([]string{"dealer_id", "current_default_rate"}))
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO risk_engine.dealer_risk_metrics").
		WillReturnError(errors.New("deadlock detected"))
	db.ExpectRollback()

	_, err := dealers.NewRefresher(datahub, db, 5, discard).Run(context.Background(), snapshotDate)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dealers: upsert D-1")
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestNewRefresher_DefaultsMinVolume(t *testing.T) {
	datahub, db := newMocks(t)

	datahub.ExpectQuery("FROM dwh.dim_contract").
		WithArgs(dealers.DefaultMinVolume).
		WillReturnError(errors.New("stop"))

	_, err := dealers.NewRefresher(datahub, db, 0, nil).Run(context.Background(), snapshotDate)

	require.Error(t, err)
	assert.NoError(t, datahub.ExpectationsWereMet())
}
