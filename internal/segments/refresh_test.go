package segments_test

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/scoring"
	"leasing/risk-engine/internal/segments"
)

var discard = slog.New(slog.DiscardHandler)

var binColumns = []string{"bin_label", "contract_count", "default_count", "avg_contract_size"}

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

func modelVersion() string { return "1.2" }

func expectOriginalWoE(db pgxmock.PgxPoolIface) {
	db.ExpectQuery("FROM risk_engine.woe_scorecard_params").
		WillReturnRows(pgxmock.NewRows([]string{"factor_name", "bin_label", "woe_value"}).
			AddRow("LTV", "<75%", -0.56).
			AddRow("LTV", ">95%", 0.28))
}

// expectFactors answers every factor query: LTV from ltv, Term with an
// error when termErr is set, the rest with no rows.
func expectFactors(datahub pgxmock.PgxPoolIface, ltv *pgxmock.Rows, termErr error) {
	for _, q := range segments.FactorQueries {
		e := datahub.ExpectQuery(regexp.QuoteMeta(q.SQL)).WithArgs(snapshotDate.Time, 12, 20)
		switch {
		case q.Factor == scoring.FactorLTV && ltv != nil:
			e.WillReturnRows(ltv)
		case q.Factor == scoring.FactorTerm && termErr != nil:
			e.WillReturnError(termErr)
		default:
			e.WillReturnRows(pgxmock.NewRows(binColumns))
		}
	}
}

func ltvRows() *pgxmock.Rows {
	return pgxmock.NewRows(binColumns).
		AddRow("<75%", 100, 2, domain.Ptr(31000.0)).
		AddRow(">95%", 100, 10, (*float64)(nil))
}

func TestRefresher_Run_WritesSegmentsAndSnapshot(t *testing.T) {
	datahub, db := newMocks(t)

	expectOriginalWoE(db)
	expectFactors(datahub, ltvRows(), errors.New(`relation "ods.contracts_sst" does not exist`))
	datahub.ExpectQuery("FROM dwh.dim_contract dc").
		WithArgs(snapshotDate.Time, 12).
		WillReturnRows(pgxmock.NewRows([]string{"contract_count", "default_count", "avg_contract_size"}).
			AddRow(1000, 50, domain.Ptr(32000.0)))
	db.ExpectQuery("FROM risk_engine.risk_assessment").
		WithArgs(snapshotDate.Time, 12).
		WillReturnRows(pgxmock.NewRows([]string{"tier", "count"}).
			AddRow("BRIGHT_GREEN", 255).
			AddRow("GREEN", 254).
			AddRow("YELLOW", 238).
			AddRow("RED", 150))
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO risk_engine.population_segment_performance").
		WithArgs(
			snapshotDate.Time, "FACTOR_BIN", "LTV:<75%",
			domain.Ptr("LTV"), "<75%",
			100, 2, 0.02,
			domain.Ptr(-1.1403), domain.Ptr(-0.56), domain.Ptr(-0.5803),
			domain.Ptr(31000.0), 12,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("ON CONFLICT \\(snapshot_date, segment_key\\) DO UPDATE").
		WithArgs(
			snapshotDate.Time, "FACTOR_BIN", "LTV:>95%",
			domain.Ptr("LTV"), ">95%",
			100, 10, 0.1,
			pgxmock.AnyArg(), domain.Ptr(0.28), pgxmock.AnyArg(),
			(*float64)(nil), 12,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("INSERT INTO risk_engine.population_segment_performance").
		WithArgs(
			snapshotDate.Time, "OVERALL", "OVERALL:portfolio",
			(*string)(nil), "portfolio",
			1000, 50, 0.05,
			(*float64)(nil), (*float64)(nil), (*float64)(nil),
			domain.Ptr(32000.0), 12,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("INSERT INTO risk_engine.model_monitoring_snapshot").
		WithArgs(
			snapshotDate.Time, "1.2",
			0.05, pgxmock.AnyArg(), domain.Ptr("STABLE"),
			1000, 50,
			12, pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectCommit()

	res, err := segments.NewRefresher(datahub, db, 20, modelVersion, discard).Run(context.Background(), snapshotDate, 12)

	require.NoError(t, err)
	assert.Equal(t, snapshotDate, res.SnapshotDate)
	assert.Equal(t, 12, res.WindowMonths)
	assert.Equal(t, 1, res.FactorsProcessed)
	assert.Equal(t, 3, res.SegmentsWritten)
	require.NotNil(t, res.OverallDR)
	assert.Equal(t, 0.05, *res.OverallDR)
	require.NotNil(t, res.PSIScore)
	assert.Less(t, *res.PSIScore, 0.1)
	assert.Equal(t, segments.PSIStable, *res.PSIStatus)
	assert.Equal(t, segments.StatusPartial, res.Status)
	assert.Len(t, res.HighDriftBins, 2)
	assert.Equal(t, segments.DriftBin{Factor: "LTV", Bin: "<75%", Drift: -0.5803, ObservedDR: 0.02}, res.HighDriftBins[0])
	assert.Contains(t, res.Errors, "Query failed for factor: Term")
	assert.Contains(t, res.Errors, "No data returned for factor: DealerRisk")
	assert.Len(t, res.Errors, len(segments.FactorQueries)-1)
	assert.NoError(t, datahub.ExpectationsWereMet())
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_EmptyWindow(t *testing.T) {
	datahub, db := newMocks(t)

	expectOriginalWoE(db)
	expectFactors(datahub, nil, nil)
	datahub.ExpectQuery("FROM dwh.dim_contract dc").
		WithArgs(snapshotDate.Time, 12).
		WillReturnRows(pgxmock.NewRows([]string{"contract_count", "default_count", "avg_contract_size"}).
			AddRow(0, 0, (*float64)(nil)))
	db.ExpectQuery("FROM risk_engine.risk_assessment").
		WillReturnRows(pgxmock.NewRows([]string{"tier", "count"}))
	db.ExpectBegin()
	db.ExpectCommit()

	res, err := segments.NewRefresher(datahub, db, 0, modelVersion, discard).Run(context.Background(), snapshotDate, 0)

	require.NoError(t, err)
	assert.Equal(t, segments.DefaultWindowMonths, res.WindowMonths)
	assert.Zero(t, res.SegmentsWritten)
	assert.Nil(t, res.OverallDR)
	assert.Nil(t, res.PSIScore)
	assert.Nil(t, res.PSIStatus)
	assert.Empty(t, res.HighDriftBins)
	assert.Len(t, res.Errors, len(segments.FactorQueries))
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_UpsertFailureRollsBack(t *testing.T) {
	datahub, db := newMocks(t)

	expectOriginalWoE(db)
	expectFactors(datahub, ltvRows(), nil)
	datahub.ExpectQuery("FROM dwh.dim_contract dc").
		WillReturnRows(pgxmock.NewRows([]string{"contract_count", "default_count", "avg_contract_size"}).
			AddRow(1000, 50, (*float64)(nil)))
	db.ExpectQuery("FROM risk_engine.risk_assessment").
		WillReturnRows(pgxmock.NewRows([]string{"tier", "count"}))
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO risk_engine.population_segment_performance").
		WillReturnError(errors.New("disk full"))
	db.ExpectRollback()

	_, err := segments.NewRefresher(datahub, db, 20, modelVersion, discard).Run(context.Background(), snapshotDate, 12)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "segments: upsert LTV:<75%")
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefresher_Run_OriginalWoEFailure(t *testing.T) {
	datahub, db := newMocks(t)

	db.ExpectQuery("FROM risk_engine.woe_scorecard_params").
		WillReturnError(errors.New("connection refused"))

	_, err := segments.NewRefresher(datahub, db, 20, modelVersion, discard).Run(context.Background(), snapshotDate, 12)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "segments: query original woe")
	assert.NoError(t, datahub.ExpectationsWereMet())
}
