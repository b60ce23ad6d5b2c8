package dealers

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/domain"
)

// Querier runs read queries. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DB is the risk engine database: reads plus transactional writes.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const statsQuery = `
SELECT
    dc.party_dealer_orig_key::text                                   AS dealer_id,
    NULL::text                                                       AS dealer_name,
    COUNT(*) FILTER (WHERE dc.close_dt IS NULL)                      AS active_contracts,
    COUNT(*)                                                         AS total_originated,
    COUNT(*) FILTER (WHERE dc.dpd >= 90 OR dc.wo_amt_ltd > 0)        AS default_count,
    COALESCE(ROUND(
        COUNT(*) FILTER (WHERE dc.dpd >= 90 OR dc.wo_amt_ltd > 0)::numeric
        / NULLIF(COUNT(*), 0), 4), 0)::float8                        AS current_default_rate,
    COALESCE(ROUND(AVG(dc.financed_amt), 2), 0)::float8              AS avg_contract_size,
    MIN(dc.activation_dt)                                            AS first_contract_date
FROM dwh.dim_contract dc
WHERE dc.current_flg = 1
  AND dc.party_dealer_orig_key IS NOT NULL
GROUP BY dc.party_dealer_orig_key
HAVING COUNT(*) >= $1
ORDER BY total_originated DESC`

const previousRatesQuery = `
SELECT DISTINCT ON (dealer_id) dealer_id, current_default_rate
FROM risk_engine.dealer_risk_metrics
ORDER BY dealer_id, snapshot_date DESC`

const upsertSnapshot = `
INSERT INTO risk_engine.dealer_risk_metrics (
    dealer_id, dealer_name, snapshot_date,
    active_contracts, total_originated,
    default_count, current_default_rate,
    previous_default_rate, default_rate_trend,
    active_months, volume_tier, avg_contract_size,
    is_watchlist, watchlist_reason,
    data_source, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'DATAHUB',NOW())
ON CONFLICT (dealer_id, snapshot_date) DO UPDATE SET
    active_contracts      = EXCLUDED.active_contracts,
    total_originated      = EXCLUDED.total_originated,
    default_count         = EXCLUDED.default_count,
    current_default_rate  = EXCLUDED.current_default_rate,
    previous_default_rate = EXCLUDED.previous_default_rate,
    default_rate_trend    = EXCLUDED.default_rate_trend,
    active_months         = EXCLUDED.active_months,
    is_watchlist          = EXCLUDED.is_watchlist,
    watchlist_reason      = EXCLUDED.watchlist_reason,
    volume_tier           = EXCLUDED.volume_tier`

// Refresher runs the dealer snapshot job.
type Refresher struct {
	datahub   Querier
	db        DB
	minVolume int
	logger    *slog.Logger
	now       func() time.Time
}

// NewRefresher creates a job reading from datahub and writing to db.
func NewRefresher(datahub Querier, db DB, minVolume int, logger *slog.Logger) *Refresher {
	if minVolume < 1 {
		minVolume = DefaultMinVolume
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{datahub: datahub, db: db, minVolume: minVolume, logger: logger, now: time.Now}
}

// Run refreshes the snapshot for date. Re-running the same date overwrites
// that day's rows.
func (r *Refresher) Run(ctx context.Context, date domain.Date) (Result, error) {
	started := r.now()
	r.logger.Info("dealer refresh started", "snapshot_date", date.Format(domain.DateLayout))

	stats, err := r.fetchStats(ctx)
	if err != nil {
		return Result{}, err
	}
	previous, err := r.fetchPreviousRates(ctx)
	if err != nil {
		return Result{}, err
	}

	snapshots := BuildSnapshots(stats, previous, date)
	written, err := r.write(ctx, snapshots)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		SnapshotDate:     date,
		DealersProcessed: len(stats),
		RowsWritten:      written,
		ElapsedSeconds:   math.Round(r.now().Sub(started).Seconds()*100) / 100,
	}
	for _, s := range snapshots {
		if s.IsWatchlist {
			res.WatchlistCount++
		}
	}
	r.logger.Info("dealer refresh complete",
		"snapshot_date", date.Format(domain.DateLayout),
		"dealers_processed", res.DealersProcessed,
		"rows_written", res.RowsWritten,
		"watchlist_count", res.WatchlistCount,
		"elapsed_seconds", res.ElapsedSeconds,
	)
	return res, nil
}

func (r *Refresher) fetchStats(ctx context.Context) ([]Stats, error) {
	rows, err := r.datahub.Query(ctx, statsQuery, r.minVolume)
	if err != nil {
		return nil, eris.Wrap(err, "dealers: query datahub")
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var s Stats
		if err := rows.Scan(
			&s.DealerID, &s.DealerName, &s.ActiveContracts, &s.TotalOriginated,
			&s.DefaultCount, &s.CurrentDefaultRate, &s.AvgContractSize, &s.FirstContractDate,
		); err != nil {
			return nil, eris.Wrap(err, "dealers: scan datahub row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dealers: read datahub rows")
	}
	r.logger.Info("datahub query complete", "dealer_count", len(out))
	return out, nil
}

func (r *Refresher) fetchPreviousRates(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.Query(ctx, previousRatesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "dealers: query previous rates")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var rate float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, eris.Wrap(err, "dealers: scan previous rate")
		}
		out[id] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dealers: read previous rates")
	}
	return out, nil
}

func (r *Refresher) write(ctx context.Context, snapshots []Snapshot) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "dealers: begin transaction")
	}

	for _, s := range snapshots {
		_, err := tx.Exec(ctx, upsertSnapshot,
			s.DealerID, s.DealerName, s.SnapshotDate.Time,
			s.ActiveContracts, s.TotalOriginated,
			s.DefaultCount, s.CurrentDefaultRate,
			s.PreviousDefaultRate, string(s.Trend),
			s.ActiveMonths, s.VolumeTier, s.AvgContractSize,
			s.IsWatchlist, s.WatchlistReason,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, eris.Wrapf(err, "dealers: upsert %s", s.DealerID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "dealers: commit snapshot")
	}
	return len(snapshots), nil
}
