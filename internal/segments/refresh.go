package segments

import (
	"context"
	"encoding/json"
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

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// Refresher runs the segment performance job.
type Refresher struct {
	datahub      Querier
	db           DB
	minVolume    int
	modelVersion func() string
	logger       *slog.Logger
	now          func() time.Time
}

// NewRefresher creates a job reading contracts from datahub and writing
// segments to db. modelVersion names the calibration the monitoring
// snapshot is filed under.
func NewRefresher(datahub Querier, db DB, minVolume int, modelVersion func() string, logger *slog.Logger) *Refresher {
	if minVolume < 1 {
		minVolume = DefaultMinBinVolume
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		datahub:      datahub,
		db:           db,
		minVolume:    minVolume,
		modelVersion: modelVersion,
		logger:       logger,
		now:          time.Now,
	}
}

// Run computes the snapshot for date over the preceding windowMonths.
// A factor whose query fails or returns nothing is reported in
// Result.Errors and skipped; the rest of the run continues. Re-running the
// same date overwrites that day's rows.
func (r *Refresher) Run(ctx context.Context, date domain.Date, windowMonths int) (Result, error) {
	if windowMonths < 1 {
		windowMonths = DefaultWindowMonths
	}
	started := r.now()
	day := date.Format(domain.DateLayout)
	r.logger.Info("segment refresh started", "snapshot_date", day, "window_months", windowMonths)

	original, err := r.fetchOriginalWoE(ctx)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info("original woe loaded", "bins", len(original))

	res := Result{
		SnapshotDate:  date,
		WindowMonths:  windowMonths,
		HighDriftBins: []DriftBin{},
		Errors:        []string{},
	}

	var all []Segment
	for _, q := range FactorQueries {
		bins, err := r.fetchBins(ctx, q.SQL, date, windowMonths)
		if err != nil {
			r.logger.Warn("factor query failed", "factor", q.Factor, "error", err)
			res.Errors = append(res.Errors, "Query failed for factor: "+q.Factor)
			continue
		}
		if len(bins) == 0 {
			res.Errors = append(res.Errors, "No data returned for factor: "+q.Factor)
			continue
		}
		segs := BuildFactorSegments(q.Factor, bins, original)
		all = append(all, segs...)
		res.HighDriftBins = append(res.HighDriftBins, HighDrift(segs)...)
		res.FactorsProcessed++
		r.logger.Debug("factor processed", "factor", q.Factor, "bins", len(segs))
	}

	overall, err := r.fetchOverall(ctx, date, windowMonths)
	if err != nil {
		return Result{}, err
	}
	if overall != nil {
		all = append(all, *overall)
		dr := round(overall.ObservedDR, 4)
		res.OverallDR = &dr
	}

	counts, err := r.fetchTierCounts(ctx, date, windowMonths)
	if err != nil {
		return Result{}, err
	}
	if dist := TierDistribution(counts); dist != nil {
		psi := PSI(dist)
		status := ClassifyPSI(psi)
		res.TierDistribution = dist
		res.PSIScore = &psi
		res.PSIStatus = &status
	}

	written, err := r.write(ctx, date, windowMonths, all, overall, res)
	if err != nil {
		return Result{}, err
	}
	res.SegmentsWritten = written

	res.Status = StatusSuccess
	if len(res.Errors) > 0 {
		res.Status = StatusPartial
	}
	res.ElapsedSeconds = math.Round(r.now().Sub(started).Seconds()*100) / 100

	if len(res.HighDriftBins) > 0 {
		r.logger.Warn("high drift bins detected", "snapshot_date", day, "count", len(res.HighDriftBins))
	}
	r.logger.Info("segment refresh complete",
		"snapshot_date", day,
		"factors_processed", res.FactorsProcessed,
		"segments_written", res.SegmentsWritten,
		"status", res.Status,
		"elapsed_seconds", res.ElapsedSeconds,
	)
	return res, nil
}

func (r *Refresher) fetchOriginalWoE(ctx context.Context) (map[WoEKey]float64, error) {
	rows, err := r.db.Query(ctx, originalWoEQuery)
	if err != nil {
		return nil, eris.Wrap(err, "segments: query original woe")
	}
	defer rows.Close()

	out := make(map[WoEKey]float64)
	for rows.Next() {
		var k WoEKey
		var woe float64
		if err := rows.Scan(&k.Factor, &k.Bin, &woe); err != nil {
			return nil, eris.Wrap(err, "segments: scan original woe")
		}
		out[k] = woe
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "segments: read original woe")
	}
	return out, nil
}

func (r *Refresher) fetchBins(ctx context.Context, sql string, date domain.Date, windowMonths int) ([]BinStats, error) {
	rows, err := r.datahub.Query(ctx, sql, date.Time, windowMonths, r.minVolume)
	if err != nil {
		return nil, eris.Wrap(err, "segments: query datahub")
	}
	defer rows.Close()

	var out []BinStats
	for rows.Next() {
		var b BinStats
		if err := rows.Scan(&b.Label, &b.Contracts, &b.Defaults, &b.AvgContractSize); err != nil {
			return nil, eris.Wrap(err, "segments: scan bin")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "segments: read bins")
	}
	return out, nil
}

func (r *Refresher) fetchOverall(ctx context.Context, date domain.Date, windowMonths int) (*Segment, error) {
	rows, err := r.datahub.Query(ctx, overallQuery, date.Time, windowMonths)
	if err != nil {
		return nil, eris.Wrap(err, "segments: query portfolio totals")
	}
	defer rows.Close()

	var b BinStats
	if rows.Next() {
		if err := rows.Scan(&b.Contracts, &b.Defaults, &b.AvgContractSize); err != nil {
			return nil, eris.Wrap(err, "segments: scan portfolio totals")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "segments: read portfolio totals")
	}
	return OverallSegment(b), nil
}

func (r *Refresher) fetchTierCounts(ctx context.Context, date domain.Date, windowMonths int) (map[domain.RiskTier]int, error) {
	rows, err := r.db.Query(ctx, tierCountsQuery, date.Time, windowMonths)
	if err != nil {
		return nil, eris.Wrap(err, "segments: query tier counts")
	}
	defer rows.Close()

	out := make(map[domain.RiskTier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "segments: scan tier count")
		}
		out[domain.RiskTier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "segments: read tier counts")
	}
	return out, nil
}

func (r *Refresher) write(ctx context.Context, date domain.Date, windowMonths int, segs []Segment, overall *Segment, res Result) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "segments: begin transaction")
	}

	for _, s := range segs {
		_, err := tx.Exec(ctx, upsertSegment,
			date.Time, string(s.Type), s.Key,
			nullable(s.FactorName), s.BinLabel,
			s.Contracts, s.Defaults, round(s.ObservedDR, 6),
			roundPtr(s.ObservedWoE, 4), roundPtr(s.OriginalWoE, 4), roundPtr(s.WoEDrift, 4),
			roundPtr(s.AvgContractSize, 2), windowMonths,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, eris.Wrapf(err, "segments: upsert %s", s.Key)
		}
	}

	if overall != nil {
		if err := r.writeSnapshot(ctx, tx, date, windowMonths, overall, res); err != nil {
			_ = tx.Rollback(ctx)
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "segments: commit snapshot")
	}
	return len(segs), nil
}

func (r *Refresher) writeSnapshot(ctx context.Context, tx pgx.Tx, date domain.Date, windowMonths int, overall *Segment, res Result) error {
	var dist []byte
	if res.TierDistribution != nil {
		var err error
		if dist, err = json.Marshal(res.TierDistribution); err != nil {
			return eris.Wrap(err, "segments: marshal tier distribution")
		}
	}
	var psiStatus *string
	if res.PSIStatus != nil {
		s := string(*res.PSIStatus)
		psiStatus = &s
	}

	version := ""
	if r.modelVersion != nil {
		version = r.modelVersion()
	}
	if _, err := tx.Exec(ctx, upsertMonitoringSnapshot,
		date.Time, version,
		round(overall.ObservedDR, 4), res.PSIScore, psiStatus,
		overall.Contracts, overall.Defaults,
		windowMonths, dist,
	); err != nil {
		return eris.Wrap(err, "segments: upsert monitoring snapshot")
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	out := round(*v, places)
	return &out
}
