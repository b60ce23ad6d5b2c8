// Package dealers refreshes the nightly dealer risk snapshot. It reads
// per-dealer portfolio aggregates from the DataHub warehouse, derives trend,
// volume tier and watchlist flags, and upserts one row per dealer and
// snapshot date into risk_engine.dealer_risk_metrics.
//
// The scoring engine never reads that table; the origination workflow copies
// the dealer figures into each evaluation request.
package dealers

import (
	"fmt"
	"math"
	"time"

	"leasing/risk-engine/internal/domain"
)

const (
	// DefaultMinVolume is the smallest portfolio whose default rate is
	// considered meaningful.
	DefaultMinVolume = 5

	// WatchlistThreshold matches the BR-07 cut-off in the scoring rules.
	WatchlistThreshold = 0.20

	// trendBand is the default-rate move, in absolute terms, treated as noise.
	trendBand = 0.02

	daysPerMonth = 30.44
)

// Trend describes how a dealer's default rate moved since the last snapshot.
type Trend string

const (
	TrendNew       Trend = "NEW"
	TrendImproving Trend = "IMPROVING"
	TrendStable    Trend = "STABLE"
	TrendWorsening Trend = "WORSENING"
)

// Stats is one dealer's aggregate from the warehouse.
type Stats struct {
	DealerID           string
	DealerName         *string
	ActiveContracts    int
	TotalOriginated    int
	DefaultCount       int
	CurrentDefaultRate float64
	AvgContractSize    float64
	FirstContractDate  *time.Time
}

// ActiveMonths is the dealer's tenure at asOf, in whole average months.
func (s Stats) ActiveMonths(asOf domain.Date) int {
	if s.FirstContractDate == nil {
		return 0
	}
	days := math.Floor(asOf.Sub(domain.DateOf(*s.FirstContractDate).Time).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return int(days / daysPerMonth)
}

var volumeTiers = []struct {
	min  int
	tier string
}{
	{200, "PLATINUM"},
	{50, "GOLD"},
	{20, "SILVER"},
}

// VolumeTier buckets the dealer by total originated contracts.
func (s Stats) VolumeTier() string {
	for _, vt := range volumeTiers {
		if s.TotalOriginated >= vt.min {
			return vt.tier
		}
	}
	return "BRONZE"
}

// IsWatchlist reports whether the default rate exceeds the watchlist threshold.
func (s Stats) IsWatchlist() bool {
	return s.CurrentDefaultRate > WatchlistThreshold
}

// ComputeTrend compares the current rate to the previous snapshot.
func ComputeTrend(current float64, previous *float64) Trend {
	if previous == nil {
		return TrendNew
	}
	switch delta := current - *previous; {
	case delta < -trendBand:
		return TrendImproving
	case delta > trendBand:
		return TrendWorsening
	default:
		return TrendStable
	}
}

// Snapshot is one row of dealer_risk_metrics.
type Snapshot struct {
	Stats
	SnapshotDate        domain.Date
	PreviousDefaultRate *float64
	Trend               Trend
	ActiveMonths        int
	VolumeTier          string
	IsWatchlist         bool
	WatchlistReason     *string
}

// BuildSnapshots derives the snapshot rows for date from the warehouse stats
// and each dealer's previous rate.
func BuildSnapshots(stats []Stats, previous map[string]float64, date domain.Date) []Snapshot {
	out := make([]Snapshot, 0, len(stats))
	for _, s := range stats {
		var prev *float64
		if p, ok := previous[s.DealerID]; ok {
			prev = &p
		}
		snap := Snapshot{
			Stats:               s,
			SnapshotDate:        date,
			PreviousDefaultRate: prev,
			Trend:               ComputeTrend(s.CurrentDefaultRate, prev),
			ActiveMonths:        s.ActiveMonths(date),
			VolumeTier:          s.VolumeTier(),
			IsWatchlist:         s.IsWatchlist(),
		}
		if snap.IsWatchlist {
			reason := fmt.Sprintf("Default rate %.1f%% exceeds %.0f%% threshold",
				s.CurrentDefaultRate*100, WatchlistThreshold*100)
			snap.WatchlistReason = &reason
		}
		out = append(out, snap)
	}
	return out
}

// Result summarises one refresh run.
type Result struct {
	SnapshotDate     domain.Date `json:"snapshot_date"`
	DealersProcessed int         `json:"dealers_processed"`
	RowsWritten      int         `json:"rows_written"`
	WatchlistCount   int         `json:"watchlist_count"`
	ElapsedSeconds   float64     `json:"elapsed_seconds"`
}
