package dealers_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/domain"
)

var snapshotDate = domain.NewDate(2026, 3, 1)

func TestComputeTrend(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		previous *float64
		want     dealers.Trend
	}{
		{"no_history", 0.05, nil, dealers.TrendNew},
		{"improving", 0.05, domain.Ptr(0.08), dealers.TrendImproving},
		{"worsening", 0.12, domain.Ptr(0.05), dealers.TrendWorsening},
		{"stable_up", 0.06, domain.Ptr(0.05), dealers.TrendStable},
		{"stable_down", 0.04, domain.Ptr(0.05), dealers.TrendStable},
		{"unchanged", 0.05, domain.Ptr(0.05), dealers.TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dealers.ComputeTrend(tc.current, tc.previous))
		})
	}
}

func TestVolumeTier(t *testing.T) {
	cases := map[int]string{
		500: "PLATINUM", 200: "PLATINUM",
		199: "GOLD", 50: "GOLD",
		49: "SILVER", 20: "SILVER",
		19: "BRONZE", 5: "BRONZE",
	}
	for total, want := range cases {
		assert.Equal(t, want, dealers.Stats{TotalOriginated: total}.VolumeTier(), "total=%d", total)
	}
}

func TestIsWatchlist_StrictlyAboveThreshold(t *testing.T) {
	assert.False(t, dealers.Stats{CurrentDefaultRate: 0.20}.IsWatchlist())
	assert.True(t, dealers.Stats{CurrentDefaultRate: 0.2001}.IsWatchlist())
}

func TestActiveMonths(t *testing.T) {
	first := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	cases := []struct {
		name  string
		first *time.Time
		want  int
	}{
		{"unknown", nil, 0},
		{"same_day", first(2026, 3, 1), 0},
		{"future", first(2026, 4, 1), 0},
		{"31_days", first(2026, 1, 29), 1},
		{"29_days", first(2026, 1, 31), 0},
		{"730_days", first(2024, 3, 1), 23},
		{"3652_days", first(2016, 3, 1), 119},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dealers.Stats{FirstContractDate: tc.first}.ActiveMonths(snapshotDate))
		})
	}
}

func TestBuildSnapshots(t *testing.T) {
	stats := []dealers.Stats{
		{DealerID: "D-1", TotalOriginated: 250, CurrentDefaultRate: 0.03},
		{DealerID: "D-2", TotalOriginated: 30, CurrentDefaultRate: 0.25},
	}
	previous := map[string]float64{"D-1": 0.06, "D-9": 0.5}

	got := dealers.BuildSnapshots(stats, previous, snapshotDate)

	require.Len(t, got, 2)

	assert.Equal(t, snapshotDate, got[0].SnapshotDate)
	require.NotNil(t, got[0].PreviousDefaultRate)
	assert.Equal(t, 0.06, *got[0].PreviousDefaultRate)
	assert.Equal(t, dealers.TrendImproving, got[0].Trend)
	assert.Equal(t, "PLATINUM", got[0].VolumeTier)
	assert.False(t, got[0].IsWatchlist)
	assert.Nil(t, got[0].WatchlistReason)

	assert.Nil(t, got[1].PreviousDefaultRate)
	assert.Equal(t, dealers.TrendNew, got[1].Trend)
	assert.Equal(t, "SILVER", got[1].VolumeTier)
	assert.True(t, got[1].IsWatchlist)
	require.NotNil(t, got[1].WatchlistReason)
	assert.Equal(t, "Default rate 25.0% exceeds 20% threshold", *got[1].WatchlistReason)
}

func TestBuildSnapshots_Empty(t *testing.T) {
	assert.Empty(t, dealers.BuildSnapshots(nil, nil, snapshotDate))
}
