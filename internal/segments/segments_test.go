package segments_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/scoring"
	"leasing/risk-engine/internal/segments"
)

var snapshotDate = domain.NewDate(2026, 4, 1)

func TestComputeWoE(t *testing.T) {
	woe, ok := segments.ComputeWoE(10, 100, 50, 1000)
	require.True(t, ok)
	assert.InDelta(t, math.Log(0.2/(90.0/950.0)), woe, 1e-12)
	assert.Greater(t, woe, 0.0, "a bin riskier than its population has positive WoE")

	for name, args := range map[string][4]int{
		"no_defaults_in_bin":      {0, 100, 50, 1000},
		"all_defaults_in_bin":     {100, 100, 150, 1000},
		"no_population_defaults":  {0, 100, 0, 1000},
		"all_population_defaults": {10, 10, 1000, 1000},
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := segments.ComputeWoE(args[0], args[1], args[2], args[3])
			assert.False(t, ok)
		})
	}
}

func TestBuildFactorSegments(t *testing.T) {
	bins := []segments.BinStats{
		{Label: "<75%", Contracts: 100, Defaults: 2, AvgContractSize: domain.Ptr(31000.0)},
		{Label: ">95%", Contracts: 100, Defaults: 10},
		{Label: "MISSING", Contracts: 40, Defaults: 0},
	}
	original := map[segments.WoEKey]float64{
		{Factor: scoring.FactorLTV, Bin: "<75%"}:    -0.56,
		{Factor: scoring.FactorLTV, Bin: "MISSING"}: 0.1,
	}

	segs := segments.BuildFactorSegments(scoring.FactorLTV, bins, original)
	require.Len(t, segs, 3)

	low := segs[0]
	assert.Equal(t, segments.SegmentFactorBin, low.Type)
	assert.Equal(t, "LTV:<75%", low.Key)
	assert.Equal(t, 0.02, low.ObservedDR)
	assert.Equal(t, 31000.0, *low.AvgContractSize)
	require.NotNil(t, low.ObservedWoE)
	wantWoE := math.Log((2.0 / 12.0) / (98.0 / 228.0))
	assert.InDelta(t, wantWoE, *low.ObservedWoE, 1e-12)
	require.NotNil(t, low.WoEDrift)
	assert.InDelta(t, wantWoE+0.56, *low.WoEDrift, 1e-12)

	high := segs[1]
	assert.NotNil(t, high.ObservedWoE)
	assert.Nil(t, high.OriginalWoE, "no development-sample WoE for this bin")
	assert.Nil(t, high.WoEDrift)

	missing := segs[2]
	assert.Nil(t, missing.ObservedWoE, "a bin without defaults has no WoE")
	require.NotNil(t, missing.OriginalWoE)
	assert.Nil(t, missing.WoEDrift)
}

func TestHighDrift(t *testing.T) {
	segs := []segments.Segment{
		{FactorName: "LTV", BinLabel: "<75%", ObservedDR: 0.00005, WoEDrift: domain.Ptr(0.12345)},
		{FactorName: "LTV", BinLabel: "75-85%", WoEDrift: domain.Ptr(segments.WoEDriftThreshold)},
		{FactorName: "Age", BinLabel: "18-25", ObservedDR: 0.11, WoEDrift: domain.Ptr(-0.3)},
		{FactorName: "Age", BinLabel: "26-35"},
	}

	got := segments.HighDrift(segs)

	assert.Equal(t, []segments.DriftBin{
		{Factor: "LTV", Bin: "<75%", Drift: 0.1235, ObservedDR: 0.0001},
		{Factor: "Age", Bin: "18-25", Drift: -0.3, ObservedDR: 0.11},
	}, got)
	assert.NotNil(t, segments.HighDrift(nil), "an empty report is an empty list")
}

func TestOverallSegment(t *testing.T) {
	assert.Nil(t, segments.OverallSegment(segments.BinStats{}))

	s := segments.OverallSegment(segments.BinStats{Contracts: 1000, Defaults: 50})
	require.NotNil(t, s)
	assert.Equal(t, segments.SegmentOverall, s.Type)
	assert.Equal(t, "OVERALL:portfolio", s.Key)
	assert.Empty(t, s.FactorName)
	assert.Equal(t, 0.05, s.ObservedDR)
}

func TestTierDistribution(t *testing.T) {
	assert.Nil(t, segments.TierDistribution(nil))
	assert.Nil(t, segments.TierDistribution(map[domain.RiskTier]int{domain.TierRed: 0}))

	got := segments.TierDistribution(map[domain.RiskTier]int{
		domain.TierBrightGreen: 1,
		domain.TierGreen:       2,
		domain.TierRed:         1,
	})
	assert.Equal(t, map[domain.RiskTier]float64{
		domain.TierBrightGreen: 0.25,
		domain.TierGreen:       0.5,
		domain.TierRed:         0.25,
	}, got)
}

func TestPSI(t *testing.T) {
	assert.Equal(t, 0.0, segments.PSI(segments.BaselineTierDistribution))

	// RED is absent from the window and counts as the floor share.
	got := segments.PSI(map[domain.RiskTier]float64{
		domain.TierBrightGreen: 0.255,
		domain.TierGreen:       0.254,
		domain.TierYellow:      0.238,
	})
	assert.InDelta(t, 0.7466, got, 1e-9)
	assert.Equal(t, segments.PSIAlarm, segments.ClassifyPSI(got))
}

func TestClassifyPSI(t *testing.T) {
	for _, tc := range []struct {
		psi  float64
		want segments.PSIStatus
	}{
		{0, segments.PSIStable},
		{0.0999, segments.PSIStable},
		{0.1, segments.PSIShift},
		{0.2499, segments.PSIShift},
		{0.25, segments.PSIAlarm},
		{1.3, segments.PSIAlarm},
	} {
		assert.Equal(t, tc.want, segments.ClassifyPSI(tc.psi), "psi %v", tc.psi)
	}
}

func TestFactorQueries_CoverScoredFactors(t *testing.T) {
	var got []string
	for _, q := range segments.FactorQueries {
		got = append(got, q.Factor)
		assert.Contains(t, q.SQL, "HAVING COUNT(*) >= $3", q.Factor)
		assert.Contains(t, q.SQL, "make_interval(months => $2)", q.Factor)
	}
	assert.Equal(t, []string{
		scoring.FactorLTV, scoring.FactorTerm, scoring.FactorAge, scoring.FactorCRIF,
		scoring.FactorIntrum, scoring.FactorDSCR, scoring.FactorPermit,
		scoring.FactorVehiclePriceTier, scoring.FactorZEK, scoring.FactorDealerRisk,
	}, got)
}
