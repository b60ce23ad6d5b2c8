// Package segments computes the quarterly population segment performance
// snapshot: observed default rates per scorecard bin, Weight of Evidence
// drift against the development sample, and tier population stability.
package segments

import (
	"maps"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"leasing/risk-engine/internal/domain"
)

const (
	// DefaultMinBinVolume is the smallest bin worth reporting.
	DefaultMinBinVolume = 20

	// DefaultWindowMonths is the observation window when none is given.
	DefaultWindowMonths = 12

	// WoEDriftThreshold flags a bin for recalibration review (nats).
	WoEDriftThreshold = 0.1

	// psiFloor replaces empty buckets so the log term stays finite.
	psiFloor = 0.001
)

// SegmentType is the granularity of a segment row.
type SegmentType string

const (
	SegmentFactorBin SegmentType = "FACTOR_BIN"
	SegmentOverall   SegmentType = "OVERALL"
)

// PSIStatus classifies a population stability index.
type PSIStatus string

const (
	PSIStable PSIStatus = "STABLE"
	PSIShift  PSIStatus = "SHIFT"
	PSIAlarm  PSIStatus = "ALARM"
)

// BaselineTierDistribution is the tier mix of the development sample.
var BaselineTierDistribution = map[domain.RiskTier]float64{
	domain.TierBrightGreen: 0.255,
	domain.TierGreen:       0.254,
	domain.TierYellow:      0.238,
	domain.TierRed:         0.150,
}

// BinStats is one bin as counted in the warehouse.
type BinStats struct {
	Label           string
	Contracts       int
	Defaults        int
	AvgContractSize *float64
}

// WoEKey identifies a development-sample bin.
type WoEKey struct {
	Factor string
	Bin    string
}

// Segment is one row of risk_engine.population_segment_performance.
type Segment struct {
	Type            SegmentType `json:"segment_type"`
	Key             string      `json:"segment_key"`
	FactorName      string      `json:"factor_name,omitempty"`
	BinLabel        string      `json:"bin_label"`
	Contracts       int         `json:"contract_count"`
	Defaults        int         `json:"default_count"`
	ObservedDR      float64     `json:"observed_default_rate"`
	ObservedWoE     *float64    `json:"observed_woe"`
	OriginalWoE     *float64    `json:"original_woe"`
	WoEDrift        *float64    `json:"woe_drift"`
	AvgContractSize *float64    `json:"avg_contract_size"`
}

// DriftBin is a bin whose WoE moved more than WoEDriftThreshold.
type DriftBin struct {
	Factor     string  `json:"factor"`
	Bin        string  `json:"bin"`
	Drift      float64 `json:"drift"`
	ObservedDR float64 `json:"observed_dr"`
}

// Result summarises one refresh run.
type Result struct {
	SnapshotDate     domain.Date                 `json:"snapshot_date"`
	WindowMonths     int                         `json:"window_months"`
	FactorsProcessed int                         `json:"factors_processed"`
	SegmentsWritten  int                         `json:"segments_written"`
	OverallDR        *float64                    `json:"overall_dr"`
	TierDistribution map[domain.RiskTier]float64 `json:"tier_distribution,omitempty"`
	PSIScore         *float64                    `json:"psi_score"`
	PSIStatus        *PSIStatus                  `json:"psi_status"`
	HighDriftBins    []DriftBin                  `json:"high_drift_bins"`
	ElapsedSeconds   float64                     `json:"elapsed_seconds"`
	Status           string                      `json:"status"`
	Errors           []string                    `json:"errors"`
}

// ComputeWoE returns ln(%defaults / %non-defaults) for a bin against its
// factor population, the sign convention of the development sample: bins
// safer than average are negative. ok is false when any cell is empty.
func ComputeWoE(defaults, total, popDefaults, popTotal int) (woe float64, ok bool) {
	good := total - defaults
	popGood := popTotal - popDefaults
	if defaults <= 0 || good <= 0 || popDefaults <= 0 || popGood <= 0 {
		return 0, false
	}
	distBad := float64(defaults) / float64(popDefaults)
	distGood := float64(good) / float64(popGood)
	return math.Log(distBad / distGood), true
}

// BuildFactorSegments turns one factor's bins into segment rows, computing
// WoE against the factor's own population. original may be nil.
func BuildFactorSegments(factor string, bins []BinStats, original map[WoEKey]float64) []Segment {
	var popTotal, popDefaults int
	for _, b := range bins {
		popTotal += b.Contracts
		popDefaults += b.Defaults
	}

	out := make([]Segment, 0, len(bins))
	for _, b := range bins {
		s := Segment{
			Type:            SegmentFactorBin,
			Key:             factor + ":" + b.Label,
			FactorName:      factor,
			BinLabel:        b.Label,
			Contracts:       b.Contracts,
			Defaults:        b.Defaults,
			ObservedDR:      defaultRate(b.Defaults, b.Contracts),
			AvgContractSize: b.AvgContractSize,
		}
		if woe, ok := ComputeWoE(b.Defaults, b.Contracts, popDefaults, popTotal); ok {
			s.ObservedWoE = &woe
		}
		if orig, ok := original[WoEKey{Factor: factor, Bin: b.Label}]; ok {
			s.OriginalWoE = &orig
			if s.ObservedWoE != nil {
				drift := *s.ObservedWoE - orig
				s.WoEDrift = &drift
			}
		}
		out = append(out, s)
	}
	return out
}

// HighDrift returns the segments whose absolute WoE drift exceeds
// WoEDriftThreshold.
func HighDrift(segments []Segment) []DriftBin {
	out := []DriftBin{}
	for _, s := range segments {
		if s.WoEDrift == nil || math.Abs(*s.WoEDrift) <= WoEDriftThreshold {
			continue
		}
		out = append(out, DriftBin{
			Factor:     s.FactorName,
			Bin:        s.BinLabel,
			Drift:      round(*s.WoEDrift, 4),
			ObservedDR: round(s.ObservedDR, 4),
		})
	}
	return out
}

// OverallSegment is the portfolio row, or nil for an empty window.
func OverallSegment(b BinStats) *Segment {
	if b.Contracts <= 0 {
		return nil
	}
	return &Segment{
		Type:            SegmentOverall,
		Key:             "OVERALL:portfolio",
		BinLabel:        "portfolio",
		Contracts:       b.Contracts,
		Defaults:        b.Defaults,
		ObservedDR:      defaultRate(b.Defaults, b.Contracts),
		AvgContractSize: b.AvgContractSize,
	}
}

// TierDistribution converts assessment counts per tier into shares rounded
// to four places. It returns nil when there are no assessments.
func TierDistribution(counts map[domain.RiskTier]int) map[domain.RiskTier]float64 {
	var total int
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	out := make(map[domain.RiskTier]float64, len(counts))
	for tier, n := range counts {
		out[tier] = round(float64(n)/float64(total), 4)
	}
	return out
}

// PSI compares actual tier shares with BaselineTierDistribution. Missing or
// empty buckets count as psiFloor.
func PSI(actual map[domain.RiskTier]float64) float64 {
	var psi float64
	for _, tier := range slices.Sorted(maps.Keys(BaselineTierDistribution)) {
		expected := max(BaselineTierDistribution[tier], psiFloor)
		a, ok := actual[tier]
		if !ok {
			a = psiFloor
		}
		a = max(a, psiFloor)
		psi += (a - expected) * math.Log(a/expected)
	}
	return round(psi, 4)
}

// ClassifyPSI maps a PSI score to its status band.
func ClassifyPSI(psi float64) PSIStatus {
	switch {
	case psi < 0.1:
		return PSIStable
	case psi < 0.25:
		return PSIShift
	default:
		return PSIAlarm
	}
}

func defaultRate(defaults, contracts int) float64 {
	if contracts <= 0 {
		return 0
	}
	return float64(defaults) / float64(contracts)
}

// round rounds half away from zero on the decimal representation, matching
// NUMERIC rounding in the warehouse.
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
