package scoring

import (
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"leasing/risk-engine/internal/domain"
)

// DefaultModelVersion is the version of the built-in calibration.
const DefaultModelVersion = "1.2"

// WeightSumTolerance is how far a weight table may sum from 1.0. The v1.2
// B2B table sums to 1.05; weights are reported only, never applied.
const WeightSumTolerance = 0.05

// tierDecisions is the tier→decision map. It is not calibratable: a
// calibration carries it for reporting and Validate rejects any other map.
var tierDecisions = map[domain.RiskTier]domain.Decision{
	domain.TierBrightGreen: domain.DecisionAutoApprove,
	domain.TierGreen:       domain.DecisionApproveStandard,
	domain.TierYellow:      domain.DecisionManualReview,
	domain.TierRed:         domain.DecisionDecline,
}

// DecisionFor returns the fixed decision for tier.
func DecisionFor(tier domain.RiskTier) domain.Decision {
	return tierDecisions[tier]
}

// B2CFactors and B2BFactors list the factor names of each set in reporting order.
var (
	B2CFactors = []string{
		FactorLTV, FactorTerm, FactorAge, FactorCRIF, FactorIntrum,
		FactorDSCR, FactorPermit, FactorVehiclePriceTier, FactorZEK, FactorDealerRisk,
	}
	B2BFactors = []string{
		FactorLTV, FactorTerm, FactorCompanyAge, FactorCRIF, FactorDebtRatio,
		FactorDSCR, FactorCompanyType, FactorVehiclePriceTier, FactorIndustryRisk, FactorDealerRisk,
	}
)

// TierThreshold maps a minimum composite score to a tier.
type TierThreshold struct {
	MinScore float64         `json:"min_score" yaml:"min_score"`
	Tier     domain.RiskTier `json:"tier" yaml:"tier"`
}

// Calibration is one immutable version of the scoring parameters: factor
// weights, the tier ladder, the tier→decision map and the PD estimates.
// Publishing a new version means building a new Calibration, never editing
// one in place.
//
// Weights are reported per factor but never multiplied into the composite
// score; the bin scores are already scaled to the intended weight.
type Calibration struct {
	Version        string                              `json:"version" yaml:"version"`
	B2CWeights     map[string]float64                  `json:"b2c_weights" yaml:"b2c_weights"`
	B2BWeights     map[string]float64                  `json:"b2b_weights" yaml:"b2b_weights"`
	TierThresholds []TierThreshold                     `json:"tier_thresholds" yaml:"tier_thresholds"`
	Decisions      map[domain.RiskTier]domain.Decision `json:"decisions" yaml:"decisions"`
	PD             map[domain.RiskTier]float64         `json:"probability_of_default" yaml:"probability_of_default"`
}

// DefaultCalibration returns the v1.2 calibration.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Version: DefaultModelVersion,
		B2CWeights: map[string]float64{
			FactorLTV:              0.15,
			FactorTerm:             0.10,
			FactorAge:              0.10,
			FactorCRIF:             0.15,
			FactorIntrum:           0.10,
			FactorDSCR:             0.15,
			FactorPermit:           0.10,
			FactorVehiclePriceTier: 0.05,
			FactorZEK:              0.05,
			FactorDealerRisk:       0.05,
		},
		B2BWeights: map[string]float64{
			FactorLTV:              0.15,
			FactorTerm:             0.10,
			FactorCompanyAge:       0.10,
			FactorCRIF:             0.10, // bureau data is less reliable for companies
			FactorDebtRatio:        0.10,
			FactorDSCR:             0.20, // EBITDA coverage is the primary B2B metric
			FactorCompanyType:      0.10,
			FactorVehiclePriceTier: 0.05,
			FactorIndustryRisk:     0.10,
			FactorDealerRisk:       0.05,
		},
		TierThresholds: []TierThreshold{
			{MinScore: 25, Tier: domain.TierBrightGreen},
			{MinScore: 10, Tier: domain.TierGreen},
			{MinScore: 0, Tier: domain.TierYellow},
		},
		// Through-the-cycle annualised PDs from the Feb 2026 backtest (90+ DPD).
		PD: map[domain.RiskTier]float64{
			domain.TierBrightGreen: 0.015,
			domain.TierGreen:       0.035,
			domain.TierYellow:      0.070,
			domain.TierRed:         0.150,
		},
		Decisions: maps.Clone(tierDecisions),
	}
}

// LoadCalibration reads a calibration from a YAML file and validates it.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: read calibration %s", path)
	}
	var c Calibration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "scoring: parse calibration %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Clone returns a deep copy.
func (c *Calibration) Clone() *Calibration {
	return &Calibration{
		Version:        c.Version,
		B2CWeights:     maps.Clone(c.B2CWeights),
		B2BWeights:     maps.Clone(c.B2BWeights),
		TierThresholds: slices.Clone(c.TierThresholds),
		Decisions:      maps.Clone(c.Decisions),
		PD:             maps.Clone(c.PD),
	}
}

// Validate checks that the calibration is internally consistent.
func (c *Calibration) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Version) == "" {
		errs = append(errs, "version is required")
	}
	errs = append(errs, validateWeights("b2c_weights", c.B2CWeights, B2CFactors)...)
	errs = append(errs, validateWeights("b2b_weights", c.B2BWeights, B2BFactors)...)

	if len(c.TierThresholds) == 0 {
		errs = append(errs, "tier_thresholds must not be empty")
	}
	for i, t := range c.TierThresholds {
		if !slices.Contains(domain.Tiers, t.Tier) {
			errs = append(errs, fmt.Sprintf("tier_thresholds[%d]: unknown tier %q", i, t.Tier))
		}
		if i > 0 && t.MinScore >= c.TierThresholds[i-1].MinScore {
			errs = append(errs, "tier_thresholds must be strictly descending")
		}
	}

	for _, tier := range domain.Tiers {
		switch d, ok := c.Decisions[tier]; {
		case !ok:
			errs = append(errs, fmt.Sprintf("decisions: missing tier %s", tier))
		case !slices.Contains(domain.Decisions, d):
			errs = append(errs, fmt.Sprintf("decisions: %s has unknown decision %q", tier, d))
		case d != tierDecisions[tier]:
			errs = append(errs, fmt.Sprintf("decisions: %s must map to %s, got %s", tier, tierDecisions[tier], d))
		}
		pd, ok := c.PD[tier]
		if !ok {
			errs = append(errs, fmt.Sprintf("probability_of_default: missing tier %s", tier))
		} else if pd < 0 || pd > 1 {
			errs = append(errs, fmt.Sprintf("probability_of_default: %s must be within [0, 1]", tier))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: calibration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWeights(field string, weights map[string]float64, factors []string) []string {
	var errs []string
	if len(weights) != len(factors) {
		errs = append(errs, fmt.Sprintf("%s must have exactly %d factors, got %d", field, len(factors), len(weights)))
	}
	var sum float64
	for _, name := range factors {
		w, ok := weights[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: missing factor %s", field, name))
			continue
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s: %s must be >= 0", field, name))
		}
		sum += w
	}
	for _, name := range slices.Sorted(maps.Keys(weights)) {
		if !slices.Contains(factors, name) {
			errs = append(errs, fmt.Sprintf("%s: unknown factor %s", field, name))
		}
	}
	if math.Abs(sum-1) > WeightSumTolerance+1e-9 {
		errs = append(errs, fmt.Sprintf("%s must sum to 1.0 ± %.2f, got %.4f", field, WeightSumTolerance, sum))
	}
	return errs
}

// tierFor scans the ladder in order; the first threshold the score reaches wins.
func (c *Calibration) tierFor(score float64) domain.RiskTier {
	for _, t := range c.TierThresholds {
		if score >= t.MinScore {
			return t.Tier
		}
	}
	return domain.TierRed
}

// Change is one field that differs between two calibrations.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Diff lists the fields that differ from a to b in a stable order. A field
// absent on one side is reported with an empty value.
func Diff(a, b *Calibration) []Change {
	var out []Change
	add := func(field, from, to string) {
		if from != to {
			out = append(out, Change{Field: field, Old: from, New: to})
		}
	}

	add("version", a.Version, b.Version)
	diffFloats := func(prefix string, x, y map[string]float64) {
		keys := slices.Collect(maps.Keys(x))
		for k := range y {
			if _, ok := x[k]; !ok {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			add(prefix+"."+k, floatAt(x, k), floatAt(y, k))
		}
	}
	diffFloats("b2c_weights", a.B2CWeights, b.B2CWeights)
	diffFloats("b2b_weights", a.B2BWeights, b.B2BWeights)

	for i := range max(len(a.TierThresholds), len(b.TierThresholds)) {
		var oldMin, newMin, oldTier, newTier string
		if i < len(a.TierThresholds) {
			oldMin = formatFloat(a.TierThresholds[i].MinScore)
			oldTier = string(a.TierThresholds[i].Tier)
		}
		if i < len(b.TierThresholds) {
			newMin = formatFloat(b.TierThresholds[i].MinScore)
			newTier = string(b.TierThresholds[i].Tier)
		}
		add(fmt.Sprintf("tier_thresholds[%d].min_score", i), oldMin, newMin)
		add(fmt.Sprintf("tier_thresholds[%d].tier", i), oldTier, newTier)
	}

	for _, tier := range domain.Tiers {
		add("decisions."+string(tier), string(a.Decisions[tier]), string(b.Decisions[tier]))
	}
	for _, tier := range domain.Tiers {
		var from, to string
		if v, ok := a.PD[tier]; ok {
			from = formatFloat(v)
		}
		if v, ok := b.PD[tier]; ok {
			to = formatFloat(v)
		}
		add("probability_of_default."+string(tier), from, to)
	}
	return out
}

func floatAt(m map[string]float64, k string) string {
	v, ok := m[k]
	if !ok {
		return ""
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
