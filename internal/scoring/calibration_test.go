package scoring_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/scoring"
)

func TestDefaultCalibration_IsValid(t *testing.T) {
	c := scoring.DefaultCalibration()

	require.NoError(t, c.Validate())
	assert.Equal(t, "1.2", c.Version)
	assert.Len(t, c.B2CWeights, 10)
	assert.Len(t, c.B2BWeights, 10)
	assert.Equal(t, domain.DecisionDecline, c.Decisions[domain.TierRed])
}

func TestDefaultCalibration_B2BWeightsSumWithinTolerance(t *testing.T) {
	c := scoring.DefaultCalibration()

	var sum float64
	for _, w := range c.B2BWeights {
		sum += w
	}

	assert.InDelta(t, 1.05, sum, 1e-9)
	assert.NoError(t, c.Validate())
}

func TestDecisionFor_FixedMap(t *testing.T) {
	assert.Equal(t, domain.DecisionAutoApprove, scoring.DecisionFor(domain.TierBrightGreen))
	assert.Equal(t, domain.DecisionApproveStandard, scoring.DecisionFor(domain.TierGreen))
	assert.Equal(t, domain.DecisionManualReview, scoring.DecisionFor(domain.TierYellow))
	assert.Equal(t, domain.DecisionDecline, scoring.DecisionFor(domain.TierRed))
}

func TestCalibrationValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *scoring.Calibration)
		want   string
	}{
		{"empty_version", func(c *scoring.Calibration) { c.Version = " " }, "version is required"},
		{"weights_sum", func(c *scoring.Calibration) { c.B2BWeights[scoring.FactorDSCR] = 0.30 }, "b2b_weights must sum to 1.0"},
		{"negative_weight", func(c *scoring.Calibration) {
			c.B2CWeights[scoring.FactorLTV] = -0.05
			c.B2CWeights[scoring.FactorCRIF] = 0.35
		}, "b2c_weights: LTV must be >= 0"},
		{"missing_factor", func(c *scoring.Calibration) { delete(c.B2CWeights, scoring.FactorZEK) }, "b2c_weights: missing factor ZEK"},
		{"unknown_factor", func(c *scoring.Calibration) { c.B2CWeights["Shoe size"] = 0 }, "b2c_weights: unknown factor Shoe size"},
		{"ascending_thresholds", func(c *scoring.Calibration) {
			c.TierThresholds[1].MinScore = 30
		}, "tier_thresholds must be strictly descending"},
		{"unknown_tier", func(c *scoring.Calibration) { c.TierThresholds[0].Tier = "PURPLE" }, `unknown tier "PURPLE"`},
		{"no_thresholds", func(c *scoring.Calibration) { c.TierThresholds = nil }, "tier_thresholds must not be empty"},
		{"b2b_weights_beyond_tolerance", func(c *scoring.Calibration) { c.B2BWeights[scoring.FactorDSCR] = 0.21 }, "b2b_weights must sum to 1.0 ± 0.05, got 1.0600"},
		{"missing_decision", func(c *scoring.Calibration) { delete(c.Decisions, domain.TierYellow) }, "decisions: missing tier YELLOW"},
		{"red_auto_approve", func(c *scoring.Calibration) { c.Decisions[domain.TierRed] = domain.DecisionAutoApprove }, "decisions: RED must map to DECLINE, got AUTO_APPROVE"},
		{"unknown_decision", func(c *scoring.Calibration) { c.Decisions[domain.TierGreen] = "MAYBE" }, `decisions: GREEN has unknown decision "MAYBE"`},
		{"pd_out_of_range", func(c *scoring.Calibration) { c.PD[domain.TierRed] = 1.5 }, "probability_of_default: RED must be within [0, 1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := scoring.DefaultCalibration()
			tc.mutate(c)

			err := c.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "calibration validation failed")
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCalibrationClone_IsDeep(t *testing.T) {
	a := scoring.DefaultCalibration()
	b := a.Clone()

	b.B2CWeights[scoring.FactorLTV] = 0.9
	b.TierThresholds[0].MinScore = 99
	b.PD[domain.TierRed] = 0.5

	assert.Equal(t, 0.15, a.B2CWeights[scoring.FactorLTV])
	assert.Equal(t, 25.0, a.TierThresholds[0].MinScore)
	assert.Equal(t, 0.150, a.PD[domain.TierRed])
}

const calibrationYAML = `version: "1.3"
b2c_weights:
  LTV: 0.15
  Term: 0.10
  Age: 0.10
  CRIF: 0.15
  Intrum: 0.10
  DSCR: 0.15
  Permit: 0.10
  VehiclePriceTier: 0.05
  ZEK: 0.05
  DealerRisk: 0.05
b2b_weights:
  LTV: 0.15
  Term: 0.10
  CompanyAge: 0.10
  CRIF: 0.10
  DebtRatio: 0.10
  DSCR: 0.20
  CompanyType: 0.10
  VehiclePriceTier: 0.05
  IndustryRisk: 0.10
  DealerRisk: 0.05
tier_thresholds:
  - {min_score: 30, tier: BRIGHT_GREEN}
  - {min_score: 12, tier: GREEN}
  - {min_score: 0, tier: YELLOW}
decisions:
  BRIGHT_GREEN: AUTO_APPROVE
  GREEN: APPROVE_STANDARD
  YELLOW: MANUAL_REVIEW
  RED: DECLINE
probability_of_default:
  BRIGHT_GREEN: 0.012
  GREEN: 0.03
  YELLOW: 0.07
  RED: 0.16
`

func TestLoadCalibration_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(calibrationYAML), 0o600))

	c, err := scoring.LoadCalibration(path)

	require.NoError(t, err)
	assert.Equal(t, "1.3", c.Version)
	assert.Equal(t, 30.0, c.TierThresholds[0].MinScore)
	assert.Equal(t, domain.DecisionManualReview, c.Decisions[domain.TierYellow])
	assert.Equal(t, 0.16, c.PD[domain.TierRed])
}

func TestLoadCalibration_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0o600))

	_, err := scoring.LoadCalibration(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b2c_weights")
}

func TestLoadCalibration_MissingFile(t *testing.T) {
	_, err := scoring.LoadCalibration(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read calibration")
}

func TestDiff(t *testing.T) {
	a := scoring.DefaultCalibration()
	b := a.Clone()
	b.Version = "1.3"
	b.B2CWeights[scoring.FactorLTV] = 0.2
	b.TierThresholds[0].MinScore = 27.5
	b.PD[domain.TierRed] = 0.18

	got := scoring.Diff(a, b)

	assert.Equal(t, []scoring.Change{
		{Field: "version", Old: "1.2", New: "1.3"},
		{Field: "b2c_weights." + scoring.FactorLTV, Old: "0.15", New: "0.2"},
		{Field: "tier_thresholds[0].min_score", Old: "25", New: "27.5"},
		{Field: "probability_of_default.RED", Old: "0.15", New: "0.18"},
	}, got)
	assert.Empty(t, scoring.Diff(a, a.Clone()))
}

func TestDiff_ShortenedLadder(t *testing.T) {
	a := scoring.DefaultCalibration()
	b := a.Clone()
	b.TierThresholds = b.TierThresholds[:2]

	assert.Equal(t, []scoring.Change{
		{Field: "tier_thresholds[2].min_score", Old: "0", New: ""},
		{Field: "tier_thresholds[2].tier", Old: "YELLOW", New: ""},
	}, scoring.Diff(a, b))
}
