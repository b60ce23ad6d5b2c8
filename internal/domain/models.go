// Package domain contains all core types used across the risk engine.
// Keeping the request, response and enum types in one place makes the
// scoring policy easy to reason about and keeps the wire format in one file.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ─── Enumerations ─────────────────────────────────────────────────────────────

// PartyType identifies whether the applicant is an individual or a company.
type PartyType string

const (
	PartyB2C PartyType = "B2C"
	PartyB2B PartyType = "B2B"
)

// PermitType is the Swiss residence permit of a B2C applicant.
// An empty value means the permit was not provided.
type PermitType string

const (
	PermitB        PermitType = "B"
	PermitC        PermitType = "C"
	PermitL        PermitType = "L"
	PermitDiplomat PermitType = "Diplomat"
	PermitUnknown  PermitType = "Unknown"
)

// IncomeType describes the applicant's main source of income.
type IncomeType string

const (
	IncomeEmployed     IncomeType = "employed"
	IncomeSelfEmployed IncomeType = "self_employed"
	IncomeRetired      IncomeType = "retired"
	IncomeUnemployed   IncomeType = "unemployed"
	IncomeOther        IncomeType = "other"
)

// ZefixStatus is the company's status in the Swiss commercial register.
type ZefixStatus string

const (
	ZefixActive    ZefixStatus = "ACTIVE"
	ZefixDissolved ZefixStatus = "DISSOLVED"
	ZefixSuspended ZefixStatus = "SUSPENDED"
	ZefixNotFound  ZefixStatus = "NOT_FOUND"
	ZefixUnknown   ZefixStatus = "UNKNOWN"
)

// LegalForm is the Swiss legal form of a B2B applicant.
type LegalForm string

const (
	LegalFormAG          LegalForm = "AG"
	LegalFormGmbH        LegalForm = "GmbH"
	LegalFormKG          LegalForm = "KG"
	LegalFormEinzelfirma LegalForm = "Einzelfirma"
	LegalFormOther       LegalForm = "Other"
	LegalFormUnknown     LegalForm = "Unknown"
)

// IndustryRisk is the upstream NACE-derived industry risk class.
type IndustryRisk string

const (
	IndustryLow      IndustryRisk = "Low"
	IndustryMedium   IndustryRisk = "Medium"
	IndustryHigh     IndustryRisk = "High"
	IndustryCritical IndustryRisk = "Critical"
	IndustryUnknown  IndustryRisk = "Unknown"
)

// RiskTier is the discretised risk level assigned to an evaluation.
type RiskTier string

const (
	TierBrightGreen RiskTier = "BRIGHT_GREEN"
	TierGreen       RiskTier = "GREEN"
	TierYellow      RiskTier = "YELLOW"
	TierRed         RiskTier = "RED"
)

// Tiers lists every tier from best to worst.
var Tiers = []RiskTier{TierBrightGreen, TierGreen, TierYellow, TierRed}

// Decision is the approval outcome derived from the final tier.
type Decision string

const (
	DecisionAutoApprove     Decision = "AUTO_APPROVE"
	DecisionApproveStandard Decision = "APPROVE_STANDARD"
	DecisionManualReview    Decision = "MANUAL_REVIEW"
	DecisionDecline         Decision = "DECLINE"
)

// Decisions lists every decision from most to least favourable.
var Decisions = []Decision{DecisionAutoApprove, DecisionApproveStandard, DecisionManualReview, DecisionDecline}

// CalculationMethod records which DSCR path produced a result.
type CalculationMethod string

const (
	MethodB2CNetIncome CalculationMethod = "B2C_NET_INCOME"
	MethodB2BEBITDA    CalculationMethod = "B2B_EBITDA"
	MethodFallback     CalculationMethod = "FALLBACK"
)

// ─── Calendar date ────────────────────────────────────────────────────────────

// DateLayout is the wire format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component. It marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	d.Time = t
	return nil
}

// YearsSince returns the elapsed whole days between d and ref divided by
// 365.25, the convention used for applicant age.
func (d Date) YearsSince(ref Date) float64 {
	days := ref.Sub(d.Time).Hours() / 24
	return float64(int64(days)) / 365.25
}

// ─── Request ──────────────────────────────────────────────────────────────────

// RiskEvaluationRequest is the single synchronous payload sent by the
// origination workflow. It carries everything the engine needs; the engine
// performs no external lookups.
type RiskEvaluationRequest struct {
	RequestID    string   `json:"request_id"` // caller-supplied idempotency key
	Timestamp    string   `json:"timestamp"`  // ISO-8601
	Customer     Customer `json:"customer"`
	Vehicle      Vehicle  `json:"vehicle"`
	Contract     Contract `json:"contract"`
	Dealer       Dealer   `json:"dealer"`
	ModelVersion *string  `json:"model_version,omitempty"`
}

// Customer holds demographics, financials and bureau scores. PartyType
// decides which fields are meaningful; see Profile.
type Customer struct {
	CustomerID  string     `json:"customer_id"`
	DateOfBirth *Date      `json:"date_of_birth,omitempty"`
	PartyType   PartyType  `json:"party_type"`
	PermitType  PermitType `json:"permit_type,omitempty"`
	Nationality string     `json:"nationality,omitempty"`
	IncomeType  IncomeType `json:"income_type,omitempty"`

	// Monthly financials (CHF), B2C.
	MonthlyGrossIncome         *float64 `json:"monthly_gross_income,omitempty"`
	MonthlyNetIncome           *float64 `json:"monthly_net_income,omitempty"`
	MonthlyExistingObligations *float64 `json:"monthly_existing_obligations,omitempty"`
	MonthlyRent                *float64 `json:"monthly_rent,omitempty"`
	MonthlyInsurance           *float64 `json:"monthly_insurance,omitempty"`
	MonthlyAlimony             *float64 `json:"monthly_alimony,omitempty"`

	// Annual company financials (CHF), B2B.
	AnnualRevenue    *float64 `json:"annual_revenue,omitempty"`
	AnnualEBITDA     *float64 `json:"annual_ebitda,omitempty"`
	TotalDebtService *float64 `json:"total_debt_service,omitempty"`

	// Company register data, B2B.
	CompanyAgeYears *int         `json:"company_age_years,omitempty"`
	ZefixStatus     ZefixStatus  `json:"zefix_status,omitempty"`
	LegalForm       LegalForm    `json:"legal_form,omitempty"`
	IndustryRisk    IndustryRisk `json:"industry_risk,omitempty"`

	// Bureau scores, already fetched upstream.
	CRIFScore     *int  `json:"crif_score,omitempty"`   // 0-1000
	IntrumScore   *int  `json:"intrum_score,omitempty"` // 0-10
	ZEKHasEntries *bool `json:"zek_has_entries,omitempty"`
	ZEKEntryCount *int  `json:"zek_entry_count,omitempty"`
}

// Vehicle is the financed collateral.
type Vehicle struct {
	VehiclePrice     float64 `json:"vehicle_price"` // CHF incl. VAT, > 0
	VehicleType      string  `json:"vehicle_type,omitempty"`
	VehicleAgeMonths *int    `json:"vehicle_age_months,omitempty"`
	IsElectric       *bool   `json:"is_electric,omitempty"`
	EurotaxCode      string  `json:"eurotax_code,omitempty"`
}

// Contract holds the lease/financing terms.
type Contract struct {
	ContractID        string   `json:"contract_id"`
	FinancedAmount    float64  `json:"financed_amount"`
	DownpaymentAmount float64  `json:"downpayment_amount"`
	ResidualValue     *float64 `json:"residual_value,omitempty"`
	TermMonths        int      `json:"term_months"` // (0, 84]
	MonthlyPayment    float64  `json:"monthly_payment"`
	InterestRate      *float64 `json:"interest_rate,omitempty"`
	ProductType       string   `json:"product_type,omitempty"`
}

// Dealer is the originating partner, with statistics supplied by the
// nightly dealer metrics job.
type Dealer struct {
	DealerID           string   `json:"dealer_id"`
	DealerName         string   `json:"dealer_name,omitempty"`
	DealerDefaultRate  *float64 `json:"dealer_default_rate,omitempty"` // 0-1
	DealerActiveMonths *int     `json:"dealer_active_months,omitempty"`
	DealerVolumeTier   string   `json:"dealer_volume_tier,omitempty"`
}

// ─── Scoring results ──────────────────────────────────────────────────────────

// FactorResult is the output of a single factor function.
type FactorResult struct {
	FactorName string  `json:"factor_name"`
	RawValue   string  `json:"raw_value"`
	BinLabel   string  `json:"bin_label"`
	RawScore   float64 `json:"raw_score"`
}

// FactorScore is a FactorResult annotated with its configured weight.
// The weight is informational: WeightedScore always equals RawScore because
// the bin scores are pre-scaled to the intended weight.
type FactorScore struct {
	FactorName    string  `json:"factor_name"`
	RawValue      string  `json:"raw_value"`
	BinLabel      string  `json:"bin_label"`
	Weight        float64 `json:"weight"`
	RawScore      float64 `json:"raw_score"`
	WeightedScore float64 `json:"weighted_score"`
}

// DSCRResult is the debt-service-coverage breakdown. IsValid=false implies
// DSCRValue is nil.
type DSCRResult struct {
	DSCRValue               *float64          `json:"dscr_value"`
	MonthlyDisposableIncome *float64          `json:"monthly_disposable_income"`
	MonthlyPayment          float64           `json:"monthly_payment"`
	CalculationMethod       CalculationMethod `json:"calculation_method"`
	IsValid                 bool              `json:"is_valid"`
}

// BusinessRuleOverride is the evidence record of a fired hard rule.
type BusinessRuleOverride struct {
	RuleCode        string `json:"rule_code"`
	RuleDescription string `json:"rule_description"`
	TriggeredValue  string `json:"triggered_value"`
}

// RiskEvaluationResponse is returned synchronously to the caller.
type RiskEvaluationResponse struct {
	RequestID    string `json:"request_id"`
	AssessmentID string `json:"assessment_id"` // internal id for the audit trail
	ModelVersion string `json:"model_version"`

	TotalScore           float64  `json:"total_score"`
	Tier                 RiskTier `json:"tier"`
	Decision             Decision `json:"decision"`
	ProbabilityOfDefault float64  `json:"probability_of_default"`

	FactorScores          []FactorScore          `json:"factor_scores"`
	DSCR                  DSCRResult             `json:"dscr"`
	BusinessRuleOverrides []BusinessRuleOverride `json:"business_rule_overrides"`

	EvaluatedAt      time.Time `json:"evaluated_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`

	// Legacy A-E scorecard, B2C only.
	LegacyScore *int    `json:"legacy_score"`
	LegacyBand  *string `json:"legacy_band"`
}

// Assessment is the replay record kept by the audit store: the full request
// and the response returned for it.
type Assessment struct {
	Request  RiskEvaluationRequest  `json:"request"`
	Response RiskEvaluationResponse `json:"response"`
}
