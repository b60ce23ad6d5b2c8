package scoring

import (
	"fmt"

	"leasing/risk-engine/internal/domain"
)

// ─── Business rule overrides ──────────────────────────────────────────────────
//
// Hard policy checks that force RED regardless of the composite score. Every
// rule is evaluated; all that fire are reported, in catalogue order.

// Scope restricts a rule to one party type. An empty scope applies to both.
type Scope string

const (
	ScopeAll Scope = ""
	ScopeB2C Scope = "B2C"
	ScopeB2B Scope = "B2B"
)

// Rule describes a business rule in the catalogue.
type Rule struct {
	Code        string `json:"rule_code"`
	Description string `json:"rule_description"`
	AppliesTo   Scope  `json:"applies_to,omitempty"`
}

// ruleInput bundles what every check needs.
type ruleInput struct {
	req     *domain.RiskEvaluationRequest
	profile domain.Profile
	dscr    domain.DSCRResult
	ref     domain.Date
}

type businessRule struct {
	Rule
	check func(in ruleInput) (triggered string, fired bool)
}

var businessRules = []businessRule{
	{Rule{"BR-01", "Applicant is under 18", ScopeB2C}, ruleMinor},
	{Rule{"BR-02", "LTV exceeds 120% — extreme over-financing", ScopeAll}, ruleExtremeLTV},
	{Rule{"BR-03", "Negative DSCR — expenses exceed income", ScopeAll}, ruleNegativeDSCR},
	{Rule{"BR-04", "3+ negative ZEK entries", ScopeB2C}, ruleZEKEntries},
	{Rule{"BR-05", "CRIF score critically low (<150)", ScopeAll}, ruleCRIFCritical},
	{Rule{"BR-06", "No income data provided for B2C application", ScopeB2C}, ruleNoIncome},
	{Rule{"BR-B01", "Company is dissolved or suspended in Zefix register", ScopeB2B}, ruleZefixDissolved},
	{Rule{"BR-B02", "Company not found in Zefix commercial register", ScopeB2B}, ruleZefixNotFound},
	{Rule{"BR-B03", "Company less than 2 years old — insufficient track record", ScopeB2B}, ruleCompanyTooNew},
	{Rule{"BR-B04", "No EBITDA data provided for B2B application — cannot assess coverage", ScopeB2B}, ruleNoEBITDA},
	{Rule{"BR-07", "Dealer default rate exceeds 20% watchlist threshold", ScopeAll}, ruleDealerWatchlist},
	{Rule{"BR-08", "Contract term exceeds 72-month maximum", ScopeAll}, ruleMaxTerm},
}

// Rules returns the business rule catalogue in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(businessRules))
	for i, r := range businessRules {
		out[i] = r.Rule
	}
	return out
}

// CheckBusinessRules evaluates every rule and returns those that fired. The
// result is never nil.
func CheckBusinessRules(req *domain.RiskEvaluationRequest, p domain.Profile, dscr domain.DSCRResult, ref domain.Date) []domain.BusinessRuleOverride {
	in := ruleInput{req: req, profile: p, dscr: dscr, ref: ref}
	overrides := []domain.BusinessRuleOverride{}
	for _, r := range businessRules {
		if r.AppliesTo != ScopeAll && Scope(p.PartyType()) != r.AppliesTo {
			continue
		}
		if triggered, fired := r.check(in); fired {
			overrides = append(overrides, domain.BusinessRuleOverride{
				RuleCode:        r.Code,
				RuleDescription: r.Description,
				TriggeredValue:  triggered,
			})
		}
	}
	return overrides
}

// ─── B2C rules ────────────────────────────────────────────────────────────────

func ruleMinor(in ruleInput) (string, bool) {
	ind, ok := in.profile.(domain.Individual)
	if !ok || ind.DateOfBirth == nil {
		return "", false
	}
	age := ind.DateOfBirth.YearsSince(in.ref)
	return fmt.Sprintf("Age: %.1f", age), age < 18
}

func ruleZEKEntries(in ruleInput) (string, bool) {
	ind, ok := in.profile.(domain.Individual)
	if !ok || ind.ZEKHasEntries == nil || !*ind.ZEKHasEntries || ind.ZEKEntryCount == nil {
		return "", false
	}
	n := *ind.ZEKEntryCount
	return fmt.Sprintf("ZEK entries: %d", n), n >= 3
}

func ruleNoIncome(in ruleInput) (string, bool) {
	ind, ok := in.profile.(domain.Individual)
	if !ok || in.dscr.IsValid {
		return "", false
	}
	noIncome := ind.MonthlyNetIncome == nil || *ind.MonthlyNetIncome == 0
	return "Net income: None/0", noIncome
}

// ─── B2B rules ────────────────────────────────────────────────────────────────

func ruleZefixDissolved(in ruleInput) (string, bool) {
	c, ok := in.profile.(domain.Company)
	if !ok {
		return "", false
	}
	fired := c.ZefixStatus == domain.ZefixDissolved || c.ZefixStatus == domain.ZefixSuspended
	return fmt.Sprintf("ZefixStatus: %s", c.ZefixStatus), fired
}

func ruleZefixNotFound(in ruleInput) (string, bool) {
	c, ok := in.profile.(domain.Company)
	if !ok {
		return "", false
	}
	return "ZefixStatus: NOT_FOUND", c.ZefixStatus == domain.ZefixNotFound
}

func ruleCompanyTooNew(in ruleInput) (string, bool) {
	c, ok := in.profile.(domain.Company)
	if !ok || c.CompanyAgeYears == nil {
		return "", false
	}
	return fmt.Sprintf("CompanyAge: %dy", *c.CompanyAgeYears), *c.CompanyAgeYears < 2
}

func ruleNoEBITDA(in ruleInput) (string, bool) {
	c, ok := in.profile.(domain.Company)
	if !ok || in.dscr.IsValid {
		return "", false
	}
	return "annual_ebitda: None/0", c.AnnualEBITDA == nil || *c.AnnualEBITDA <= 0
}

// ─── Rules for both party types ───────────────────────────────────────────────

func ruleExtremeLTV(in ruleInput) (string, bool) {
	ltv, _ := ltvPercent(in.req.Contract.FinancedAmount, in.req.Vehicle.VehiclePrice)
	return fmt.Sprintf("LTV: %.1f%%", ltv), ltv > 120
}

func ruleNegativeDSCR(in ruleInput) (string, bool) {
	if in.dscr.DSCRValue == nil {
		return "", false
	}
	v := *in.dscr.DSCRValue
	return fmt.Sprintf("DSCR: %.2f", v), v < 0
}

func ruleCRIFCritical(in ruleInput) (string, bool) {
	crif := in.req.Customer.CRIFScore
	if crif == nil {
		return "", false
	}
	return fmt.Sprintf("CRIF: %d", *crif), *crif < 150
}

func ruleDealerWatchlist(in ruleInput) (string, bool) {
	rate := in.req.Dealer.DealerDefaultRate
	if rate == nil {
		return "", false
	}
	return fmt.Sprintf("Dealer DR: %.1f%%", *rate*100), *rate > 0.20
}

func ruleMaxTerm(in ruleInput) (string, bool) {
	term := in.req.Contract.TermMonths
	return fmt.Sprintf("Term: %dm", term), term > 72
}
