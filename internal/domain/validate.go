package domain

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the accepted ISO-8601 forms of request.timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func validTimestamp(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ValidationError lists every problem with a request so the caller can fix
// them in one round trip.
type ValidationError []string

func (v *ValidationError) add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v ValidationError) Error() string {
	return strings.Join(v, "; ")
}

func (v *ValidationError) nonNegative(field string, p *float64) {
	if p != nil && *p < 0 {
		v.add("%s must be >= 0", field)
	}
}

func (v *ValidationError) nonNegativeInt(field string, p *int) {
	if p != nil && *p < 0 {
		v.add("%s must be >= 0", field)
	}
}

func (v *ValidationError) intRange(field string, p *int, lo, hi int) {
	if p != nil && (*p < lo || *p > hi) {
		v.add("%s must be between %d and %d", field, lo, hi)
	}
}

func oneOf[T ~string](v T, allowed ...T) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate enforces the request contract the engine relies on: positive
// amounts, a bounded term and known enum values. The error is a
// ValidationError.
func (req *RiskEvaluationRequest) Validate() error {
	var errs ValidationError

	if strings.TrimSpace(req.RequestID) == "" {
		errs.add("request_id is required")
	}
	if req.Timestamp == "" {
		errs.add("timestamp is required")
	} else if !validTimestamp(req.Timestamp) {
		errs.add("timestamp must be ISO-8601")
	}
	if req.ModelVersion != nil && strings.TrimSpace(*req.ModelVersion) == "" {
		errs.add("model_version must not be blank")
	}

	c := req.Customer
	if c.CustomerID == "" {
		errs.add("customer.customer_id is required")
	}
	switch c.PartyType {
	case PartyB2C:
		if c.DateOfBirth == nil {
			errs.add("customer.date_of_birth is required for B2C")
		}
	case PartyB2B:
	default:
		errs.add("customer.party_type must be B2C or B2B")
	}
	if c.PermitType != "" && !oneOf(c.PermitType,
		PermitB, PermitC, PermitL, PermitDiplomat, PermitUnknown) {
		errs.add("customer.permit_type %q is not supported", c.PermitType)
	}
	if c.IncomeType != "" && !oneOf(c.IncomeType,
		IncomeEmployed, IncomeSelfEmployed, IncomeRetired, IncomeUnemployed, IncomeOther) {
		errs.add("customer.income_type %q is not supported", c.IncomeType)
	}
	if c.ZefixStatus != "" && !oneOf(c.ZefixStatus,
		ZefixActive, ZefixDissolved, ZefixSuspended, ZefixNotFound, ZefixUnknown) {
		errs.add("customer.zefix_status %q is not supported", c.ZefixStatus)
	}
	if c.LegalForm != "" && !oneOf(c.LegalForm,
		LegalFormAG, LegalFormGmbH, LegalFormKG, LegalFormEinzelfirma, LegalFormOther, LegalFormUnknown) {
		errs.add("customer.legal_form %q is not supported", c.LegalForm)
	}
	if c.IndustryRisk != "" && !oneOf(c.IndustryRisk,
		IndustryLow, IndustryMedium, IndustryHigh, IndustryCritical, IndustryUnknown) {
		errs.add("customer.industry_risk %q is not supported", c.IndustryRisk)
	}
	errs.nonNegative("customer.monthly_gross_income", c.MonthlyGrossIncome)
	errs.nonNegative("customer.monthly_net_income", c.MonthlyNetIncome)
	errs.nonNegative("customer.monthly_existing_obligations", c.MonthlyExistingObligations)
	errs.nonNegative("customer.monthly_rent", c.MonthlyRent)
	errs.nonNegative("customer.monthly_insurance", c.MonthlyInsurance)
	errs.nonNegative("customer.monthly_alimony", c.MonthlyAlimony)
	errs.nonNegative("customer.annual_revenue", c.AnnualRevenue)
	errs.nonNegative("customer.annual_ebitda", c.AnnualEBITDA)
	errs.nonNegative("customer.total_debt_service", c.TotalDebtService)
	errs.nonNegativeInt("customer.company_age_years", c.CompanyAgeYears)
	errs.intRange("customer.crif_score", c.CRIFScore, 0, 1000)
	errs.intRange("customer.intrum_score", c.IntrumScore, 0, 10)
	errs.nonNegativeInt("customer.zek_entry_count", c.ZEKEntryCount)

	if req.Vehicle.VehiclePrice <= 0 {
		errs.add("vehicle.vehicle_price must be > 0")
	}
	errs.nonNegativeInt("vehicle.vehicle_age_months", req.Vehicle.VehicleAgeMonths)

	k := req.Contract
	if k.ContractID == "" {
		errs.add("contract.contract_id is required")
	}
	if k.FinancedAmount <= 0 {
		errs.add("contract.financed_amount must be > 0")
	}
	if k.DownpaymentAmount < 0 {
		errs.add("contract.downpayment_amount must be >= 0")
	}
	errs.nonNegative("contract.residual_value", k.ResidualValue)
	if k.TermMonths <= 0 || k.TermMonths > 84 {
		errs.add("contract.term_months must be between 1 and 84")
	}
	if k.MonthlyPayment <= 0 {
		errs.add("contract.monthly_payment must be > 0")
	}
	errs.nonNegative("contract.interest_rate", k.InterestRate)

	d := req.Dealer
	if d.DealerID == "" {
		errs.add("dealer.dealer_id is required")
	}
	if d.DealerDefaultRate != nil && (*d.DealerDefaultRate < 0 || *d.DealerDefaultRate > 1) {
		errs.add("dealer.dealer_default_rate must be between 0 and 1")
	}
	errs.nonNegativeInt("dealer.dealer_active_months", d.DealerActiveMonths)

	if len(errs) > 0 {
		return errs
	}
	return nil
}
