package scoring

import (
	"fmt"
	"strings"

	"leasing/risk-engine/internal/domain"
)

// ─── B2B factors ──────────────────────────────────────────────────────────────
//
// B2B replaces Age, Intrum, Permit and ZEK with company equivalents and uses
// its own DSCR scale. LTV, Term, CRIF, VehiclePriceTier and DealerRisk are the
// B2C functions unchanged.

// ScoreCompanyAge bins years since founding in the commercial register.
func ScoreCompanyAge(years *int) domain.FactorResult {
	if years == nil {
		return result(FactorCompanyAge, "N/A", binMissing, -5)
	}
	age := *years
	raw := fmt.Sprintf("%dy", age)
	switch {
	case age < 2:
		return result(FactorCompanyAge, raw, "<2y (Too new)", -10)
	case age < 5:
		return result(FactorCompanyAge, raw, "2-5y (Startup)", -4)
	case age < 10:
		return result(FactorCompanyAge, raw, "5-10y (Growing)", 0)
	case age < 20:
		return result(FactorCompanyAge, raw, "10-20y (Established)", 5)
	default:
		return result(FactorCompanyAge, raw, ">=20y (Mature)", 8)
	}
}

// ScoreDebtRatio bins annual debt service (existing plus the new contract,
// annualised) as a share of annual revenue. Lower leverage scores better.
func ScoreDebtRatio(totalDebtService, annualRevenue *float64) domain.FactorResult {
	if annualRevenue == nil || *annualRevenue <= 0 || totalDebtService == nil {
		return result(FactorDebtRatio, "N/A", binMissing, -4)
	}
	ratio := *totalDebtService / *annualRevenue
	raw := fmt.Sprintf("%.0f%%", ratio*100)
	switch {
	case ratio < 0.20:
		return result(FactorDebtRatio, raw, "<20% (Low leverage)", 5)
	case ratio < 0.40:
		return result(FactorDebtRatio, raw, "20-40% (Moderate)", 2)
	case ratio < 0.60:
		return result(FactorDebtRatio, raw, "40-60% (High)", -2)
	default:
		return result(FactorDebtRatio, raw, ">60% (Distressed)", -6)
	}
}

// ScoreB2BDSCR bins an EBITDA-based DSCR. Healthy company coverage sits
// around 1.25-2, far below the B2C scale.
func ScoreB2BDSCR(dscr *float64) domain.FactorResult {
	if dscr == nil {
		return result(FactorDSCR, "N/A", binMissing, -5)
	}
	v := *dscr
	raw := fmt.Sprintf("%.2f", v)
	switch {
	case v < 1.0:
		return result(FactorDSCR, raw, "<1.0 (Cannot service)", -8)
	case v < 1.25:
		return result(FactorDSCR, raw, "1.0-1.25 (Tight)", -3)
	case v < 1.5:
		return result(FactorDSCR, raw, "1.25-1.5 (Adequate)", 0)
	case v < 2.0:
		return result(FactorDSCR, raw, "1.5-2.0 (Good)", 5)
	default:
		return result(FactorDSCR, raw, ">=2.0 (Strong)", 7)
	}
}

// ScoreCompanyType scores the legal form, overridden by a dissolved,
// suspended or unregistered Zefix status.
func ScoreCompanyType(form domain.LegalForm, status domain.ZefixStatus) domain.FactorResult {
	s := strings.ToUpper(string(status))
	if s == "" {
		s = string(domain.ZefixUnknown)
	}
	f := strings.ToUpper(string(form))
	if f == "" {
		f = "UNKNOWN"
	}
	raw := f + "/" + s

	switch domain.ZefixStatus(s) {
	case domain.ZefixDissolved, domain.ZefixSuspended:
		return result(FactorCompanyType, raw, "Dissolved/Suspended", -10)
	case domain.ZefixNotFound:
		return result(FactorCompanyType, raw, "Not in Zefix", -8)
	}

	var score float64
	var label string
	switch f {
	case "AG":
		score, label = 5, "AG (Aktiengesellschaft)"
	case "GMBH":
		score, label = 3, "GmbH"
	case "KG":
		score, label = 0, "KG (Kommanditgesellschaft)"
	case "EINZELFIRMA":
		score, label = -2, "Einzelfirma (Sole prop.)"
	case "OTHER", "UNKNOWN":
		score, label = 0, "Other/Unknown form"
	default:
		score, label = 0, f
	}

	if domain.ZefixStatus(s) == domain.ZefixUnknown {
		score = max(score-1, -3)
		label += " (Zefix not checked)"
	}
	return result(FactorCompanyType, raw, label, score)
}

// ScoreIndustryRisk scores the upstream industry risk class.
func ScoreIndustryRisk(risk domain.IndustryRisk) domain.FactorResult {
	r := strings.TrimSpace(string(risk))
	if r == "" {
		r = string(domain.IndustryUnknown)
	}
	switch domain.IndustryRisk(r) {
	case domain.IndustryLow:
		return result(FactorIndustryRisk, r, "Low risk industry", 5)
	case domain.IndustryMedium:
		return result(FactorIndustryRisk, r, "Medium risk industry", 0)
	case domain.IndustryHigh:
		return result(FactorIndustryRisk, r, "High risk industry", -4)
	case domain.IndustryCritical:
		return result(FactorIndustryRisk, r, "Critical risk industry", -8)
	default:
		return result(FactorIndustryRisk, r, "Industry not classified", -2)
	}
}

// annualDebtService is the company's existing annual debt service plus the
// new contract annualised.
func annualDebtService(p domain.Company, monthlyPayment float64) float64 {
	existing := 0.0
	if p.TotalDebtService != nil {
		existing = *p.TotalDebtService
	}
	return existing + monthlyPayment*12
}

// scoreB2B runs the ten B2B factor functions in reporting order.
func scoreB2B(req *domain.RiskEvaluationRequest, p domain.Company, dscr domain.DSCRResult) []domain.FactorResult {
	totalDS := annualDebtService(p, req.Contract.MonthlyPayment)
	return []domain.FactorResult{
		ScoreLTV(req.Contract.FinancedAmount, req.Vehicle.VehiclePrice),
		ScoreTerm(req.Contract.TermMonths),
		ScoreCompanyAge(p.CompanyAgeYears),
		ScoreCRIF(req.Customer.CRIFScore),
		ScoreDebtRatio(&totalDS, p.AnnualRevenue),
		ScoreB2BDSCR(dscr.DSCRValue),
		ScoreCompanyType(p.LegalForm, p.ZefixStatus),
		ScoreVehiclePriceTier(req.Vehicle.VehiclePrice),
		ScoreIndustryRisk(p.IndustryRisk),
		ScoreDealerRisk(req.Dealer.DealerDefaultRate, req.Dealer.DealerActiveMonths),
	}
}
