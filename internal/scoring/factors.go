package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"leasing/risk-engine/internal/domain"
)

// Factor names shared by both factor sets.
const (
	FactorLTV              = "LTV"
	FactorTerm             = "Term"
	FactorAge              = "Age"
	FactorCRIF             = "CRIF"
	FactorIntrum           = "Intrum"
	FactorDSCR             = "DSCR"
	FactorPermit           = "Permit"
	FactorVehiclePriceTier = "VehiclePriceTier"
	FactorZEK              = "ZEK"
	FactorDealerRisk       = "DealerRisk"

	FactorCompanyAge   = "CompanyAge"
	FactorDebtRatio    = "DebtRatio"
	FactorCompanyType  = "CompanyType"
	FactorIndustryRisk = "IndustryRisk"
)

const binMissing = "MISSING"

func result(name, raw, bin string, score float64) domain.FactorResult {
	return domain.FactorResult{FactorName: name, RawValue: raw, BinLabel: bin, RawScore: score}
}

// round2 rounds the exact binary value of v to two decimal places, ties to
// even. 0.995 is stored as 0.99499... and rounds down.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

// ltvPercent returns financed/price×100, and false when the price is not positive.
func ltvPercent(financed, price float64) (float64, bool) {
	if price <= 0 {
		return 0, false
	}
	return financed / price * 100, true
}

// ─── B2C factors (LTV, Term, CRIF, VehiclePriceTier, DealerRisk are shared) ──

// ScoreLTV bins the loan-to-value ratio.
func ScoreLTV(financedAmount, vehiclePrice float64) domain.FactorResult {
	ltv, ok := ltvPercent(financedAmount, vehiclePrice)
	if !ok {
		return result(FactorLTV, "N/A", binMissing, -5)
	}
	raw := fmt.Sprintf("%.1f%%", ltv)
	switch {
	case ltv < 75:
		return result(FactorLTV, raw, "<75%", 8)
	case ltv <= 85:
		return result(FactorLTV, raw, "75-85%", 4)
	case ltv <= 95:
		return result(FactorLTV, raw, "85-95%", 0)
	default:
		return result(FactorLTV, raw, ">95%", -8)
	}
}

// ScoreTerm bins the contract term. Mid-length terms score best.
func ScoreTerm(termMonths int) domain.FactorResult {
	raw := fmt.Sprintf("%dm", termMonths)
	switch {
	case termMonths <= 36:
		return result(FactorTerm, raw, "≤36m", 5)
	case termMonths <= 48:
		return result(FactorTerm, raw, "37-48m", 6)
	default:
		return result(FactorTerm, raw, ">48m", -3)
	}
}

// ScoreAge bins the applicant's age at ref.
func ScoreAge(dob *domain.Date, ref domain.Date) domain.FactorResult {
	if dob == nil {
		return result(FactorAge, "N/A", binMissing, -5)
	}
	age := dob.YearsSince(ref)
	raw := fmt.Sprintf("%.0f", age)
	switch {
	case age < 18:
		return result(FactorAge, raw, "<18 (minor)", -10)
	case age <= 25:
		return result(FactorAge, raw, "18-25", -6)
	case age <= 35:
		return result(FactorAge, raw, "26-35", 2)
	case age <= 45:
		return result(FactorAge, raw, "36-45", 0)
	case age <= 55:
		return result(FactorAge, raw, "46-55", 7)
	default:
		return result(FactorAge, raw, "56+", -2)
	}
}

// ScoreCRIF bins the CRIF bureau score (0-1000, higher is better).
func ScoreCRIF(crif *int) domain.FactorResult {
	if crif == nil {
		return result(FactorCRIF, "N/A", binMissing, -5)
	}
	s := *crif
	raw := fmt.Sprintf("%d", s)
	switch {
	case s >= 700:
		return result(FactorCRIF, raw, "≥700 (Excellent)", 8)
	case s >= 500:
		return result(FactorCRIF, raw, "500-699 (Good)", 4)
	case s >= 300:
		return result(FactorCRIF, raw, "300-499 (Fair)", -2)
	default:
		return result(FactorCRIF, raw, "<300 (Poor)", -8)
	}
}

// ScoreIntrum bins the Intrum count. More entries mean an established
// track record, so the scale rewards higher counts and penalises no data.
func ScoreIntrum(intrum *int) domain.FactorResult {
	if intrum == nil || *intrum == 0 {
		return result(FactorIntrum, "0", "0 (No data)", -4)
	}
	n := *intrum
	raw := fmt.Sprintf("%d", n)
	switch {
	case n == 1:
		return result(FactorIntrum, raw, "1", 1)
	case n <= 3:
		return result(FactorIntrum, raw, "2-3", -1)
	default:
		return result(FactorIntrum, raw, ">3 (Established)", 5)
	}
}

// ScoreDSCR bins a B2C net-income DSCR.
func ScoreDSCR(dscr *float64) domain.FactorResult {
	if dscr == nil {
		return result(FactorDSCR, "N/A", binMissing, -5)
	}
	v := *dscr
	raw := fmt.Sprintf("%.2f", v)
	switch {
	case v < 0:
		return result(FactorDSCR, raw, "<0 (Negative)", -8)
	case v <= 3:
		return result(FactorDSCR, raw, "0-3 (Tight)", -3)
	case v <= 7:
		return result(FactorDSCR, raw, "3-7 (Adequate)", 0)
	case v <= 15:
		return result(FactorDSCR, raw, "7-15 (Good)", 3)
	default:
		return result(FactorDSCR, raw, ">15 (Strong)", 7)
	}
}

// ScorePermit combines party type and residence permit.
func ScorePermit(party domain.PartyType, permit domain.PermitType) domain.FactorResult {
	if party == domain.PartyB2B {
		return result(FactorPermit, "B2B", "B2B", -3)
	}
	p := strings.ToUpper(string(permit))
	if p == "" {
		p = "UNKNOWN"
	}
	switch p {
	case "C":
		return result(FactorPermit, "C_permit", "C_permit", 5)
	case "B":
		return result(FactorPermit, "B_permit", "B_permit", -3)
	case "L", "DIPLOMAT":
		return result(FactorPermit, p, p, -1)
	default:
		return result(FactorPermit, "Unknown", "Other_B2C", 2)
	}
}

// ScoreVehiclePriceTier bins the collateral price segment (CHF).
func ScoreVehiclePriceTier(price float64) domain.FactorResult {
	raw := fmt.Sprintf("%.0f", price)
	switch {
	case price <= 20_000:
		return result(FactorVehiclePriceTier, raw, "≤20k (Economy)", -2)
	case price <= 50_000:
		return result(FactorVehiclePriceTier, raw, "20k-50k (Mid)", 3)
	case price <= 100_000:
		return result(FactorVehiclePriceTier, raw, "50k-100k (Premium)", 2)
	default:
		return result(FactorVehiclePriceTier, raw, ">100k (Luxury)", -1)
	}
}

// ScoreZEK bins the ZEK negative-entry profile. A nil flag means the
// bureau was not checked and scores neutral.
func ScoreZEK(hasEntries *bool, entryCount *int) domain.FactorResult {
	if hasEntries == nil {
		return result(FactorZEK, "N/A", "NOT_CHECKED", 0)
	}
	if !*hasEntries {
		return result(FactorZEK, "Clean", "No negative entries", 5)
	}
	count := 1
	if entryCount != nil && *entryCount != 0 {
		count = *entryCount
	}
	if count <= 1 {
		return result(FactorZEK, fmt.Sprintf("%d entry", count), "1 entry", -3)
	}
	return result(FactorZEK, fmt.Sprintf("%d entries", count), "2+ entries", -7)
}

// ScoreDealerRisk bins the dealer's historical default rate. Dealers with
// less than six months of history are scored as new.
func ScoreDealerRisk(defaultRate *float64, activeMonths *int) domain.FactorResult {
	if defaultRate == nil || activeMonths == nil || *activeMonths < 6 {
		return result(FactorDealerRisk, "New/Unknown", "NEW_DEALER", -2)
	}
	r := *defaultRate
	raw := fmt.Sprintf("%.1f%%", r*100)
	switch {
	case r <= 0.03:
		return result(FactorDealerRisk, raw, "≤3% (Low)", 4)
	case r <= 0.08:
		return result(FactorDealerRisk, raw, "3-8% (Average)", 0)
	case r <= 0.15:
		return result(FactorDealerRisk, raw, "8-15% (Elevated)", -3)
	default:
		return result(FactorDealerRisk, raw, ">15% (High)", -6)
	}
}

// scoreB2C runs the ten B2C factor functions in reporting order.
func scoreB2C(req *domain.RiskEvaluationRequest, p domain.Individual, dscr domain.DSCRResult, ref domain.Date) []domain.FactorResult {
	return []domain.FactorResult{
		ScoreLTV(req.Contract.FinancedAmount, req.Vehicle.VehiclePrice),
		ScoreTerm(req.Contract.TermMonths),
		ScoreAge(p.DateOfBirth, ref),
		ScoreCRIF(req.Customer.CRIFScore),
		ScoreIntrum(p.IntrumScore),
		ScoreDSCR(dscr.DSCRValue),
		ScorePermit(p.PartyType(), p.PermitType),
		ScoreVehiclePriceTier(req.Vehicle.VehiclePrice),
		ScoreZEK(p.ZEKHasEntries, p.ZEKEntryCount),
		ScoreDealerRisk(req.Dealer.DealerDefaultRate, req.Dealer.DealerActiveMonths),
	}
}
