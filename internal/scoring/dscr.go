package scoring

import "leasing/risk-engine/internal/domain"

// Swiss minimum living cost for a single person (CHF/month) plus a 10%
// safety buffer, deducted from B2C net income.
const (
	MinimumLivingCostSingle    = 1350.0
	MinimumLivingCostBufferPct = 0.10
)

// MinimumLivingCost is the buffered monthly living cost, CHF 1485.
const MinimumLivingCost = MinimumLivingCostSingle * (1 + MinimumLivingCostBufferPct)

// CalculateDSCR computes the debt service coverage ratio for the narrowed
// customer profile. It never fails: missing inputs yield IsValid=false with
// the FALLBACK method.
func CalculateDSCR(p domain.Profile, contract domain.Contract) domain.DSCRResult {
	switch p := p.(type) {
	case domain.Company:
		return dscrB2B(p, contract.MonthlyPayment)
	case domain.Individual:
		return dscrB2C(p, contract.MonthlyPayment)
	default:
		return fallback(contract.MonthlyPayment)
	}
}

func fallback(payment float64) domain.DSCRResult {
	return domain.DSCRResult{
		MonthlyPayment:    payment,
		CalculationMethod: domain.MethodFallback,
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// dscrB2C: (net income - rent - insurance - alimony - obligations - living cost) / payment.
func dscrB2C(p domain.Individual, payment float64) domain.DSCRResult {
	if p.MonthlyNetIncome == nil || *p.MonthlyNetIncome <= 0 {
		return fallback(payment)
	}

	deductions := orZero(p.MonthlyRent) + orZero(p.MonthlyInsurance) +
		orZero(p.MonthlyAlimony) + orZero(p.MonthlyExistingObligations) +
		MinimumLivingCost
	disposable := *p.MonthlyNetIncome - deductions

	if payment <= 0 {
		return domain.DSCRResult{
			MonthlyDisposableIncome: &disposable,
			MonthlyPayment:          payment,
			CalculationMethod:       domain.MethodB2CNetIncome,
		}
	}

	dscr := round2(disposable / payment)
	disposable = round2(disposable)
	return domain.DSCRResult{
		DSCRValue:               &dscr,
		MonthlyDisposableIncome: &disposable,
		MonthlyPayment:          payment,
		CalculationMethod:       domain.MethodB2CNetIncome,
		IsValid:                 true,
	}
}

// dscrB2B: EBITDA / (existing annual debt service + payment × 12).
func dscrB2B(p domain.Company, payment float64) domain.DSCRResult {
	if p.AnnualEBITDA == nil || *p.AnnualEBITDA <= 0 {
		return fallback(payment)
	}
	ebitda := *p.AnnualEBITDA

	totalDS := annualDebtService(p, payment)
	if totalDS <= 0 {
		return domain.DSCRResult{
			MonthlyPayment:    payment,
			CalculationMethod: domain.MethodB2BEBITDA,
		}
	}

	dscr := round2(ebitda / totalDS)
	disposable := round2(ebitda/12 - payment)
	return domain.DSCRResult{
		DSCRValue:               &dscr,
		MonthlyDisposableIncome: &disposable,
		MonthlyPayment:          payment,
		CalculationMethod:       domain.MethodB2BEBITDA,
		IsValid:                 true,
	}
}
