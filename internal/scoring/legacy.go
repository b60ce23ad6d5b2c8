package scoring

import (
	"math"

	"leasing/risk-engine/internal/domain"
)

// ─── Legacy WoE scorecard ─────────────────────────────────────────────────────
//
// The original six-factor points scorecard, kept so historical reports keep
// their A-E bands. Points are additive deltas on a fixed intercept; the
// resulting range is roughly 333-502.

// LegacyIntercept is the scorecard's base points.
const LegacyIntercept = 389

// Legacy band boundaries (inclusive lower bounds, except A which is > 428).
const (
	legacyBandA = 428
	legacyBandB = 401
	legacyBandC = 381
	legacyBandD = 361
)

// ComputeLegacyScore returns the legacy points total and its band letter.
func ComputeLegacyScore(req *domain.RiskEvaluationRequest, dscr domain.DSCRResult, ref domain.Date) (int, string) {
	cust := req.Customer
	score := float64(LegacyIntercept)

	ltv, ok := ltvPercent(req.Contract.FinancedAmount, req.Vehicle.VehiclePrice)
	if !ok {
		ltv = 100
	}
	switch {
	case ltv >= 75 && ltv <= 85:
		score += 15
	case ltv > 85 && ltv <= 95:
		score += 7
	case ltv < 75:
		score += 36
	default:
		score -= 18
	}

	switch term := req.Contract.TermMonths; {
	case term >= 37 && term <= 48:
		score += 25
	case term > 48:
		score -= 7
	default:
		score += 22
	}

	// Ages between the integer bins (25 < age < 26 and so on) carry no delta.
	if cust.DateOfBirth != nil {
		age := cust.DateOfBirth.YearsSince(ref)
		switch {
		case age >= 18 && age <= 25:
			score -= 16
		case age >= 26 && age <= 35:
			score += 6
		case age >= 36 && age <= 45:
			score -= 3
		case age >= 46 && age <= 55:
			score += 28
		case age >= 56:
			score -= 8
		}
	}

	switch intrum := cust.IntrumScore; {
	case intrum == nil || *intrum == 0:
		score -= 7
	case *intrum == 1:
		score++
	case *intrum > 1 && *intrum <= 3:
		score -= 3
	case *intrum > 3:
		score += 8
	}

	switch {
	case cust.PartyType == domain.PartyB2B:
		score -= 6
	case cust.PermitType == domain.PermitB:
		score -= 5
	case cust.PermitType == domain.PermitC:
		score += 6
	default:
		score += 7
	}

	if v := dscr.DSCRValue; v != nil {
		switch d := *v; {
		case d >= 0 && d <= 3:
			score--
		case d > 3 && d <= 7:
		case d > 7 && d <= 15:
			score -= 3
		case d < 0:
			score -= 6
		case d > 15:
			score += 9
		}
	}

	points := int(math.Round(score))
	return points, LegacyBand(points)
}

// LegacyBand maps legacy points to a band letter.
func LegacyBand(points int) string {
	switch {
	case points > legacyBandA:
		return "A"
	case points >= legacyBandB:
		return "B"
	case points >= legacyBandC:
		return "C"
	case points >= legacyBandD:
		return "D"
	default:
		return "E"
	}
}
