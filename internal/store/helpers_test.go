package store_test

import (
	"time"

	"leasing/risk-engine/internal/domain"
)

var evaluatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newAssessment returns a minimal but complete assessment for requestID.
func newAssessment(requestID, customerID string) *domain.Assessment {
	dob := domain.NewDate(1980, 4, 12)
	legacy, band := 461, "A"
	dscr := 4.07
	return &domain.Assessment{
		Request: domain.RiskEvaluationRequest{
			RequestID: requestID,
			Timestamp: "2026-03-01T11:59:00Z",
			Customer: domain.Customer{
				CustomerID:       customerID,
				DateOfBirth:      &dob,
				PartyType:        domain.PartyB2C,
				PermitType:       domain.PermitC,
				MonthlyNetIncome: domain.Ptr(7000.0),
				CRIFScore:        domain.Ptr(710),
			},
			Vehicle:  domain.Vehicle{VehiclePrice: 60000},
			Contract: domain.Contract{ContractID: "CTR-" + requestID, FinancedAmount: 30000, TermMonths: 36, MonthlyPayment: 900},
			Dealer:   domain.Dealer{DealerID: "D-1"},
		},
		Response: domain.RiskEvaluationResponse{
			RequestID:            requestID,
			AssessmentID:         "a-" + requestID,
			ModelVersion:         "1.2",
			TotalScore:           31.5,
			Tier:                 domain.TierBrightGreen,
			Decision:             domain.DecisionAutoApprove,
			ProbabilityOfDefault: 0.015,
			FactorScores: []domain.FactorScore{
				{FactorName: "LTV", RawValue: "50.0%", BinLabel: "<75%", Weight: 0.15, RawScore: 8, WeightedScore: 8},
			},
			DSCR: domain.DSCRResult{
				DSCRValue:         &dscr,
				MonthlyPayment:    900,
				CalculationMethod: domain.MethodB2CNetIncome,
				IsValid:           true,
			},
			BusinessRuleOverrides: []domain.BusinessRuleOverride{},
			EvaluatedAt:           evaluatedAt,
			ProcessingTimeMs:      2,
			LegacyScore:           &legacy,
			LegacyBand:            &band,
		},
	}
}
