package store

import (
	"context"
	"slices"
	"sync"

	"leasing/risk-engine/internal/domain"
)

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu sync.RWMutex

	byRequest map[string]domain.Assessment

	// Secondary index: customer_id → request_ids in save order.
	byCustomer map[string][]string
}

// NewMemory creates an empty, ready-to-use Memory store.
func NewMemory() *Memory {
	return &Memory{
		byRequest:  make(map[string]domain.Assessment),
		byCustomer: make(map[string][]string),
	}
}

// Save stores a copy of the assessment. Returns ErrDuplicateRequest if the
// request_id already exists.
func (m *Memory) Save(_ context.Context, a *domain.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := a.Request.RequestID
	if _, exists := m.byRequest[id]; exists {
		return ErrDuplicateRequest
	}
	m.byRequest[id] = cloneAssessment(a)

	cust := a.Request.Customer.CustomerID
	m.byCustomer[cust] = append(m.byCustomer[cust], id)
	return nil
}

// Get returns the assessment for requestID.
func (m *Memory) Get(_ context.Context, requestID string) (*domain.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byRequest[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneAssessment(&a)
	return &c, nil
}

// ListByCustomer returns a customer's assessments, oldest first.
func (m *Memory) ListByCustomer(_ context.Context, customerID string) ([]*domain.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byCustomer[customerID]
	result := make([]*domain.Assessment, 0, len(ids))
	for _, id := range ids {
		a := m.byRequest[id]
		c := cloneAssessment(&a)
		result = append(result, &c)
	}
	return result, nil
}

// Len returns the number of stored assessments.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRequest)
}

// cloneAssessment copies a so that no slice or pointer is shared with the
// caller.
func cloneAssessment(a *domain.Assessment) domain.Assessment {
	c := *a

	req := &c.Request
	req.ModelVersion = clonePtr(req.ModelVersion)

	cust := &req.Customer
	cust.DateOfBirth = clonePtr(cust.DateOfBirth)
	cust.MonthlyGrossIncome = clonePtr(cust.MonthlyGrossIncome)
	cust.MonthlyNetIncome = clonePtr(cust.MonthlyNetIncome)
	cust.MonthlyExistingObligations = clonePtr(cust.MonthlyExistingObligations)
	cust.MonthlyRent = clonePtr(cust.MonthlyRent)
	cust.MonthlyInsurance = clonePtr(cust.MonthlyInsurance)
	cust.MonthlyAlimony = clonePtr(cust.MonthlyAlimony)
	cust.AnnualRevenue = clonePtr(cust.AnnualRevenue)
	cust.AnnualEBITDA = clonePtr(cust.AnnualEBITDA)
	cust.TotalDebtService = clonePtr(cust.TotalDebtService)
	cust.CompanyAgeYears = clonePtr(cust.CompanyAgeYears)
	cust.CRIFScore = clonePtr(cust.CRIFScore)
	cust.IntrumScore = clonePtr(cust.IntrumScore)
	cust.ZEKHasEntries = clonePtr(cust.ZEKHasEntries)
	cust.ZEKEntryCount = clonePtr(cust.ZEKEntryCount)

	req.Vehicle.VehicleAgeMonths = clonePtr(req.Vehicle.VehicleAgeMonths)
	req.Vehicle.IsElectric = clonePtr(req.Vehicle.IsElectric)
	req.Contract.ResidualValue = clonePtr(req.Contract.ResidualValue)
	req.Contract.InterestRate = clonePtr(req.Contract.InterestRate)
	req.Dealer.DealerDefaultRate = clonePtr(req.Dealer.DealerDefaultRate)
	req.Dealer.DealerActiveMonths = clonePtr(req.Dealer.DealerActiveMonths)

	resp := &c.Response
	resp.FactorScores = slices.Clone(resp.FactorScores)
	resp.BusinessRuleOverrides = slices.Clone(resp.BusinessRuleOverrides)
	resp.DSCR.DSCRValue = clonePtr(resp.DSCR.DSCRValue)
	resp.DSCR.MonthlyDisposableIncome = clonePtr(resp.DSCR.MonthlyDisposableIncome)
	resp.LegacyScore = clonePtr(resp.LegacyScore)
	resp.LegacyBand = clonePtr(resp.LegacyBand)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
