// Command seed generates a lease application portfolio for local testing
// and writes it to data/seed.json.
//
// Usage:
//
//	go run ./cmd/seed
//
// The dataset mixes applicant segments so every tier and most business rules
// show up when it is loaded with `riskengine serve --seed data/seed.json`:
//   - prime and standard private customers
//   - thin-file and stressed private customers
//   - established and young or troubled companies
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"leasing/risk-engine/internal/domain"
)

func main() {
	rng := rand.New(rand.NewSource(42)) // deterministic seed for reproducibility

	g := &generator{rng: rng, asOf: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	var requests []domain.RiskEvaluationRequest

	requests = append(requests, g.many(60, g.primeIndividual)...)
	requests = append(requests, g.many(50, g.standardIndividual)...)
	requests = append(requests, g.many(20, g.thinFileIndividual)...)
	requests = append(requests, g.many(20, g.stressedIndividual)...)
	requests = append(requests, g.many(30, g.establishedCompany)...)
	requests = append(requests, g.many(20, g.troubledCompany)...)

	rng.Shuffle(len(requests), func(i, j int) {
		requests[i], requests[j] = requests[j], requests[i]
	})

	if err := os.MkdirAll("data", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create("data/seed.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(requests); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d requests → data/seed.json\n", len(requests))
}

type generator struct {
	rng  *rand.Rand
	asOf time.Time
	seq  int
}

func (g *generator) many(n int, build func() domain.RiskEvaluationRequest) []domain.RiskEvaluationRequest {
	out := make([]domain.RiskEvaluationRequest, n)
	for i := range out {
		out[i] = build()
	}
	return out
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

var dealerPool = []struct {
	id     string
	name   string
	rate   float64
	months int
}{
	{"D-1001", "Garage Zentrum AG", 0.018, 96},
	{"D-1002", "Autohaus Limmat", 0.031, 60},
	{"D-1003", "Lac Léman Automobiles", 0.045, 30},
	{"D-1004", "Ticino Motori SA", 0.072, 14},
	{"D-1005", "Occasionen Express", 0.23, 9},
}

func (g *generator) between(lo, hi float64) float64 {
	return math.Round(lo + g.rng.Float64()*(hi-lo))
}

func (g *generator) intBetween(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *generator) pick(options ...string) string {
	return options[g.rng.Intn(len(options))]
}

// base fills identifiers, vehicle, contract and dealer for a financed share
// of the price.
func (g *generator) base(party domain.PartyType, price, financedShare float64, term int) domain.RiskEvaluationRequest {
	g.seq++
	id, _ := uuid.NewRandomFromReader(g.rng)
	financed := math.Round(price * financedShare)
	d := dealerPool[g.rng.Intn(len(dealerPool))]
	ts := g.asOf.Add(-time.Duration(g.rng.Intn(7*24*60)) * time.Minute)

	return domain.RiskEvaluationRequest{
		RequestID: id.String(),
		Timestamp: ts.Format(time.RFC3339),
		Customer: domain.Customer{
			CustomerID: fmt.Sprintf("CUST-%05d", g.seq),
			PartyType:  party,
		},
		Vehicle: domain.Vehicle{
			VehiclePrice: price,
			VehicleType:  g.pick("PKW", "PKW", "LNF"),
			IsElectric:   domain.Ptr(g.rng.Intn(4) == 0),
		},
		Contract: domain.Contract{
			ContractID:        fmt.Sprintf("CTR-%05d", g.seq),
			FinancedAmount:    financed,
			DownpaymentAmount: price - financed,
			TermMonths:        term,
			MonthlyPayment:    math.Round(financed / float64(term) * 1.04),
			ProductType:       "LEASING",
		},
		Dealer: domain.Dealer{
			DealerID:           d.id,
			DealerName:         d.name,
			DealerDefaultRate:  domain.Ptr(d.rate),
			DealerActiveMonths: domain.Ptr(d.months),
		},
	}
}

func (g *generator) birthDate(minAge, maxAge int) *domain.Date {
	days := g.intBetween(minAge*365, maxAge*365)
	d := domain.DateOf(g.asOf.AddDate(0, 0, -days))
	return &d
}

// ─── Private customers ────────────────────────────────────────────────────────

func (g *generator) individual(req *domain.RiskEvaluationRequest, income float64, crif, intrum int) {
	c := &req.Customer
	c.DateOfBirth = g.birthDate(30, 60)
	c.PermitType = domain.PermitType(g.pick("C", "C", "B"))
	c.Nationality = g.pick("CH", "CH", "DE", "IT", "FR")
	c.IncomeType = domain.IncomeEmployed
	c.MonthlyNetIncome = domain.Ptr(income)
	c.MonthlyGrossIncome = domain.Ptr(math.Round(income * 1.18))
	c.MonthlyRent = domain.Ptr(g.between(1100, 2200))
	c.MonthlyInsurance = domain.Ptr(g.between(250, 450))
	c.MonthlyAlimony = domain.Ptr(0.0)
	c.MonthlyExistingObligations = domain.Ptr(g.between(0, 400))
	c.CRIFScore = domain.Ptr(crif)
	c.IntrumScore = domain.Ptr(intrum)
	c.ZEKHasEntries = domain.Ptr(false)
}

func (g *generator) primeIndividual() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2C, g.between(40000, 90000), 0.5, 36)
	g.individual(&req, g.between(8000, 14000), g.intBetween(700, 900), g.intBetween(1, 4))
	return req
}

func (g *generator) standardIndividual() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2C, g.between(25000, 50000), 0.75, g.intBetween(3, 5)*12)
	g.individual(&req, g.between(5500, 8000), g.intBetween(450, 700), g.intBetween(3, 7))
	return req
}

// thinFileIndividual has no bureau history and a short residence permit.
func (g *generator) thinFileIndividual() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2C, g.between(18000, 35000), 0.9, 48)
	g.individual(&req, g.between(4500, 6500), 0, 0)
	c := &req.Customer
	c.DateOfBirth = g.birthDate(19, 25)
	c.PermitType = domain.PermitL
	c.CRIFScore = nil
	c.IntrumScore = nil
	c.ZEKHasEntries = nil
	return req
}

// stressedIndividual triggers at least one hard rule: negative budget, ZEK
// entries, a critical CRIF score or missing income.
func (g *generator) stressedIndividual() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2C, g.between(30000, 60000), 0.95, 60)
	g.individual(&req, g.between(3500, 5000), g.intBetween(200, 450), g.intBetween(7, 10))
	c := &req.Customer
	switch g.rng.Intn(4) {
	case 0:
		c.MonthlyNetIncome = domain.Ptr(2400.0)
	case 1:
		c.ZEKHasEntries = domain.Ptr(true)
		c.ZEKEntryCount = domain.Ptr(g.intBetween(3, 6))
	case 2:
		c.CRIFScore = domain.Ptr(g.intBetween(50, 149))
	default:
		c.MonthlyNetIncome = nil
		c.IncomeType = domain.IncomeUnemployed
	}
	return req
}

// ─── Companies ────────────────────────────────────────────────────────────────

func (g *generator) company(req *domain.RiskEvaluationRequest, revenue, margin float64, age int) {
	c := &req.Customer
	c.AnnualRevenue = domain.Ptr(revenue)
	c.AnnualEBITDA = domain.Ptr(math.Round(revenue * margin))
	c.TotalDebtService = domain.Ptr(math.Round(revenue * margin * 0.25))
	c.CompanyAgeYears = domain.Ptr(age)
	c.ZefixStatus = domain.ZefixActive
	c.LegalForm = domain.LegalForm(g.pick("AG", "GmbH", "GmbH", "KG"))
	c.IndustryRisk = domain.IndustryRisk(g.pick("Low", "Low", "Medium"))
	c.CRIFScore = domain.Ptr(g.intBetween(550, 850))
}

func (g *generator) establishedCompany() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2B, g.between(45000, 120000), 0.6, g.intBetween(3, 5)*12)
	g.company(&req, g.between(1_000_000, 8_000_000), 0.12, g.intBetween(6, 40))
	return req
}

// troubledCompany is young, thinly capitalised or not cleanly registered.
func (g *generator) troubledCompany() domain.RiskEvaluationRequest {
	req := g.base(domain.PartyB2B, g.between(40000, 90000), 0.9, g.longTerm())
	g.company(&req, g.between(200_000, 900_000), 0.04, g.intBetween(0, 3))
	c := &req.Customer
	c.LegalForm = domain.LegalFormEinzelfirma
	c.IndustryRisk = domain.IndustryRisk(g.pick("High", "Critical"))
	switch g.rng.Intn(4) {
	case 0:
		c.ZefixStatus = domain.ZefixDissolved
	case 1:
		c.ZefixStatus = domain.ZefixNotFound
	case 2:
		c.AnnualEBITDA = nil
	}
	return req
}

func (g *generator) longTerm() int {
	if g.rng.Intn(3) == 0 {
		return 84
	}
	return 72
}
