package domain

// Profile is the party-specific view of a Customer. It is resolved once per
// evaluation so scoring code never re-inspects the party type string.
type Profile interface {
	PartyType() PartyType
	profile()
}

// Individual is the B2C view of a customer.
type Individual struct {
	DateOfBirth                *Date
	PermitType                 PermitType
	MonthlyNetIncome           *float64
	MonthlyRent                *float64
	MonthlyInsurance           *float64
	MonthlyAlimony             *float64
	MonthlyExistingObligations *float64
	IntrumScore                *int
	ZEKHasEntries              *bool
	ZEKEntryCount              *int
}

// Company is the B2B view of a customer.
type Company struct {
	CompanyAgeYears  *int
	ZefixStatus      ZefixStatus
	LegalForm        LegalForm
	IndustryRisk     IndustryRisk
	AnnualRevenue    *float64
	AnnualEBITDA     *float64
	TotalDebtService *float64
}

func (Individual) PartyType() PartyType { return PartyB2C }
func (Company) PartyType() PartyType    { return PartyB2B }

func (Individual) profile() {}
func (Company) profile()    {}

// Profile narrows the customer to its party-specific variant. B2B yields a
// Company; every other party type is treated as an Individual.
func (c Customer) Profile() Profile {
	if c.PartyType == PartyB2B {
		return Company{
			CompanyAgeYears:  c.CompanyAgeYears,
			ZefixStatus:      c.ZefixStatus,
			LegalForm:        c.LegalForm,
			IndustryRisk:     c.IndustryRisk,
			AnnualRevenue:    c.AnnualRevenue,
			AnnualEBITDA:     c.AnnualEBITDA,
			TotalDebtService: c.TotalDebtService,
		}
	}
	return Individual{
		DateOfBirth:                c.DateOfBirth,
		PermitType:                 c.PermitType,
		MonthlyNetIncome:           c.MonthlyNetIncome,
		MonthlyRent:                c.MonthlyRent,
		MonthlyInsurance:           c.MonthlyInsurance,
		MonthlyAlimony:             c.MonthlyAlimony,
		MonthlyExistingObligations: c.MonthlyExistingObligations,
		IntrumScore:                c.IntrumScore,
		ZEKHasEntries:              c.ZEKHasEntries,
		ZEKEntryCount:              c.ZEKEntryCount,
	}
}

// Ptr returns a pointer to v. Handy for building requests with optional fields.
func Ptr[T any](v T) *T {
	return &v
}
