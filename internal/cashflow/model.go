package cashflow

// TerminalShock is one discrete cap-rate outcome applied to the terminal sale
// value, drawn with the given probability.
type TerminalShock struct {
	CapRateDelta float64
	Probability  float64
}

// Model is the fully parameterised stochastic cash-flow model for one
// property. It is rebuilt on every simulation run and never mutated after
// construction.
type Model struct {
	PropertyID   string
	HorizonYears int

	// Year-0 outflow.
	PurchasePrice float64

	// Gross rental income parameters. BaseAnnualRent is ADR * 365 *
	// occupancy before any simulated shocks.
	BaseDailyRate     float64
	BaseOccupancy     float64
	OccupancyStdev    float64
	ADRGrowthMu       float64 // lognormal location of the annual growth factor
	ADRGrowthSigma    float64
	VacancyRateMin    float64
	VacancyRateMax    float64
	ServiceCharge     float64 // fixed annual outflow
	ManagementFeeRate float64 // fraction of gross rental income

	// Terminal sale parameters.
	AppreciationMu    float64 // lognormal location of the annual price factor
	AppreciationSigma float64
	BaseCapRate       float64
	TerminalShocks    []TerminalShock

	// Discount rate used for the reference NPV reported per trial.
	BaseDiscountRate float64
}

// ExpectedAnnualRent returns the unshocked year-1 gross rental income.
func (m *Model) ExpectedAnnualRent() float64 {
	return m.BaseDailyRate * 365 * m.BaseOccupancy
}
