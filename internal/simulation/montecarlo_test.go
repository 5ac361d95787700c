package simulation

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

// profitableModel is a stochastic but comfortably profitable configuration.
func profitableModel() *cashflow.Model {
	return &cashflow.Model{
		PropertyID:        "UNO-611",
		HorizonYears:      10,
		PurchasePrice:     1_000_000,
		BaseDailyRate:     500,
		BaseOccupancy:     0.80,
		OccupancyStdev:    0.06,
		ADRGrowthMu:       math.Log(1.05) - 0.5*0.10*0.10,
		ADRGrowthSigma:    0.10,
		VacancyRateMin:    0.02,
		VacancyRateMax:    0.08,
		ServiceCharge:     12_000,
		ManagementFeeRate: 0.15,
		AppreciationMu:    math.Log(1.08) - 0.5*0.12*0.12,
		AppreciationSigma: 0.12,
		BaseCapRate:       0.05,
		TerminalShocks: []cashflow.TerminalShock{
			{CapRateDelta: -0.0150, Probability: 0.15},
			{CapRateDelta: 0, Probability: 0.50},
			{CapRateDelta: 0.0150, Probability: 0.25},
			{CapRateDelta: 0.0300, Probability: 0.10},
		},
		BaseDiscountRate: 0.05,
	}
}

// zeroVarianceModel always produces the same profitable cash flows.
func zeroVarianceModel() *cashflow.Model {
	m := profitableModel()
	m.OccupancyStdev = 0
	m.ADRGrowthSigma = 0
	m.ADRGrowthMu = math.Log(1.05)
	m.AppreciationSigma = 0
	m.AppreciationMu = math.Log(1.08)
	m.VacancyRateMin = 0.05
	m.VacancyRateMax = 0.05
	m.TerminalShocks = []cashflow.TerminalShock{{CapRateDelta: 0, Probability: 1}}
	return m
}

// lossModel loses money every year with no terminal recovery.
func lossModel() *cashflow.Model {
	m := zeroVarianceModel()
	m.BaseDailyRate = 0
	m.ServiceCharge = 50_000
	m.AppreciationMu = -20 // terminal value decays to nothing
	return m
}

func TestRunDeterministic(t *testing.T) {
	model := profitableModel()

	serial := NewAgent(1, zerolog.Nop())
	parallel := NewAgent(8, zerolog.Nop())

	a, err := serial.Run(model, 2000, 42)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	b, err := parallel.Run(model, 2000, 42)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	if a.MeanIRR != b.MeanIRR {
		t.Fatalf("mean IRR differs across worker counts: %v vs %v", a.MeanIRR, b.MeanIRR)
	}
	if a.Percentiles != b.Percentiles {
		t.Fatalf("percentiles differ: %+v vs %+v", a.Percentiles, b.Percentiles)
	}
	if a.ProbNegativeIRR != b.ProbNegativeIRR {
		t.Fatalf("prob negative differs: %v vs %v", a.ProbNegativeIRR, b.ProbNegativeIRR)
	}
	for i := range a.Trials {
		if a.Trials[i].Valid != b.Trials[i].Valid {
			t.Fatalf("trial %d validity differs", i)
		}
		if a.Trials[i].Valid && a.Trials[i].IRR != b.Trials[i].IRR {
			t.Fatalf("trial %d IRR differs: %v vs %v", i, a.Trials[i].IRR, b.Trials[i].IRR)
		}
	}
}

func TestRunSeedSensitivity(t *testing.T) {
	agent := NewAgent(0, zerolog.Nop())
	a, err := agent.Run(profitableModel(), 500, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := agent.Run(profitableModel(), 500, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if a.MeanIRR == b.MeanIRR {
		t.Fatal("different seeds produced identical aggregates")
	}
}

func TestRunInvariants(t *testing.T) {
	agent := NewAgent(0, zerolog.Nop())
	res, err := agent.Run(profitableModel(), 3000, 7)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.ProbNegativeIRR < 0 || res.ProbNegativeIRR > 1 {
		t.Fatalf("prob negative out of range: %v", res.ProbNegativeIRR)
	}
	p := res.Percentiles
	if !(p.P5 <= p.P25 && p.P25 <= p.P50 && p.P50 <= p.P75 && p.P75 <= p.P95) {
		t.Fatalf("percentiles out of order: %+v", p)
	}
	if len(res.Trials) != 3000 {
		t.Fatalf("trial count = %d", len(res.Trials))
	}
	valid := 0
	for _, tr := range res.Trials {
		if tr.Valid {
			valid++
			if math.IsNaN(tr.IRR) {
				t.Fatal("valid trial with NaN IRR")
			}
		}
	}
	if valid+res.InvalidTrialCount != 3000 {
		t.Fatalf("valid %d + invalid %d != 3000", valid, res.InvalidTrialCount)
	}
}

func TestRunZeroVarianceProfitable(t *testing.T) {
	agent := NewAgent(4, zerolog.Nop())
	res, err := agent.Run(zeroVarianceModel(), 500, 99)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.ProbNegativeIRR != 0 {
		t.Fatalf("prob negative = %v, want 0", res.ProbNegativeIRR)
	}
	if res.InvalidTrialCount != 0 {
		t.Fatalf("invalid trials = %d, want 0", res.InvalidTrialCount)
	}
	// Every trial is identical, so the spread collapses.
	if math.Abs(res.Percentiles.P5-res.Percentiles.P95) > 1e-9 {
		t.Fatalf("zero-variance run has spread: %+v", res.Percentiles)
	}
	if res.MeanIRR <= 0 {
		t.Fatalf("mean IRR = %v, want positive", res.MeanIRR)
	}
}

func TestRunAllLossTrialsInvalidNegative(t *testing.T) {
	agent := NewAgent(4, zerolog.Nop())
	res, err := agent.Run(lossModel(), 500, 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.InvalidTrialCount != 500 {
		t.Fatalf("invalid trials = %d, want all 500", res.InvalidTrialCount)
	}
	if res.ProbNegativeIRR != 1 {
		t.Fatalf("prob negative = %v, want 1", res.ProbNegativeIRR)
	}
	for _, tr := range res.Trials {
		if tr.Valid {
			t.Fatalf("trial %d unexpectedly valid", tr.Index)
		}
		if !math.IsInf(tr.BreakevenYear, 1) {
			t.Fatalf("loss trial %d reports breakeven %v", tr.Index, tr.BreakevenYear)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	agent := NewAgent(1, zerolog.Nop())
	if _, err := agent.Run(nil, 10, 1); err == nil {
		t.Fatal("nil model must error")
	}
	if _, err := agent.Run(profitableModel(), 0, 1); err == nil {
		t.Fatal("zero trials must error")
	}
	m := profitableModel()
	m.HorizonYears = 0
	if _, err := agent.Run(m, 10, 1); err == nil {
		t.Fatal("zero horizon must error")
	}
}

func TestBreakevenYearInterpolation(t *testing.T) {
	// Cumulative: -1000, -800, -600, 100 -> crossing between years 2 and 3.
	got := breakevenYear([]float64{-1000, 200, 200, 700})
	if got <= 2 || got >= 3 {
		t.Fatalf("breakeven = %v, want between 2 and 3", got)
	}
	if got := breakevenYear([]float64{100, 50}); got != 0 {
		t.Fatalf("immediate breakeven = %v, want 0", got)
	}
	if got := breakevenYear([]float64{-100, 10, 10}); !math.IsInf(got, 1) {
		t.Fatalf("never-breakeven = %v, want +Inf", got)
	}
}

func TestTrialStreamsIndependentOfProperty(t *testing.T) {
	agent := NewAgent(1, zerolog.Nop())
	m1 := profitableModel()
	m2 := profitableModel()
	m2.PropertyID = "UNO-612"

	a, _ := agent.Run(m1, 200, 5)
	b, _ := agent.Run(m2, 200, 5)
	if a.MeanIRR == b.MeanIRR {
		t.Fatal("different properties share random streams")
	}
}
