package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

// Trial is the outcome of one Monte Carlo draw. Invalid trials carry a NaN
// IRR and are excluded from percentile statistics, but their cash-flow sign
// still feeds the negative-probability estimate.
type Trial struct {
	Index         int
	IRR           float64
	NPV           float64
	TerminalValue float64
	Valid         bool
	TotalCashFlow float64
	BreakevenYear float64 // +Inf when the trial never breaks even
	YearOneYield  float64
}

// Result aggregates a full simulation run. It is a pure function of
// (model, trial count, seed).
type Result struct {
	TrialCount        int
	Seed              uint64
	MeanIRR           float64
	Percentiles       Percentiles
	ProbNegativeIRR   float64
	BreakevenYearMean float64
	YearOneYieldMean  float64
	Histogram         []HistogramBin
	InvalidTrialCount int
	Trials            []Trial
}

// Agent runs Monte Carlo IRR simulations over a bounded worker pool.
type Agent struct {
	workers int
	logger  zerolog.Logger
}

// NewAgent constructs an Agent. workers <= 0 uses one worker per CPU.
func NewAgent(workers int, logger zerolog.Logger) *Agent {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Agent{
		workers: workers,
		logger:  logger.With().Str("component", "montecarlo").Logger(),
	}
}

// Run executes trialCount independent trials of the model and aggregates
// them. Each trial derives its own random stream from (seed, property, trial
// index), so the output is identical for identical inputs regardless of
// worker count or completion order.
func (a *Agent) Run(model *cashflow.Model, trialCount int, seed uint64) (*Result, error) {
	if model == nil {
		return nil, errors.New("simulation model is required")
	}
	if trialCount <= 0 {
		return nil, fmt.Errorf("trial count must be positive, got %d", trialCount)
	}
	if model.HorizonYears <= 0 {
		return nil, fmt.Errorf("model horizon must be positive, got %d", model.HorizonYears)
	}

	propKey := propertyKey(model.PropertyID)
	trials := make([]Trial, trialCount)

	workers := a.workers
	if workers > trialCount {
		workers = trialCount
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < trialCount; i += workers {
				trials[i] = simulateTrial(model, newTrialRand(seed, propKey, i), i)
			}
		}(w)
	}
	wg.Wait()

	result := aggregate(trials, seed)
	a.logger.Debug().
		Str("property_id", model.PropertyID).
		Int("trials", trialCount).
		Int("invalid", result.InvalidTrialCount).
		Float64("mean_irr", result.MeanIRR).
		Float64("prob_negative", result.ProbNegativeIRR).
		Msg("simulation complete")
	return result, nil
}

// simulateTrial draws one full scenario through the model horizon and solves
// its IRR. The draw order per year is fixed (growth, occupancy, vacancy,
// price) so streams stay aligned across code paths.
func simulateTrial(m *cashflow.Model, rng *rand.Rand, idx int) Trial {
	horizon := m.HorizonYears
	flows := make([]float64, horizon+1)
	flows[0] = -m.PurchasePrice

	adrFactor := 1.0
	price := m.PurchasePrice
	for year := 1; year <= horizon; year++ {
		adrFactor *= math.Exp(m.ADRGrowthMu + m.ADRGrowthSigma*rng.NormFloat64())
		occupancy := clamp(m.BaseOccupancy+m.OccupancyStdev*rng.NormFloat64(), 0, 1)
		vacancy := m.VacancyRateMin + rng.Float64()*(m.VacancyRateMax-m.VacancyRateMin)
		price *= math.Exp(m.AppreciationMu + m.AppreciationSigma*rng.NormFloat64())

		gross := m.BaseDailyRate * 365 * adrFactor * occupancy
		noi := gross - gross*vacancy - gross*m.ManagementFeeRate - m.ServiceCharge
		flows[year] = noi
	}

	terminal := terminalValue(m, price, rng)
	flows[horizon] += terminal

	trial := Trial{
		Index:         idx,
		TerminalValue: terminal,
		NPV:           NPV(flows, m.BaseDiscountRate),
		BreakevenYear: breakevenYear(flows),
	}
	for _, cf := range flows {
		trial.TotalCashFlow += cf
	}
	if m.PurchasePrice > 0 {
		trial.YearOneYield = flows[1] / m.PurchasePrice
	}

	irr, ok := IRR(flows)
	if ok {
		trial.IRR = irr
		trial.Valid = true
	} else {
		trial.IRR = math.NaN()
	}
	return trial
}

// terminalValue prices the final-year sale: the appreciated price scaled by
// the drawn cap-rate shock. A widened cap rate compresses the exit value.
func terminalValue(m *cashflow.Model, price float64, rng *rand.Rand) float64 {
	u := rng.Float64()
	var cumulative float64
	delta := 0.0
	for _, shock := range m.TerminalShocks {
		cumulative += shock.Probability
		if u <= cumulative {
			delta = shock.CapRateDelta
			break
		}
	}
	shocked := m.BaseCapRate + delta
	if m.BaseCapRate <= 0 || shocked <= 0 {
		return price
	}
	return price * m.BaseCapRate / shocked
}

// breakevenYear finds the first point where cumulative cash flow turns
// positive, interpolating linearly inside the crossing year.
func breakevenYear(flows []float64) float64 {
	var cumulative float64
	prev := 0.0
	for year, cf := range flows {
		cumulative += cf
		if cumulative > 0 {
			if year == 0 {
				return 0
			}
			if cumulative == prev {
				return float64(year)
			}
			return float64(year-1) + (-prev)/(cumulative-prev)
		}
		prev = cumulative
	}
	return math.Inf(1)
}

// aggregate is the single deterministic reduction step run after all trials
// finish.
func aggregate(trials []Trial, seed uint64) *Result {
	validIRRs := make([]float64, 0, len(trials))
	breakevens := make([]float64, 0, len(trials))
	yields := make([]float64, 0, len(trials))
	negative := 0
	invalid := 0

	for _, tr := range trials {
		yields = append(yields, tr.YearOneYield)
		if !math.IsInf(tr.BreakevenYear, 1) {
			breakevens = append(breakevens, tr.BreakevenYear)
		}
		if tr.Valid {
			validIRRs = append(validIRRs, tr.IRR)
			if tr.IRR < 0 {
				negative++
			}
			continue
		}
		invalid++
		// A pattern with no recoverable rate and a net loss counts as a
		// negative outcome.
		if tr.TotalCashFlow < 0 {
			negative++
		}
	}

	sort.Float64s(validIRRs)
	pct := computePercentiles(validIRRs)

	return &Result{
		TrialCount:        len(trials),
		Seed:              seed,
		MeanIRR:           mean(validIRRs),
		Percentiles:       pct,
		ProbNegativeIRR:   float64(negative) / float64(len(trials)),
		BreakevenYearMean: mean(breakevens),
		YearOneYieldMean:  mean(yields),
		Histogram:         buildHistogram(validIRRs, pct),
		InvalidTrialCount: invalid,
		Trials:            trials,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
