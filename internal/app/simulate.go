package app

import (
	"context"
	"fmt"
	"math"
	"os"

	"proppulse-risk/internal/cashflow"
	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/service"
	"proppulse-risk/internal/simulation"
	"proppulse-risk/internal/storage"
)

// Simulate runs the full pipeline for one property without persisting the
// run or touching alert state. Useful for validating assumption changes
// before the next scheduled cycle.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	simCfg := a.Config.Simulation
	trials := opts.Trials
	if trials <= 0 {
		trials = simCfg.TrialCount
	}
	seed := opts.Seed
	if seed == 0 {
		seed = simCfg.Seed
	}

	svc := service.New(service.Deps{
		Properties: store,
		Metrics:    store,
		Runs:       dryRunWriter{},
		Builder:    cashflow.NewBuilder(cashflow.DefaultParams(), a.Logger),
		Simulator:  simulation.NewAgent(simCfg.Workers, a.Logger),
		Composer:   grading.NewComposer(a.thresholds()),
		Scores:     service.NewMetricScoreSource(store, a.Logger),
	}, service.Options{
		TrialCount:   trials,
		Seed:         seed,
		MetricWindow: simCfg.MetricWindow,
	}, a.Logger)

	run, err := svc.ProcessProperty(ctx, opts.PropertyID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "property:        %s\n", run.PropertyID)
	fmt.Fprintf(os.Stdout, "grade:           %s\n", run.Grade)
	fmt.Fprintf(os.Stdout, "developer score: %d\n", run.DeveloperScore)
	fmt.Fprintf(os.Stdout, "trials:          %d (%d invalid)\n", run.TrialCount, run.InvalidTrialCount)
	fmt.Fprintf(os.Stdout, "P(IRR<0):        %.2f%%\n", run.ProbNegativeIRR*100)
	fmt.Fprintf(os.Stdout, "mean IRR:        %.2f%%\n", run.MeanIRR*100)
	fmt.Fprintf(os.Stdout, "IRR p5/p50/p95:  %.2f%% / %.2f%% / %.2f%%\n",
		run.Percentiles.P5*100, run.Percentiles.P50*100, run.Percentiles.P95*100)
	fmt.Fprintf(os.Stdout, "breakeven year:  %s\n", formatBreakeven(run.BreakevenYearMean))
	fmt.Fprintf(os.Stdout, "year-1 yield:    %.2f%%\n", run.YearOneYieldMean*100)
	return nil
}

func formatBreakeven(year float64) string {
	if math.IsInf(year, 1) || math.IsNaN(year) {
		return "never"
	}
	return fmt.Sprintf("%.1f", year)
}

// dryRunWriter satisfies the run persistence interface without writing
// anything, so simulate stays side-effect free.
type dryRunWriter struct{}

func (dryRunWriter) SaveRun(ctx context.Context, run storage.SimulationRun, trials []storage.TrialRecord) error {
	return nil
}
