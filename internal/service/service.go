package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"proppulse-risk/internal/alerting"
	"proppulse-risk/internal/cashflow"
	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/ingest"
	"proppulse-risk/internal/scheduler"
	"proppulse-risk/internal/simulation"
	"proppulse-risk/internal/storage"
)

// PropertyReader is the slice of assumption storage the pipeline needs.
type PropertyReader interface {
	GetAssumptions(ctx context.Context, propertyID string) (storage.PropertyAssumptions, error)
	ListProperties(ctx context.Context) ([]storage.PropertyAssumptions, error)
}

// MetricReader feeds recent observations into the model builder.
type MetricReader interface {
	ListMetricsSince(ctx context.Context, regions []string, since time.Time) ([]storage.MarketMetric, error)
}

// RunWriter persists a completed run atomically.
type RunWriter interface {
	SaveRun(ctx context.Context, run storage.SimulationRun, trials []storage.TrialRecord) error
}

// Options tune pipeline behaviour.
type Options struct {
	TrialCount    int
	Seed          uint64
	MetricWindow  time.Duration
	MaxConcurrent int
	// GlobalRegions are always included when loading metrics for a build:
	// swap curves and default history are not scoped to the property's market.
	GlobalRegions []string
}

func (o Options) withDefaults() Options {
	if o.TrialCount <= 0 {
		o.TrialCount = 5000
	}
	if o.MetricWindow <= 0 {
		o.MetricWindow = 90 * 24 * time.Hour
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if len(o.GlobalRegions) == 0 {
		o.GlobalRegions = []string{"UAE", "US", ""}
	}
	return o
}

// Service orchestrates the per-property risk pipeline: build a cash-flow
// model from stored assumptions and recent metrics, simulate, persist the run
// atomically, grade it, and react to grade transitions.
type Service struct {
	properties PropertyReader
	metrics    MetricReader
	runs       RunWriter
	builder    *cashflow.Builder
	simulator  *simulation.Agent
	composer   *grading.Composer
	scores     grading.DeveloperScoreSource
	alerts     *alerting.Agent
	dispatcher *alerting.Dispatcher
	ingestor   *ingest.Ingestor
	sched      *scheduler.Scheduler
	opts       Options
	logger     zerolog.Logger
}

// Deps bundles the collaborators the service wires together.
type Deps struct {
	Properties PropertyReader
	Metrics    MetricReader
	Runs       RunWriter
	Builder    *cashflow.Builder
	Simulator  *simulation.Agent
	Composer   *grading.Composer
	Scores     grading.DeveloperScoreSource
	Alerts     *alerting.Agent
	Dispatcher *alerting.Dispatcher
	Ingestor   *ingest.Ingestor
	Scheduler  *scheduler.Scheduler
}

// New constructs the pipeline service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		properties: deps.Properties,
		metrics:    deps.Metrics,
		runs:       deps.Runs,
		builder:    deps.Builder,
		simulator:  deps.Simulator,
		composer:   deps.Composer,
		scores:     deps.Scores,
		alerts:     deps.Alerts,
		dispatcher: deps.Dispatcher,
		ingestor:   deps.Ingestor,
		sched:      deps.Scheduler,
		opts:       opts.withDefaults(),
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled loop: each tick ingests fresh market data and then
// reprocesses every property.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, s.Tick)
}

// Tick is one scheduled cycle. Ingestion failures degrade the build inputs
// but never block the per-property pass.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	if s.ingestor != nil {
		report, err := s.ingestor.RunCycle(ctx)
		if err != nil {
			return err
		}
		s.logger.Info().
			Time("bucket", bucket).
			Int("sources", len(report.Results)).
			Int("failed", report.FailedSources()).
			Dur("ingest_duration", report.Duration).
			Msg("ingest cycle finished")
	}
	return s.ProcessAll(ctx)
}

// ProcessAll runs the pipeline for every stored property with bounded
// concurrency. Per-property failures are logged and counted, not propagated;
// a property with broken assumptions must not starve the rest of the book.
func (s *Service) ProcessAll(ctx context.Context) error {
	properties, err := s.properties.ListProperties(ctx)
	if err != nil {
		return fmt.Errorf("list properties: %w", err)
	}

	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)
	for _, property := range properties {
		g.Go(func() error {
			if _, err := s.ProcessProperty(gctx, property.PropertyID); err != nil {
				failures.Add(1)
				s.logger.Error().Err(err).
					Str("property_id", property.PropertyID).
					Msg("property pipeline failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info().
		Int("properties", len(properties)).
		Int64("failures", failures.Load()).
		Msg("processing pass finished")
	return ctx.Err()
}

// ProcessProperty executes the full pipeline for one property and returns the
// persisted run. Persistence failure aborts before any grade or alert is
// derived; the caller may retry the whole run.
func (s *Service) ProcessProperty(ctx context.Context, propertyID string) (storage.SimulationRun, error) {
	assumptions, err := s.properties.GetAssumptions(ctx, propertyID)
	if err != nil {
		return storage.SimulationRun{}, fmt.Errorf("load assumptions: %w", err)
	}

	points, err := s.recentMetrics(ctx, assumptions.Region)
	if err != nil {
		return storage.SimulationRun{}, fmt.Errorf("load metrics: %w", err)
	}

	score := s.developerScore(ctx, assumptions)

	model, err := s.builder.Build(toBuilderAssumptions(assumptions, score), points)
	if err != nil {
		return storage.SimulationRun{}, fmt.Errorf("build model: %w", err)
	}

	result, err := s.simulator.Run(model, s.opts.TrialCount, s.opts.Seed)
	if err != nil {
		return storage.SimulationRun{}, fmt.Errorf("simulate: %w", err)
	}

	grade := s.composer.Grade(result.ProbNegativeIRR, score)
	run := storage.SimulationRun{
		RunID:             uuid.New(),
		PropertyID:        propertyID,
		Seed:              result.Seed,
		TrialCount:        result.TrialCount,
		InvalidTrialCount: result.InvalidTrialCount,
		MeanIRR:           result.MeanIRR,
		Percentiles:       result.Percentiles,
		ProbNegativeIRR:   result.ProbNegativeIRR,
		BreakevenYearMean: result.BreakevenYearMean,
		YearOneYieldMean:  result.YearOneYieldMean,
		Histogram:         result.Histogram,
		Grade:             grade,
		DeveloperScore:    score,
	}

	trials := make([]storage.TrialRecord, len(result.Trials))
	for i, trial := range result.Trials {
		trials[i] = storage.TrialRecord{
			RunID:         run.RunID,
			TrialIndex:    trial.Index,
			IRR:           trial.IRR,
			NPV:           trial.NPV,
			TerminalValue: trial.TerminalValue,
			Valid:         trial.Valid,
		}
	}

	if err := s.runs.SaveRun(ctx, run, trials); err != nil {
		return storage.SimulationRun{}, fmt.Errorf("persist run: %w", err)
	}

	s.logger.Info().
		Str("property_id", propertyID).
		Str("run_id", run.RunID.String()).
		Str("grade", grade.String()).
		Float64("prob_negative_irr", run.ProbNegativeIRR).
		Float64("mean_irr", run.MeanIRR).
		Msg("run persisted")

	if s.alerts != nil {
		event, err := s.alerts.Check(ctx, propertyID, run.RunID, grade)
		if err != nil {
			// The run is already durable and graded; alert bookkeeping
			// failures surface on the next check for this property.
			s.logger.Error().Err(err).Str("property_id", propertyID).Msg("alert check failed")
			return run, nil
		}
		if event != nil && s.dispatcher != nil {
			if err := s.dispatcher.Dispatch(ctx, *event); err != nil {
				s.logger.Warn().Err(err).
					Int64("event_id", event.ID).
					Msg("dispatch incomplete, event left for redispatch")
			}
		}
	}
	return run, nil
}

func (s *Service) recentMetrics(ctx context.Context, region string) ([]cashflow.MetricPoint, error) {
	regions := append([]string{region}, s.opts.GlobalRegions...)
	metrics, err := s.metrics.ListMetricsSince(ctx, regions, time.Now().UTC().Add(-s.opts.MetricWindow))
	if err != nil {
		return nil, err
	}
	points := make([]cashflow.MetricPoint, len(metrics))
	for i, m := range metrics {
		points[i] = cashflow.MetricPoint{
			MetricType: m.MetricType,
			ObservedAt: m.ObservedAt,
			Value:      m.Value,
		}
	}
	return points, nil
}

func (s *Service) developerScore(ctx context.Context, a storage.PropertyAssumptions) int {
	fallback := a.DeveloperRiskScore
	if fallback <= 0 {
		fallback = 3
	}
	if s.scores == nil || a.DeveloperID == "" {
		return fallback
	}
	score, err := s.scores.Lookup(ctx, a.DeveloperID)
	if err != nil {
		if !errors.Is(err, ErrNoScore) {
			s.logger.Warn().Err(err).
				Str("developer_id", a.DeveloperID).
				Msg("developer score lookup failed, using underwritten score")
		}
		return fallback
	}
	return score
}

func toBuilderAssumptions(a storage.PropertyAssumptions, score int) cashflow.Assumptions {
	return cashflow.Assumptions{
		PropertyID:         a.PropertyID,
		DeveloperID:        a.DeveloperID,
		PurchasePrice:      a.PurchasePrice.InexactFloat64(),
		SizeSqft:           a.SizeSqft,
		BaseDailyRate:      a.BaseDailyRate.InexactFloat64(),
		BaseOccupancy:      a.BaseOccupancy,
		ServiceChargeRate:  a.ServiceChargeRate.InexactFloat64(),
		AppreciationMean:   a.AppreciationMean,
		AppreciationStdev:  a.AppreciationStdev,
		HorizonYears:       a.HorizonYears,
		DeveloperRiskScore: score,
	}
}
