package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/alerting"
	"proppulse-risk/internal/cashflow"
	"proppulse-risk/internal/config"
	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/ingest"
	"proppulse-risk/internal/scheduler"
	"proppulse-risk/internal/service"
	"proppulse-risk/internal/simulation"
	"proppulse-risk/internal/source"
	"proppulse-risk/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newSources() []source.Source {
	cfg := a.Config.Sources
	var sources []source.Source

	if cfg.STR.Enabled {
		sources = append(sources, source.NewSTRGlobal(source.STRGlobalOptions{
			BaseURL:   cfg.STR.BaseURL,
			APIKey:    cfg.STR.APIKey,
			Region:    cfg.STR.Region,
			Currency:  cfg.STR.Currency,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.STR.UserAgent,
		}, a.Logger))
	}

	if cfg.RentalIndex.Enabled {
		sources = append(sources, source.NewRentalIndex(source.RentalIndexOptions{
			BaseURL:   cfg.RentalIndex.BaseURL,
			APIToken:  cfg.RentalIndex.APIToken,
			Areas:     cfg.RentalIndex.Areas,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.RentalIndex.UserAgent,
		}, a.Logger))
	}

	if cfg.SwapCurve.Enabled {
		sources = append(sources, source.NewSwapCurveRSS(source.SwapCurveOptions{
			FeedURL:   cfg.SwapCurve.FeedURL,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.SwapCurve.UserAgent,
		}, a.Logger))
	}

	if cfg.Developers.Enabled {
		sources = append(sources, source.NewDeveloperDefaultsCSV(source.DeveloperDefaultsOptions{
			Path: cfg.Developers.Path,
		}, a.Logger))
	}

	return sources
}

func (a *App) newIngestor(store *storage.Store) *ingest.Ingestor {
	sources := a.newSources()
	if len(sources) == 0 {
		return nil
	}
	cfg := a.Config.Sources
	return ingest.New(sources, store, ingest.Options{
		Window:        cfg.Window,
		SourceTimeout: cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, a.Logger)
}

func (a *App) newSinks() []alerting.Sink {
	cfg := a.Config.Alerting
	var sinks []alerting.Sink

	if cfg.CRM.Enabled {
		sinks = append(sinks, alerting.NewCRMTaskSink(
			cfg.CRM.BaseURL, cfg.CRM.AccessToken, cfg.DashboardURL,
			cfg.CRM.RequestTimeout, a.Logger))
	}

	if cfg.Investor.Enabled {
		sinks = append(sinks, alerting.NewInvestorSink(
			cfg.Investor.BaseURL, cfg.Investor.APIToken, cfg.DashboardURL,
			cfg.Investor.RequestTimeout, a.Logger))
	}

	if cfg.Marketplace.Enabled {
		sinks = append(sinks, alerting.NewMarketplaceSink(
			cfg.Marketplace.BaseURL, cfg.Marketplace.APIToken,
			alerting.RepriceFactors{
				GreenToAmber: cfg.Marketplace.GreenToAmberDelta,
				AmberToRed:   cfg.Marketplace.AmberToRedDelta,
				GreenToRed:   cfg.Marketplace.GreenToRedDelta,
			},
			cfg.Marketplace.RequestTimeout, a.Logger))
	}

	return sinks
}

func (a *App) newDispatcher(store *storage.Store) *alerting.Dispatcher {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	sinks := a.newSinks()
	if len(sinks) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no sinks configured")
		return nil
	}
	return alerting.NewDispatcher(sinks, store, store, alerting.DispatchOptions{
		MaxRetries:   a.Config.Alerting.MaxRetries,
		RetryBackoff: a.Config.Alerting.RetryBackoff,
	}, a.Logger)
}

func (a *App) thresholds() grading.Thresholds {
	g := a.Config.Grading
	t := grading.Thresholds{
		GreenProbNegative:   g.GreenProbNegative,
		GreenDeveloperScore: g.GreenDeveloperScore,
		AmberProbNegative:   g.AmberProbNegative,
	}
	if t.GreenProbNegative == 0 && t.AmberProbNegative == 0 {
		return grading.DefaultThresholds()
	}
	return t
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	simCfg := a.Config.Simulation
	return service.New(service.Deps{
		Properties: store,
		Metrics:    store,
		Runs:       store,
		Builder:    cashflow.NewBuilder(cashflow.DefaultParams(), a.Logger),
		Simulator:  simulation.NewAgent(simCfg.Workers, a.Logger),
		Composer:   grading.NewComposer(a.thresholds()),
		Scores:     service.NewMetricScoreSource(store, a.Logger),
		Alerts:     alerting.NewAgent(store, store, store, a.Logger),
		Dispatcher: a.newDispatcher(store),
		Ingestor:   a.newIngestor(store),
		Scheduler:  sched,
	}, service.Options{
		TrialCount:    simCfg.TrialCount,
		Seed:          simCfg.Seed,
		MetricWindow:  simCfg.MetricWindow,
		MaxConcurrent: simCfg.MaxConcurrent,
	}, a.Logger)
}

// Run executes the long-running risk engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting risk engine")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("risk engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("risk engine stopped")
	return nil
}

// IngestOptions bound the historical ingestion window.
type IngestOptions struct {
	From time.Time
	To   time.Time
}

// ShowOptions configure the show command.
type ShowOptions struct {
	PropertyID string
	Limit      int
}

// SimulateOptions configure a one-off dry-run simulation.
type SimulateOptions struct {
	PropertyID string
	Trials     int
	Seed       uint64
}

// ExportOptions select a run and the artefacts to write.
type ExportOptions struct {
	PropertyID string
	RunID      string
	CSVPath    string
	PNGPath    string
}
