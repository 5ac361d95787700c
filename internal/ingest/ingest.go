package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"proppulse-risk/internal/source"
	"proppulse-risk/internal/storage"
)

// Options tune the ingestion cycle.
type Options struct {
	// Window is how far back each cycle asks providers for observations.
	Window time.Duration
	// SourceTimeout bounds one provider attempt, retries included use a fresh budget.
	SourceTimeout time.Duration
	// MaxRetries is the number of re-attempts after a transient failure.
	MaxRetries int
	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 30 * 24 * time.Hour
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// SourceResult reports one provider's outcome within a cycle.
type SourceResult struct {
	Source   string
	Fetched  int
	Stored   int
	Attempts int
	Err      error
}

// Report aggregates one ingestion cycle across all providers.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   []SourceResult
}

// FailedSources counts providers that exhausted their attempts.
func (r Report) FailedSources() int {
	failed := 0
	for _, res := range r.Results {
		if res.Err != nil {
			failed++
		}
	}
	return failed
}

// Ingestor pulls observations from every configured provider and upserts them
// into the metric store. Providers run concurrently; one failing provider
// never blocks the others, and re-running a cycle is idempotent because every
// point upserts on its identity tuple.
type Ingestor struct {
	sources []source.Source
	store   storage.MetricStore
	opts    Options
	logger  zerolog.Logger
}

// New constructs an Ingestor.
func New(sources []source.Source, store storage.MetricStore, opts Options, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		sources: sources,
		store:   store,
		opts:    opts.withDefaults(),
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// RunCycle fetches the trailing window from every provider concurrently and
// persists what arrived.
func (i *Ingestor) RunCycle(ctx context.Context) (Report, error) {
	now := time.Now().UTC()
	return i.Ingest(ctx, now.Add(-i.opts.Window), now)
}

// Ingest fetches an explicit date range from every provider concurrently and
// persists what arrived. The returned report carries per-provider outcomes;
// the error is non-nil only when the context was cancelled.
func (i *Ingestor) Ingest(ctx context.Context, from, to time.Time) (Report, error) {
	started := time.Now().UTC()

	results := make([]SourceResult, len(i.sources))
	g, gctx := errgroup.WithContext(ctx)
	for idx, src := range i.sources {
		g.Go(func() error {
			results[idx] = i.runSource(gctx, src, from, to)
			return nil
		})
	}
	// Worker funcs never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()

	report := Report{
		StartedAt: started,
		Duration:  time.Since(started),
		Results:   results,
	}

	for _, res := range report.Results {
		evt := i.logger.Info()
		if res.Err != nil {
			evt = i.logger.Warn().Err(res.Err)
		}
		evt.Str("source", res.Source).
			Int("fetched", res.Fetched).
			Int("stored", res.Stored).
			Int("attempts", res.Attempts).
			Msg("source ingest finished")
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (i *Ingestor) runSource(ctx context.Context, src source.Source, from, to time.Time) SourceResult {
	result := SourceResult{Source: src.Name()}

	var observations []source.RawObservation
	backoff := i.opts.RetryBackoff
	for attempt := 0; attempt <= i.opts.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		fetchCtx, cancel := context.WithTimeout(ctx, i.opts.SourceTimeout)
		obs, err := src.Fetch(fetchCtx, from, to)
		cancel()
		if err == nil {
			observations = obs
			result.Err = nil
			break
		}

		result.Err = err
		if !source.IsTransient(err) {
			// Permanent failures (auth, schema drift) do not heal on retry.
			break
		}
		if attempt == i.opts.MaxRetries {
			break
		}

		i.logger.Debug().
			Str("source", src.Name()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("transient source failure, retrying")

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if result.Err != nil {
		return result
	}

	result.Fetched = len(observations)
	for _, obs := range observations {
		metric := storage.MarketMetric{
			Source:     src.Name(),
			Region:     obs.Region,
			MetricType: obs.MetricType,
			ObservedAt: obs.ObservedAt.UTC(),
			Value:      obs.Value,
		}
		if err := i.store.UpsertMetric(ctx, metric); err != nil {
			result.Err = err
			return result
		}
		result.Stored++
	}
	return result
}
