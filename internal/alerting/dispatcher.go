package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proppulse-risk/internal/storage"
)

// DispatchOptions tune per-sink delivery retries.
type DispatchOptions struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

func (o DispatchOptions) withDefaults() DispatchOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	return o
}

// RunReader loads the persisted aggregate an event points at.
type RunReader interface {
	GetRun(ctx context.Context, runID uuid.UUID) (storage.SimulationRun, error)
}

// EventStore is the slice of alert storage dispatch needs.
type EventStore interface {
	ListUndispatchedAlerts(ctx context.Context) ([]storage.AlertEvent, error)
	MarkAlertDispatched(ctx context.Context, id int64) error
}

// Dispatcher fans a persisted AlertEvent out to every configured sink. The
// event is already durable before Dispatch runs, so delivery failures are
// retryable forever without recomputing anything; the dispatched flag is set
// only after every sink has accepted the notification.
type Dispatcher struct {
	sinks  []Sink
	runs   RunReader
	alerts EventStore
	opts   DispatchOptions
	logger zerolog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sinks []Sink, runs RunReader, alerts EventStore, opts DispatchOptions, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		runs:   runs,
		alerts: alerts,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "alert_dispatch").Logger(),
	}
}

// Dispatch delivers one event to every sink and marks it dispatched when all
// sinks succeed. A partial delivery leaves the flag unset for redispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, event storage.AlertEvent) error {
	note, err := d.buildNotification(ctx, event)
	if err != nil {
		return err
	}

	var failed []error
	for _, sink := range d.sinks {
		if err := d.deliverWithRetry(ctx, sink, note); err != nil {
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("property_id", event.PropertyID).
				Int64("event_id", event.ID).
				Msg("sink delivery failed")
			failed = append(failed, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("dispatch event %d: %w", event.ID, errors.Join(failed...))
	}

	if err := d.alerts.MarkAlertDispatched(ctx, event.ID); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	d.logger.Info().
		Str("property_id", event.PropertyID).
		Int64("event_id", event.ID).
		Msg("alert dispatched to all sinks")
	return nil
}

// Redispatch retries every event whose sinks have not all been notified yet.
// It returns the number of events fully delivered this pass.
func (d *Dispatcher) Redispatch(ctx context.Context) (int, error) {
	pending, err := d.alerts.ListUndispatchedAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list undispatched: %w", err)
	}

	delivered := 0
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := d.Dispatch(ctx, event); err != nil {
			d.logger.Warn().Err(err).Int64("event_id", event.ID).Msg("redispatch attempt failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, sink Sink, note Notification) error {
	backoff := d.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		lastErr = sink.Deliver(ctx, note)
		if lastErr == nil {
			return nil
		}
		if attempt == d.opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func (d *Dispatcher) buildNotification(ctx context.Context, event storage.AlertEvent) (Notification, error) {
	run, err := d.runs.GetRun(ctx, event.RunID)
	if err != nil {
		return Notification{}, fmt.Errorf("load run for event %d: %w", event.ID, err)
	}
	return Notification{
		PropertyID:    event.PropertyID,
		RunID:         event.RunID,
		PreviousGrade: event.PreviousGrade,
		NewGrade:      event.NewGrade,
		ProbNegative:  run.ProbNegativeIRR,
		MeanIRR:       run.MeanIRR,
		IRRP5:         run.Percentiles.P5,
		BreakevenYear: run.BreakevenYearMean,
		OccurredAt:    event.CreatedAt,
	}, nil
}
