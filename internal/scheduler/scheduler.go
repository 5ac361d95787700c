package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per scheduled cycle with the cycle's bucket time.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune cycle cadence.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	RunOnStart   bool
	StartupDelay time.Duration
}

// Scheduler drives periodic risk cycles. Tick errors are logged and the loop
// continues; only context cancellation stops it.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick each interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, time.Now().UTC(), tick)
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		s.logger.Debug().Time("next_cycle", next).Msg("waiting for next cycle")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		s.fire(ctx, s.bucketStart(next), tick)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, bucket time.Time, tick TickFunc) {
	s.logger.Info().Time("bucket", bucket).Msg("starting risk cycle")
	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("risk cycle failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
