package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
	"proppulse-risk/internal/grading"
)

// MetricValueReader is the slice of metric storage the score source needs.
type MetricValueReader interface {
	LatestMetricValue(ctx context.Context, metricType string) (float64, time.Time, error)
}

// ErrNoScore indicates no default history exists for the developer.
var ErrNoScore = errors.New("no developer default history")

// MetricScoreSource derives a developer risk score from ingested default
// history: the most recent default severity, clamped to the 1..5 scale the
// composer grades against. Developers with no recorded defaults have no
// metric-backed score; callers fall back to the underwritten value.
type MetricScoreSource struct {
	metrics MetricValueReader
	logger  zerolog.Logger
}

// NewMetricScoreSource constructs the source.
func NewMetricScoreSource(metrics MetricValueReader, logger zerolog.Logger) *MetricScoreSource {
	return &MetricScoreSource{
		metrics: metrics,
		logger:  logger.With().Str("component", "developer_score").Logger(),
	}
}

// Lookup returns the developer's metric-backed risk score, or ErrNoScore when
// the developer has no default history.
func (s *MetricScoreSource) Lookup(ctx context.Context, developerID string) (int, error) {
	severity, observedAt, err := s.metrics.LatestMetricValue(ctx, cashflow.MetricDevDefault+":"+developerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoScore
		}
		return 0, err
	}

	score := int(math.Round(severity))
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}

	s.logger.Debug().
		Str("developer_id", developerID).
		Float64("severity", severity).
		Time("observed_at", observedAt).
		Int("score", score).
		Msg("developer score derived from default history")
	return score, nil
}

var _ grading.DeveloperScoreSource = (*MetricScoreSource)(nil)
