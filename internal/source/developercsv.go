package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

// DeveloperDefaultsOptions parameterise the developer default history source.
type DeveloperDefaultsOptions struct {
	Path string
}

// DeveloperDefaultsCSV reads developer default severities from a local CSV
// with columns developer_id,developer_name,default_date,severity_score,notes.
type DeveloperDefaultsCSV struct {
	opts   DeveloperDefaultsOptions
	logger zerolog.Logger
}

// NewDeveloperDefaultsCSV constructs the source.
func NewDeveloperDefaultsCSV(opts DeveloperDefaultsOptions, logger zerolog.Logger) *DeveloperDefaultsCSV {
	return &DeveloperDefaultsCSV{
		opts:   opts,
		logger: logger.With().Str("component", "source_developer_csv").Logger(),
	}
}

// Name identifies this provider in metric rows and ingest reports.
func (d *DeveloperDefaultsCSV) Name() string { return "developer_defaults_csv" }

// Region is empty: default history is not region-scoped.
func (d *DeveloperDefaultsCSV) Region() string { return "" }

// Fetch parses the CSV and returns defaults observed within the date range.
// The developer id is folded into the metric type so each developer keeps an
// independent series under the (source, region, type, date) key.
func (d *DeveloperDefaultsCSV) Fetch(ctx context.Context, from, to time.Time) ([]RawObservation, error) {
	if d.opts.Path == "" {
		return nil, permanentErr(d.Name(), fmt.Errorf("csv path not configured"))
	}

	file, err := os.Open(d.opts.Path)
	if err != nil {
		return nil, permanentErr(d.Name(), fmt.Errorf("open csv: %w", err))
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, permanentErr(d.Name(), fmt.Errorf("read header: %w", err))
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"developer_id", "default_date", "severity_score"} {
		if _, ok := cols[required]; !ok {
			return nil, permanentErr(d.Name(), fmt.Errorf("csv missing column %q", required))
		}
	}

	var observations []RawObservation
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, transientErr(d.Name(), err)
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, permanentErr(d.Name(), fmt.Errorf("read row: %w", err))
		}

		developerID := row[cols["developer_id"]]
		observedAt, dateErr := time.Parse(strDateLayout, row[cols["default_date"]])
		severity, sevErr := strconv.ParseFloat(row[cols["severity_score"]], 64)
		if developerID == "" || dateErr != nil || sevErr != nil {
			skipped++
			continue
		}
		if observedAt.Before(from) || observedAt.After(to) {
			continue
		}

		observations = append(observations, RawObservation{
			MetricType: cashflow.MetricDevDefault + ":" + developerID,
			Region:     "",
			ObservedAt: observedAt,
			Value:      severity,
		})
	}
	if skipped > 0 {
		d.logger.Warn().Int("skipped", skipped).Str("path", d.opts.Path).Msg("skipped malformed developer default rows")
	}
	return observations, nil
}

var _ Source = (*DeveloperDefaultsCSV)(nil)
