package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

// RentalIndexOptions parameterise the rent index fetcher.
type RentalIndexOptions struct {
	BaseURL   string
	APIToken  string
	Areas     []string
	Timeout   time.Duration
	UserAgent string
}

// RentalIndex pulls the residential rent index from the rentals API.
type RentalIndex struct {
	opts   RentalIndexOptions
	logger zerolog.Logger
	client *http.Client
}

// NewRentalIndex constructs the fetcher.
func NewRentalIndex(opts RentalIndexOptions, logger zerolog.Logger) *RentalIndex {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RentalIndex{
		opts:   opts,
		logger: logger.With().Str("component", "source_rental_index").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies this provider in metric rows and ingest reports.
func (r *RentalIndex) Name() string { return "rental_index" }

// Region returns the first configured area; individual observations carry
// their own area.
func (r *RentalIndex) Region() string {
	if len(r.opts.Areas) > 0 {
		return r.opts.Areas[0]
	}
	return ""
}

type rentalIndexResponse struct {
	Indices []struct {
		Date       string  `json:"date"`
		IndexValue float64 `json:"index_value"`
		Area       string  `json:"area"`
	} `json:"indices"`
}

// Fetch retrieves rent index observations for the date range.
func (r *RentalIndex) Fetch(ctx context.Context, from, to time.Time) ([]RawObservation, error) {
	if r.opts.BaseURL == "" {
		return nil, permanentErr(r.Name(), fmt.Errorf("base url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.opts.BaseURL, "/")+"/index", nil)
	if err != nil {
		return nil, permanentErr(r.Name(), err)
	}
	q := req.URL.Query()
	q.Set("start_date", from.Format(strDateLayout))
	q.Set("end_date", to.Format(strDateLayout))
	q.Set("index_type", "rental")
	q.Set("areas", strings.Join(r.opts.Areas, ","))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Token "+r.opts.APIToken)
	req.Header.Set("Accept", "application/json")
	if r.opts.UserAgent != "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(r.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr(r.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(r.Name(), resp.StatusCode, body)
	}

	var parsed rentalIndexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, permanentErr(r.Name(), fmt.Errorf("decode response: %w", err))
	}

	observations := make([]RawObservation, 0, len(parsed.Indices))
	for _, item := range parsed.Indices {
		observedAt, err := time.Parse(strDateLayout, item.Date)
		if err != nil {
			return nil, permanentErr(r.Name(), fmt.Errorf("parse date %q: %w", item.Date, err))
		}
		observations = append(observations, RawObservation{
			MetricType: cashflow.MetricRentIndex,
			Region:     item.Area,
			ObservedAt: observedAt,
			Value:      item.IndexValue,
		})
	}
	return observations, nil
}

var _ Source = (*RentalIndex)(nil)
