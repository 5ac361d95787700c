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

const strDateLayout = "2006-01-02"

// STRGlobalOptions parameterise the hotel metrics fetcher.
type STRGlobalOptions struct {
	BaseURL   string
	APIKey    string
	Region    string
	Currency  string
	Timeout   time.Duration
	UserAgent string
}

// STRGlobal pulls daily ADR and RevPAR observations from the STR metrics API.
type STRGlobal struct {
	opts   STRGlobalOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSTRGlobal constructs the fetcher.
func NewSTRGlobal(opts STRGlobalOptions, logger zerolog.Logger) *STRGlobal {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "AED"
	}
	return &STRGlobal{
		opts:   opts,
		logger: logger.With().Str("component", "source_str").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies this provider in metric rows and ingest reports.
func (s *STRGlobal) Name() string { return "str_global" }

// Region returns the configured market region.
func (s *STRGlobal) Region() string { return s.opts.Region }

type strResponse struct {
	Data []struct {
		Date   string  `json:"date"`
		Metric string  `json:"metric"`
		Value  float64 `json:"value"`
		Region string  `json:"region"`
	} `json:"data"`
}

// Fetch retrieves ADR/RevPAR observations for the date range.
func (s *STRGlobal) Fetch(ctx context.Context, from, to time.Time) ([]RawObservation, error) {
	if s.opts.BaseURL == "" {
		return nil, permanentErr(s.Name(), fmt.Errorf("base url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.opts.BaseURL, "/")+"/metrics", nil)
	if err != nil {
		return nil, permanentErr(s.Name(), err)
	}
	q := req.URL.Query()
	q.Set("startDate", from.Format(strDateLayout))
	q.Set("endDate", to.Format(strDateLayout))
	q.Set("metrics", "ADR,RevPAR")
	q.Set("regions", s.opts.Region)
	q.Set("currency", s.opts.Currency)
	q.Set("frequency", "daily")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	req.Header.Set("Accept", "application/json")
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(s.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr(s.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(s.Name(), resp.StatusCode, body)
	}

	var parsed strResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, permanentErr(s.Name(), fmt.Errorf("decode response: %w", err))
	}

	observations := make([]RawObservation, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		observedAt, err := time.Parse(strDateLayout, item.Date)
		if err != nil {
			return nil, permanentErr(s.Name(), fmt.Errorf("parse date %q: %w", item.Date, err))
		}
		metricType := cashflow.MetricADR
		if strings.EqualFold(item.Metric, "RevPAR") {
			metricType = cashflow.MetricRevPAR
		}
		region := item.Region
		if region == "" {
			region = s.opts.Region
		}
		observations = append(observations, RawObservation{
			MetricType: metricType,
			Region:     region,
			ObservedAt: observedAt,
			Value:      item.Value,
		})
	}
	return observations, nil
}

var _ Source = (*STRGlobal)(nil)
