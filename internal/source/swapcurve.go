package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

// SwapCurveOptions parameterise the central-bank rates feed.
type SwapCurveOptions struct {
	FeedURL   string
	Timeout   time.Duration
	UserAgent string
}

// SwapCurveRSS reads AED swap and SOFR tenor rates from a central-bank RSS
// feed. Rates arrive as "tenor: value%" lines inside item descriptions.
type SwapCurveRSS struct {
	opts   SwapCurveOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSwapCurveRSS constructs the fetcher.
func NewSwapCurveRSS(opts SwapCurveOptions, logger zerolog.Logger) *SwapCurveRSS {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SwapCurveRSS{
		opts:   opts,
		logger: logger.With().Str("component", "source_swap_curve").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies this provider in metric rows and ingest reports.
func (s *SwapCurveRSS) Name() string { return "central_bank_rss" }

// Region returns the issuing jurisdiction of the curve.
func (s *SwapCurveRSS) Region() string { return "UAE" }

type rssFeed struct {
	Items []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Fetch retrieves the current published curve. The feed carries no
// historical window, so publications outside [from, to] are skipped.
func (s *SwapCurveRSS) Fetch(ctx context.Context, from, to time.Time) ([]RawObservation, error) {
	if s.opts.FeedURL == "" {
		return nil, permanentErr(s.Name(), fmt.Errorf("feed url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.FeedURL, nil)
	if err != nil {
		return nil, permanentErr(s.Name(), err)
	}
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

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, permanentErr(s.Name(), fmt.Errorf("decode rss: %w", err))
	}

	var observations []RawObservation
	for _, item := range feed.Items {
		observedAt, ok := parsePubDate(item.PubDate)
		if !ok {
			observedAt = time.Now().UTC()
		}
		observedAt = observedAt.Truncate(24 * time.Hour)
		if observedAt.Before(from) || observedAt.After(to) {
			continue
		}

		var metricType, region string
		switch {
		case strings.Contains(item.Title, "AED Swap"):
			metricType = cashflow.MetricSwapRate
			region = "UAE"
		case strings.Contains(item.Title, "SOFR"):
			metricType = cashflow.MetricSwapRate
			region = "US"
		default:
			continue
		}

		for tenor, rate := range parseRateLines(item.Description) {
			observations = append(observations, RawObservation{
				MetricType: metricType + ":" + tenor,
				Region:     region,
				ObservedAt: observedAt,
				Value:      rate,
			})
		}
	}
	return observations, nil
}

func parsePubDate(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseRateLines extracts "tenor: rate%" pairs from a description block.
// Malformed lines are skipped rather than failing the whole item.
func parseRateLines(description string) map[string]float64 {
	rates := make(map[string]float64)
	for _, line := range strings.Split(description, "\n") {
		tenor, rateStr, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		tenor = normalizeTenor(tenor)
		rateStr = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rateStr), "%"))
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || tenor == "" {
			continue
		}
		rates[tenor] = rate
	}
	return rates
}

func normalizeTenor(v string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
}

var _ Source = (*SwapCurveRSS)(nil)
