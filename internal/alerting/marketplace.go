package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MarketplaceSink asks the secondary marketplace to haircut a property's list
// price after a downgrade. Upgrades and lateral transitions are delivered as
// successful no-ops so the event still counts as dispatched.
type MarketplaceSink struct {
	baseURL  string
	apiToken string
	factors  RepriceFactors
	client   *http.Client
	logger   zerolog.Logger
}

// NewMarketplaceSink constructs the reprice sink.
func NewMarketplaceSink(baseURL, apiToken string, factors RepriceFactors, timeout time.Duration, logger zerolog.Logger) *MarketplaceSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketplaceSink{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		factors:  factors,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_marketplace").Logger(),
	}
}

// Name identifies the sink in dispatch logs.
func (m *MarketplaceSink) Name() string { return "marketplace_reprice" }

// Deliver posts the price adjustment for downgrade transitions.
func (m *MarketplaceSink) Deliver(ctx context.Context, note Notification) error {
	factor := m.factors.Factor(note.PreviousGrade, note.NewGrade)
	if factor <= 0 {
		m.logger.Debug().
			Str("property_id", note.PropertyID).
			Str("transition", transitionLabel(note.PreviousGrade, note.NewGrade)).
			Msg("no repricing for transition")
		return nil
	}
	if m.baseURL == "" {
		return fmt.Errorf("marketplace base url not configured")
	}

	payload := map[string]any{
		"delta_factor": factor,
		"reason":       fmt.Sprintf("risk grade downgrade: %s", transitionLabel(note.PreviousGrade, note.NewGrade)),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reprice request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/listings/%s/price", m.baseURL, url.PathEscape(note.PropertyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reprice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send reprice request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("marketplace returned status %d", resp.StatusCode)
	}

	m.logger.Info().
		Str("property_id", note.PropertyID).
		Float64("delta_factor", factor).
		Msg("listing repriced after downgrade")
	return nil
}

var _ Sink = (*MarketplaceSink)(nil)
