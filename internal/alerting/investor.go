package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InvestorSink pushes a short grade-transition message to every investor in a
// property through the platform's messaging gateway.
type InvestorSink struct {
	baseURL      string
	apiToken     string
	dashboardURL string
	client       *http.Client
	logger       zerolog.Logger
}

// NewInvestorSink constructs the investor notification sink.
func NewInvestorSink(baseURL, apiToken, dashboardURL string, timeout time.Duration, logger zerolog.Logger) *InvestorSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InvestorSink{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiToken:     apiToken,
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "alert_investor").Logger(),
	}
}

// Name identifies the sink in dispatch logs.
func (s *InvestorSink) Name() string { return "investor_notify" }

// Deliver posts the rendered message; the gateway fans it out to the
// property's investor list.
func (s *InvestorSink) Deliver(ctx context.Context, note Notification) error {
	if s.baseURL == "" {
		return fmt.Errorf("notification base url not configured")
	}

	payload := map[string]string{
		"property_id":    note.PropertyID,
		"previous_grade": note.PreviousGrade.String(),
		"new_grade":      note.NewGrade.String(),
		"message":        s.renderMessage(note),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notifications/risk", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	s.logger.Info().
		Str("property_id", note.PropertyID).
		Str("transition", transitionLabel(note.PreviousGrade, note.NewGrade)).
		Msg("investor notification sent")
	return nil
}

func (s *InvestorSink) renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("*Risk Update – %s*\n", note.PropertyID))
	builder.WriteString(fmt.Sprintf("Grade: %s → %s\n", gradeEmoji(note.PreviousGrade), gradeEmoji(note.NewGrade)))
	builder.WriteString(fmt.Sprintf("P(IRR<0): %.1f%%\n", note.ProbNegative*100))
	builder.WriteString(fmt.Sprintf("Mean IRR: %.1f%%\n", note.MeanIRR*100))
	builder.WriteString("Action: " + actionLine(note.PreviousGrade, note.NewGrade) + "\n")
	if s.dashboardURL != "" {
		builder.WriteString("\U0001F517 Dashboard: " + dashboardLink(s.dashboardURL, note.PropertyID) + "\n")
	}
	return builder.String()
}

var _ Sink = (*InvestorSink)(nil)
