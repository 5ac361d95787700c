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

// CRMTaskSink raises a follow-up task for the property's owner agent in the
// CRM whenever a grade transition fires.
type CRMTaskSink struct {
	baseURL      string
	accessToken  string
	dashboardURL string
	client       *http.Client
	logger       zerolog.Logger
}

// NewCRMTaskSink constructs the CRM sink.
func NewCRMTaskSink(baseURL, accessToken, dashboardURL string, timeout time.Duration, logger zerolog.Logger) *CRMTaskSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CRMTaskSink{
		baseURL:      strings.TrimRight(baseURL, "/"),
		accessToken:  accessToken,
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "alert_crm").Logger(),
	}
}

// Name identifies the sink in dispatch logs.
func (c *CRMTaskSink) Name() string { return "crm_task" }

type crmTask struct {
	Subject     string `json:"Subject"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	DueDate     string `json:"Due_Date"`
}

// Deliver creates a high-priority review task via the CRM tasks API.
func (c *CRMTaskSink) Deliver(ctx context.Context, note Notification) error {
	if c.baseURL == "" {
		return fmt.Errorf("crm base url not configured")
	}

	kind := "Change"
	if note.NewGrade.IsDowngrade(note.PreviousGrade) {
		kind = "Downgrade"
	}
	task := crmTask{
		Subject:     fmt.Sprintf("Risk Grade %s: %s (%s)", kind, note.PropertyID, transitionLabel(note.PreviousGrade, note.NewGrade)),
		Description: c.renderDescription(note),
		Priority:    "High",
		Status:      "Not Started",
		DueDate:     note.OccurredAt.Add(24 * time.Hour).Format("2006-01-02"),
	}
	body, err := json.Marshal(map[string][]crmTask{"data": {task}})
	if err != nil {
		return fmt.Errorf("marshal crm task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crm/v2/Tasks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Zoho-oauthtoken "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send crm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm task creation returned status %d", resp.StatusCode)
	}

	c.logger.Info().
		Str("property_id", note.PropertyID).
		Str("transition", transitionLabel(note.PreviousGrade, note.NewGrade)).
		Msg("crm task created")
	return nil
}

func (c *CRMTaskSink) renderDescription(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Risk grade for property %s changed from %s to %s.\n\n",
		note.PropertyID, note.PreviousGrade, note.NewGrade))
	builder.WriteString("Risk Metrics:\n")
	builder.WriteString(fmt.Sprintf("- P(IRR<0): %.2f%%\n", note.ProbNegative*100))
	builder.WriteString(fmt.Sprintf("- Mean IRR: %.2f%%\n", note.MeanIRR*100))
	builder.WriteString(fmt.Sprintf("- 5th Percentile IRR (VaR): %.2f%%\n", note.IRRP5*100))
	builder.WriteString(fmt.Sprintf("- Breakeven Year: %.1f\n\n", note.BreakevenYear))
	builder.WriteString("Please review the property and contact investors if necessary.\n")
	if c.dashboardURL != "" {
		builder.WriteString("Dashboard: " + dashboardLink(c.dashboardURL, note.PropertyID) + "\n")
	}
	return builder.String()
}

var _ Sink = (*CRMTaskSink)(nil)
