package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"proppulse-risk/internal/app"
)

var (
	ingestFrom string
	ingestTo   string
	ingestDays int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull market observations for a historical window",
	RunE: func(cmd *cobra.Command, args []string) error {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -ingestDays)

		if ingestFrom != "" {
			parsed, err := time.Parse(time.RFC3339, ingestFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			from = parsed
		}
		if ingestTo != "" {
			parsed, err := time.Parse(time.RFC3339, ingestTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			to = parsed
		}
		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Ingest(cmd.Context(), app.IngestOptions{From: from, To: to})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	ingestCmd.Flags().StringVar(&ingestTo, "to", "", "End timestamp (RFC3339, exclusive)")
	ingestCmd.Flags().IntVar(&ingestDays, "days", 30, "Window size in days when --from is omitted")
}
