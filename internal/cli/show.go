package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"proppulse-risk/internal/app"
)

var (
	showProperty string
	showLimit    int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent simulation runs for a property",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showProperty == "" {
			return errors.New("--property must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Show(cmd.Context(), app.ShowOptions{
			PropertyID: showProperty,
			Limit:      showLimit,
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showProperty, "property", "", "Property identifier")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of runs to display")
}
