package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"proppulse-risk/internal/app"
)

var (
	simulateProperty string
	simulateTrials   int
	simulateSeed     uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a one-off simulation without persisting or alerting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateProperty == "" {
			return errors.New("--property must be provided")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			PropertyID: simulateProperty,
			Trials:     simulateTrials,
			Seed:       simulateSeed,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateProperty, "property", "", "Property identifier")
	simulateCmd.Flags().IntVar(&simulateTrials, "trials", 0, "Trial count (defaults to config)")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", 0, "Random seed (defaults to config)")
}
