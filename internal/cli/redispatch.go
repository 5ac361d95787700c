package cli

import (
	"github.com/spf13/cobra"
)

var redispatchCmd = &cobra.Command{
	Use:   "redispatch",
	Short: "Retry delivery of alert events with failed sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Redispatch(cmd.Context())
	},
}
