package cli

import (
	"github.com/spf13/cobra"

	"proppulse-risk/internal/app"
)

var (
	exportProperty string
	exportRunID    string
	exportCSVPath  string
	exportPNGPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's trials as CSV and/or its IRR histogram as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PropertyID: exportProperty,
			RunID:      exportRunID,
			CSVPath:    exportCSVPath,
			PNGPath:    exportPNGPath,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportProperty, "property", "", "Export the property's current run")
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Export a specific run by ID")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write trial CSV")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write histogram PNG")
}
