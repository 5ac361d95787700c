package cli

import (
	"github.com/spf13/cobra"
)

var gradesGrade string

var gradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "List properties currently carrying a grade",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Grades(cmd.Context(), gradesGrade)
	},
}

func init() {
	gradesCmd.Flags().StringVar(&gradesGrade, "grade", "red", "Grade to filter on (green, amber, red)")
}
