package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

var (
	progressJSON  bool
	progressCross []string
)

var progressCmd = &cobra.Command{
	Use:   "progress <file>",
	Short: "Print the completion of a section document",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

func init() {
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "Print the full report as JSON")
	progressCmd.Flags().StringSliceVar(&progressCross, "cross", nil, "Other section files whose answers feed conditions")
}

func runProgress(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	external, err := loadAnswers(progressCross)
	if err != nil {
		return err
	}
	report := questionnaire.SectionProgress(doc, external)
	out := cmd.OutOrStdout()
	if progressJSON {
		return printJSON(out, report)
	}
	for _, g := range report.Groups {
		name := g.Key
		if g.Title != "" {
			name = g.Key + " (" + g.Title + ")"
		}
		fmt.Fprintf(out, "%-40s %3d%%  %d/%d  (visible %d/%d)\n", name, g.Percent,
			g.All.Answered, g.All.Total, g.Visible.Answered, g.Visible.Total)
	}
	fmt.Fprintf(out, "%-40s %3d%%  %d/%d  (visible %d/%d)\n", "total", report.Percent,
		report.All.Answered, report.All.Total, report.Visible.Answered, report.Visible.Total)
	return nil
}
