package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a section document for malformed nodes and reused ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		issues := questionnaire.Validate(doc)
		for _, is := range issues {
			fmt.Fprintln(cmd.OutOrStdout(), is.Error())
		}
		if len(issues) > 0 {
			return fmt.Errorf("%d issue(s) in %s", len(issues), args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}
