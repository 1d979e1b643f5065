package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/repository"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/workflow"
)

var (
	answerDB        string
	answerTemplates string
)

var answerCmd = &cobra.Command{
	Use:   "answer <scope> <section> <group> <item> <value>",
	Short: "Set one answer in a SQLite-backed section store",
	Long: `Set one answer without a server. The value is parsed as JSON when it
parses (numbers, lists, objects, null) and taken as text otherwise.`,
	Args: cobra.ExactArgs(5),
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().StringVar(&answerDB, "db", "oxiaudit.db", "SQLite section store")
	answerCmd.Flags().StringVar(&answerTemplates, "templates", "", "Template directory used when the section is not stored yet")
}

func runAnswer(cmd *cobra.Command, args []string) error {
	scopeID, sectionKey, groupKey, itemID := args[0], args[1], args[2], args[3]
	value := parseValue(args[4])
	if !service.ValidKey(scopeID) || !service.ValidKey(sectionKey) {
		return fmt.Errorf("%w: %s/%s", service.ErrInvalidKey, scopeID, sectionKey)
	}

	repo, err := repository.OpenSQLiteSectionRepo(answerDB)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	s, err := workflow.Open(ctx, service.NewTemplateStore(repo, answerTemplates), scopeID, sectionKey, workflow.Options{})
	if err != nil {
		return err
	}
	if err := s.LoadErr(); err != nil {
		s.Close()
		return err
	}

	items, ok := s.Document().Items(groupKey)
	if !ok {
		s.Close()
		return fmt.Errorf("%w: group %q", questionnaire.ErrNodeNotFound, groupKey)
	}
	node, ok := questionnaire.FindNode(items, itemID)
	if !ok {
		s.Close()
		return fmt.Errorf("%w: %q in group %q", questionnaire.ErrNodeNotFound, itemID, groupKey)
	}
	if _, err := node.DecodeAnswer(value); err != nil {
		s.Close()
		return err
	}
	if err := s.SetAnswer(groupKey, itemID, value); err != nil {
		s.Close()
		return err
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("save %s/%s: %w", scopeID, sectionKey, err)
	}

	report := s.Progress()
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s %s = %v (section %d%%)\n", scopeID, sectionKey, itemID, value, report.Percent)
	return nil
}
