// Package cmd is the oxiaudit command line.
package cmd

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oxiaudit",
	Short: "Audit engagement questionnaires backed by OxiDB",
	Long: `OxiAudit serves audit planning questionnaires: conditional questions,
answer autosave, progress tracking and evidence uploads linked back to the
question that asked for them.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $OXIAUDIT_CONFIG)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(answerCmd)
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: loading .env: %v", err)
	}
}
