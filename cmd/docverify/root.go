package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docverify-assistant/internal/bootstrap"
	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/observability/logging"
)

var app *bootstrap.App

var rootCmd = &cobra.Command{
	Use:   "docverify",
	Short: "Assess, extract and verify document fields with Gemini",
	Long: `Runs the document workflow from the command line: image quality
assessment, type-guided field extraction, manual corrections and AI
verification of the corrected values against the document.

The model credential is read from the environment variable named by
MODEL_API_KEY_ENV (default API_KEY).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.NewJSONLoggerTo(os.Stderr, "docverify", cfg.LogLevel)

		a, err := bootstrap.New(cmd.Context(), cfg, "docverify", logger)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		app = a
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if app != nil {
			app.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
