package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

var assessCmd = &cobra.Command{
	Use:   "assess <file>",
	Short: "Rate a document image for OCR readiness",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := app.Loader.Load(ctx, args[0])
	if err != nil {
		return err
	}
	report, err := app.Analyzer.Assess(ctx, doc)
	if err != nil {
		return err
	}
	printQuality(cmd.OutOrStdout(), report)
	return nil
}

func printQuality(w io.Writer, report domain.QualityReport) {
	verdict := "good"
	if !report.IsGoodQuality {
		verdict = "needs improvement"
	}
	fmt.Fprintf(w, "Quality: %d/100 (%s, %s)\n", report.Score, report.Severity(), verdict)
	for _, line := range report.Feedback {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}
