package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Extract fields, apply corrections and verify them",
	Long: `Drives one session end to end: select the document, assess its
quality, extract fields, apply --set corrections and ask the model to
verify every field against the document.

Examples:
  # Extract and verify an invoice
  docverify run invoice.png --type invoice

  # Correct a value before verification and export the result
  docverify run receipt.jpg --type receipt --set "Total Amount=$12.40" --export result.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowCmd,
}

func init() {
	f := runCmd.Flags()
	f.String("type", string(domain.HintGeneric), "document type hint: generic, id_card, invoice or receipt")
	f.StringArray("set", nil, `field correction as "Label=Value" (repeatable)`)
	f.Bool("no-verify", false, "stop after extraction and corrections")
	f.String("export", "", "write fields and verdicts to this .xlsx file")

	rootCmd.AddCommand(runCmd)
}

type fieldEdit struct {
	Label string
	Value string
}

func parseEdits(raw []string) ([]fieldEdit, error) {
	edits := make([]fieldEdit, 0, len(raw))
	for _, item := range raw {
		label, value, ok := strings.Cut(item, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return nil, fmt.Errorf("invalid --set %q, expected Label=Value", item)
		}
		edits = append(edits, fieldEdit{Label: label, Value: value})
	}
	return edits, nil
}

func runWorkflowCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rawHint, _ := cmd.Flags().GetString("type")
	hint, err := domain.ParseDocumentTypeHint(rawHint)
	if err != nil {
		return err
	}
	rawEdits, _ := cmd.Flags().GetStringArray("set")
	edits, err := parseEdits(rawEdits)
	if err != nil {
		return err
	}
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	exportPath, _ := cmd.Flags().GetString("export")

	doc, err := app.Loader.Load(ctx, args[0])
	if err != nil {
		return err
	}

	workflow := usecase.NewWorkflow("cli-"+uuid.NewString(), app.Deps)
	defer workflow.Release()

	view, err := driveWorkflow(ctx, cmd.ErrOrStderr(), workflow, doc, hint, edits, !noVerify)
	printSession(cmd.OutOrStdout(), view)
	if err != nil {
		return err
	}

	if exportPath != "" {
		data, err := app.Exporter.Export(view)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", exportPath)
	}
	return nil
}

// driveWorkflow runs select -> extract -> edits -> verify and returns the
// last view even when a step fails. The quality report is advisory: a failed
// assessment is reported on warnings and extraction still runs, unless the
// model credential is missing.
func driveWorkflow(
	ctx context.Context,
	warnings io.Writer,
	workflow *usecase.Workflow,
	doc domain.Document,
	hint domain.DocumentTypeHint,
	edits []fieldEdit,
	verify bool,
) (domain.SessionView, error) {
	if view, err := workflow.SelectDocument(ctx, doc); err != nil {
		if domain.IsKind(err, domain.ErrMissingCredential) || view.Document == nil {
			return view, err
		}
		fmt.Fprintf(warnings, "Warning: quality check failed: %v\n", err)
	}
	if view, err := workflow.SetDocumentType(ctx, hint); err != nil {
		return view, err
	}
	view, err := workflow.RequestExtraction(ctx)
	if err != nil {
		return view, err
	}
	for _, edit := range edits {
		if view, err = workflow.EditField(ctx, edit.Label, edit.Value); err != nil {
			return view, err
		}
	}
	if !verify {
		return view, nil
	}
	return workflow.RequestVerification(ctx)
}

func printSession(w io.Writer, view domain.SessionView) {
	if view.Quality != nil {
		printQuality(w, *view.Quality)
	}
	if len(view.Fields) == 0 {
		if view.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", view.Error)
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE\tVERDICT\tREASON")
	for _, label := range view.Fields.Labels() {
		verdict, reason := "-", ""
		if result, ok := view.Verification[label]; ok {
			verdict = "mismatch"
			if result.Match {
				verdict = "match"
			}
			reason = result.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", label, view.Fields[label], verdict, reason)
	}
	_ = tw.Flush()

	if view.Summary != nil {
		fmt.Fprintf(w, "Accuracy: %d%% (%d of %d fields match)\n",
			view.Summary.Accuracy, view.Summary.Matched, view.Summary.Total)
	}
	if view.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", view.Error)
	}
}
