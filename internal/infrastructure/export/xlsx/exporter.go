package xlsx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	fieldsSheet  = "Fields"
	summarySheet = "Summary"
)

// Exporter renders a session snapshot as a workbook with a field sheet and a
// summary sheet.
type Exporter struct {
	logger *slog.Logger
}

func NewExporter(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

func (e *Exporter) ContentType() string {
	return ContentType
}

func (e *Exporter) Export(view domain.SessionView) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", fieldsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	writeRow(f, fieldsSheet, 1, "Field", "Value", "Match", "Reason")
	row := 2
	for _, label := range view.Fields.Labels() {
		match, reason := "", ""
		if verdict, ok := view.Verification[label]; ok {
			match = "no"
			if verdict.Match {
				match = "yes"
			}
			reason = verdict.Reason
		}
		writeRow(f, fieldsSheet, row, label, view.Fields[label], match, reason)
		row++
	}
	_ = f.SetColWidth(fieldsSheet, "A", "A", 28)
	_ = f.SetColWidth(fieldsSheet, "B", "B", 40)
	_ = f.SetColWidth(fieldsSheet, "C", "C", 8)
	_ = f.SetColWidth(fieldsSheet, "D", "D", 60)

	summary := [][2]any{
		{"Session", view.ID},
		{"Document", documentName(view)},
		{"Document Type", string(view.DocumentType)},
		{"State", view.State.String()},
	}
	if view.Quality != nil {
		summary = append(summary,
			[2]any{"Quality Score", view.Quality.Score},
			[2]any{"Quality Severity", string(view.QualitySeverity)},
		)
	}
	if view.Summary != nil {
		summary = append(summary,
			[2]any{"Matched", fmt.Sprintf("%d/%d", view.Summary.Matched, view.Summary.Total)},
			[2]any{"Accuracy %", view.Summary.Accuracy},
		)
	}
	summary = append(summary, [2]any{"Exported At", time.Now().UTC().Format(time.RFC3339)})
	for i, pair := range summary {
		writeRow(f, summarySheet, i+1, pair[0], pair[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export.xlsx.ok",
		"session_id", view.ID,
		"rows", len(view.Fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, value := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func documentName(view domain.SessionView) string {
	if view.Document == nil {
		return ""
	}
	return view.Document.Filename
}
