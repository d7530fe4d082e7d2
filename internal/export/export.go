// Package export renders the task table into an xlsx workbook for operators:
// one row per task with status, timing, per-stage durations and transform
// ratios, so a batch run can be eyeballed in a spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"podcast-scribe-go/internal/types"
)

const sheetName = "Tasks"

var header = []interface{}{
	"Task ID", "Status", "Page URL", "Title", "Retries",
	"Created", "Started", "Completed", "Total (s)",
	"Resolve (ms)", "Segment (ms)", "Segments",
	"Transcribe (ms)", "Clean (ms)", "Clean Ratio",
	"Report (ms)", "Report Ratio", "Issues", "Error",
}

// Workbook builds the xlsx file for the given tasks. The caller owns closing
// the file.
func Workbook(tasks []types.Task) (*excelize.File, error) {
	f := excelize.NewFile()
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, t := range tasks {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, taskRow(t)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

// Write streams the workbook for the given tasks to w.
func Write(w io.Writer, tasks []types.Task) error {
	f, err := Workbook(tasks)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func taskRow(t types.Task) *[]interface{} {
	title := ""
	issues := 0
	if t.Result != nil {
		title = t.Result.Title
		issues = len(t.Result.Issues)
	}
	row := []interface{}{
		t.ID,
		string(t.Status),
		t.Payload.PageURL,
		title,
		t.Retries,
		stamp(&t.CreatedAt),
		stamp(t.StartedAt),
		stamp(t.CompletedAt),
		totalSeconds(t),
		metricMs(t, "resolve"),
		metricMs(t, "segment"),
		metricItems(t, "segment"),
		metricMs(t, "transcribe"),
		metricMs(t, "clean"),
		metricRatio(t, "clean"),
		metricMs(t, "report"),
		metricRatio(t, "report"),
		issues,
		t.Error,
	}
	return &row
}

func stamp(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339)
}

func totalSeconds(t types.Task) interface{} {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return ""
	}
	return t.CompletedAt.Sub(*t.StartedAt).Round(time.Second).Seconds()
}

func metricMs(t types.Task, stage string) interface{} {
	if m, ok := t.Metrics[stage]; ok {
		return m.DurationMs
	}
	return ""
}

func metricItems(t types.Task, stage string) interface{} {
	if m, ok := t.Metrics[stage]; ok && m.Items > 0 {
		return m.Items
	}
	return ""
}

func metricRatio(t types.Task, stage string) interface{} {
	if m, ok := t.Metrics[stage]; ok && m.Ratio > 0 {
		return m.Ratio
	}
	return ""
}
