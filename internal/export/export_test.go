package export

import (
	"testing"
	"time"

	"podcast-scribe-go/internal/types"
)

func sampleTasks() []types.Task {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	started := created.Add(2 * time.Second)
	completed := started.Add(95 * time.Second)
	return []types.Task{
		{
			ID:      "task-1",
			Status:  types.StatusReady,
			Payload: types.TaskPayload{PageURL: "https://pod.example/ep1"},
			Result:  &types.TaskResult{Title: "Episode 1", Issues: []string{"clean: probable content over-deletion"}},
			Metrics: map[string]types.StageMetric{
				"resolve":    {DurationMs: 420},
				"segment":    {DurationMs: 8000, Items: 4},
				"transcribe": {DurationMs: 61000, Items: 4, OutputChars: 52000},
				"clean":      {DurationMs: 15000, InputChars: 52000, OutputChars: 49400, Ratio: 0.95},
				"report":     {DurationMs: 9000, InputChars: 49400, OutputChars: 9900, Ratio: 0.2},
			},
			CreatedAt:   created,
			StartedAt:   &started,
			CompletedAt: &completed,
		},
		{
			ID:        "task-2",
			Status:    types.StatusFailed,
			Payload:   types.TaskPayload{PageURL: "https://pod.example/ep2"},
			Error:     "resolve stage: no audio found on page",
			Retries:   2,
			CreatedAt: created,
		},
	}
}

func TestWorkbookRoundTrip(t *testing.T) {
	f, err := Workbook(sampleTasks())
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 tasks", len(rows))
	}
	if rows[0][0] != "Task ID" || rows[0][1] != "Status" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "task-1" || rows[1][1] != "ready" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][0] != "task-2" || rows[2][1] != "failed" {
		t.Errorf("second row = %v", rows[2])
	}
	// failed task carries its error in the last column
	last := rows[2][len(rows[2])-1]
	if last != "resolve stage: no audio found on page" {
		t.Errorf("error column = %q", last)
	}
}

func TestWorkbookEmptyTaskList(t *testing.T) {
	f, err := Workbook(nil)
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}
