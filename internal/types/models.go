package types

import "time"

type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusRunning TaskStatus = "running"
	StatusReady   TaskStatus = "ready"
	StatusFailed  TaskStatus = "failed"
)

// TaskOptions are caller-supplied knobs for one processing request.
type TaskOptions struct {
	Language       string  `json:"language,omitempty"`
	SegmentSeconds float64 `json:"segment_seconds,omitempty"`
}

// TaskPayload identifies the source to process and who asked for it.
type TaskPayload struct {
	PageURL string      `json:"page_url"`
	Owner   string      `json:"owner,omitempty"`
	Options TaskOptions `json:"options,omitempty"`
}

// StageMetric records what one pipeline stage did for a task.
type StageMetric struct {
	DurationMs  int64   `json:"duration_ms"`
	Items       int     `json:"items,omitempty"`
	InputChars  int     `json:"input_chars,omitempty"`
	OutputChars int     `json:"output_chars,omitempty"`
	Ratio       float64 `json:"ratio,omitempty"`
}

// TaskResult is the final artifact set delivered for a READY task.
type TaskResult struct {
	Title      string   `json:"title,omitempty"`
	AudioURL   string   `json:"audio_url"`
	Transcript string   `json:"transcript"`
	Script     string   `json:"script"`
	Report     string   `json:"report"`
	Issues     []string `json:"issues,omitempty"`
}

// Task is one end-to-end processing request tracked through the queue.
// Status moves pending -> running -> ready|failed; running may fall back to
// pending while Retries stays under the queue's retry bound.
type Task struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Status      TaskStatus             `json:"status"`
	Payload     TaskPayload            `json:"payload"`
	Result      *TaskResult            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Retries     int                    `json:"retries"`
	Metrics     map[string]StageMetric `json:"metrics,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Metadata is what the source resolver discovers about a page.
type Metadata struct {
	AudioURL    string `json:"audio_url"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Description string `json:"description,omitempty"`
}

// Segment is one bounded-duration slice of the source audio. Segments are
// contiguous and cover exactly [0, duration) in index order.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	URL   string  `json:"url"`
}
