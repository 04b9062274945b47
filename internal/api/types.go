package api

import "curator/internal/workflow"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a task row in a transport-friendly format.
type Task struct {
	ID           int64  `json:"id"`
	Stage        string `json:"stage"`
	Domain       string `json:"domain"`
	Subtype      string `json:"subtype,omitempty"`
	Ref          string `json:"ref"`
	Status       string `json:"status"`
	Version      int64  `json:"version"`
	Attempts     int    `json:"attempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool                      `json:"running"`
	PID          int                       `json:"pid"`
	DatabasePath string                    `json:"databasePath"`
	LockFilePath string                    `json:"lockFilePath"`
	Workflow     workflow.StatusSummary    `json:"workflow"`
	TaskCounts   map[string]map[string]int `json:"taskCounts"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// HealthResponse reports overall readiness plus per-stage detail.
type HealthResponse struct {
	Ready    bool          `json:"ready"`
	Database string        `json:"database"`
	Pending  int           `json:"pending"`
	Errors   int           `json:"errors"`
	Stages   []StageHealth `json:"stages"`
	System   []SystemCheck `json:"system,omitempty"`
}

// SystemCheck is the outcome of one preflight check.
type SystemCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// TriggerResponse lists the stages that were triggered.
type TriggerResponse struct {
	Triggered []string `json:"triggered"`
}

// ScanRequest optionally narrows a staging scan to one path.
type ScanRequest struct {
	Path string `json:"path,omitempty"`
}

// ScanResponse reports the outcome of a staging scan.
type ScanResponse struct {
	Scanned  int      `json:"scanned"`
	Enqueued int      `json:"enqueued"`
	Held     int      `json:"held"`
	Deleted  int      `json:"deleted"`
	Stages   []string `json:"stages"`
}

// RecheckRequest selects the finished tasks to re-queue.
type RecheckRequest struct {
	Stages        []string `json:"stages,omitempty"`
	OlderThan     string   `json:"olderThan,omitempty"`
	IncludeErrors bool     `json:"includeErrors"`
}

// RecheckResponse reports how many tasks each stage got back.
type RecheckResponse struct {
	Requeued map[string]int `json:"requeued"`
}

// RetryRequest selects the stage whose failed tasks are retried. An empty
// stage retries every stage.
type RetryRequest struct {
	Stage string `json:"stage,omitempty"`
}

// RetryResponse reports how many failed tasks were re-queued.
type RetryResponse struct {
	Retried int `json:"retried"`
}

// JobResponse names the job that ran.
type JobResponse struct {
	Job string `json:"job"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
