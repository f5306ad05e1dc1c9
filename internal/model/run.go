package model

import "time"

// RunStatus represents the state of an ingest run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// IngestRun records one consolidation run against the store.
type IngestRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunResult holds the counts reported when an ingest run completes.
type RunResult struct {
	Files         int `json:"files"`
	Parsed        int `json:"parsed"`
	Failed        int `json:"failed"`
	Rows          int `json:"rows"`
	RowsSaved     int `json:"rows_saved"`
	Conflicts     int `json:"conflicts"`
	SkippedRows   int `json:"skipped_rows"`
	LowConfidence int `json:"low_confidence_vintages"`
}
