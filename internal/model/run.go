package model

import "time"

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunStatusRunning       RunStatus = "running"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusPartial       RunStatus = "partial"
	RunStatusFailed        RunStatus = "failed"
	RunStatusSkippedLocked RunStatus = "skipped_locked"
)

// RunSummary records the outcome of one sync run for a source. It is
// created at run start and never mutated after finalization.
type RunSummary struct {
	ID          string     `json:"id"`
	SourceID    int64      `json:"source_id"`
	Status      RunStatus  `json:"status"`
	New         int        `json:"new"`
	Changed     int        `json:"changed"`
	Unchanged   int        `json:"unchanged"`
	Removed     int        `json:"removed"`
	Errors      int        `json:"errors"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Observed returns the number of listings the run classified.
func (s *RunSummary) Observed() int {
	return s.New + s.Changed + s.Unchanged
}
