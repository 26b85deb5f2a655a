package models

import "time"

// SyncJobState is the persisted state of one reconciliation job. Exactly one
// state with IsRunning=true may exist per job id at any time; the flag is the
// advisory lock that prevents overlapping runs across process restarts.
type SyncJobState struct {
	JobID        string    `json:"job_id"`
	LastRun      time.Time `json:"last_run_timestamp"`
	IsRunning    bool      `json:"is_running"`
	NextRun      time.Time `json:"next_run,omitempty"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	SkippedCount int       `json:"skipped_count"`
}

// ResetCounts zeroes the per-run tallies at batch start.
func (s *SyncJobState) ResetCounts() {
	s.SuccessCount = 0
	s.FailedCount = 0
	s.SkippedCount = 0
}

// SyncRun is one completed reconciliation tick, recorded in run history.
type SyncRun struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	JobID        string    `json:"job_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	SkippedCount int       `json:"skipped_count"`
	Note         string    `json:"note,omitempty"`
}

// Duration returns the elapsed wall time of the run.
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
