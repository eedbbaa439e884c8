package models

import "time"

// StageStatus is the terminal (or current) state of a pipeline stage.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	// StatusSkipped means the stage's gate declined to run it. Skips are
	// neutral: dependency resolution treats them as success, but a later
	// stage that needs the skipped stage's artifacts must surface a
	// MissingArtifactError.
	StatusSkipped StageStatus = "skipped"
	// StatusBlocked means a predecessor failed, so the stage never ran.
	StatusBlocked StageStatus = "blocked"
)

// Terminal reports whether the status is a final state.
func (s StageStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusBlocked:
		return true
	}
	return false
}

// StageResult records how one stage finished.
type StageResult struct {
	StageID   string
	Status    StageStatus
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
