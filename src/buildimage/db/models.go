package db

import "time"

// RunCommand is what a recorded run was asked to do
type RunCommand string

const (
	CommandBuild RunCommand = "build"
	CommandClean RunCommand = "clean"
)

// RunStatus represents the state of a recorded run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StageStatus represents the state of one stage of a run
type StageStatus string

const (
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// BuildRun is one invocation of the tool
type BuildRun struct {
	ID           string     `json:"id"`
	Board        string     `json:"board"`
	Platform     string     `json:"platform"`
	Device       string     `json:"device"`
	Profile      string     `json:"profile"`
	Command      RunCommand `json:"command"`
	CurrentStage string     `json:"current_stage,omitempty"`
	Status       RunStatus  `json:"status"`
	Version      string     `json:"version,omitempty"`
	ArchivePath  string     `json:"archive_path,omitempty"`
	Checksum     string     `json:"checksum,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ExitCode     int        `json:"exit_code"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RunStage is the record of one stage of a run
type RunStage struct {
	ID           int64       `json:"id"`
	RunID        string      `json:"run_id"`
	Name         string      `json:"name"`
	Status       StageStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	DurationMs   int64       `json:"duration_ms"`
	ErrorMessage string      `json:"error_message,omitempty"`
}
