package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BuildRunRepository handles build run database operations
type BuildRunRepository struct {
	db *Database
}

// NewBuildRunRepository creates a new build run repository
func NewBuildRunRepository(db *Database) *BuildRunRepository {
	return &BuildRunRepository{db: db}
}

// Create inserts a new run in the running state
func (r *BuildRunRepository) Create(run *BuildRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	query := `
		INSERT INTO build_runs (id, board, platform, device, profile, command,
			current_stage, status, version, archive_path, checksum,
			error_message, exit_code, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.DB().Exec(query,
		run.ID, run.Board, run.Platform, run.Device, run.Profile, run.Command,
		run.CurrentStage, run.Status, run.Version, run.ArchivePath, run.Checksum,
		run.ErrorMessage, run.ExitCode, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create build run: %w", err)
	}

	return nil
}

// selectBuildRunsQuery is the base SELECT query for build runs
const selectBuildRunsQuery = `
	SELECT id, board, platform, device, profile, command,
		current_stage, status, version, archive_path, checksum,
		error_message, exit_code, created_at, completed_at
	FROM build_runs
`

// GetByID retrieves a run by ID; a missing run returns nil
func (r *BuildRunRepository) GetByID(id string) (*BuildRun, error) {
	row := r.db.DB().QueryRow(selectBuildRunsQuery+` WHERE id = ?`, id)
	return r.scanRun(row)
}

// List retrieves the most recent runs, newest first. limit <= 0 returns all.
func (r *BuildRunRepository) List(limit int) ([]BuildRun, error) {
	query := selectBuildRunsQuery + ` ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list build runs: %w", err)
	}
	defer rows.Close()

	var runs []BuildRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// UpdateStage records the stage a run is executing
func (r *BuildRunRepository) UpdateStage(id, stage string) error {
	result, err := r.db.DB().Exec(`UPDATE build_runs SET current_stage = ? WHERE id = ?`, stage, id)
	if err != nil {
		return fmt.Errorf("failed to update build run stage: %w", err)
	}
	return expectOne(result, id)
}

// MarkSucceeded completes a run and records what it produced
func (r *BuildRunRepository) MarkSucceeded(id, version, archivePath, checksum string) error {
	query := `
		UPDATE build_runs
		SET status = ?, completed_at = ?, version = ?, archive_path = ?, checksum = ?,
			error_message = '', exit_code = 0
		WHERE id = ?
	`
	result, err := r.db.DB().Exec(query, RunStatusSucceeded, time.Now().UTC(), version, archivePath, checksum, id)
	if err != nil {
		return fmt.Errorf("failed to mark build run succeeded: %w", err)
	}
	return expectOne(result, id)
}

// MarkFailed completes a run with an error and the process exit code
func (r *BuildRunRepository) MarkFailed(id, errorMsg string, exitCode int) error {
	query := `
		UPDATE build_runs
		SET status = ?, completed_at = ?, error_message = ?, exit_code = ?
		WHERE id = ?
	`
	result, err := r.db.DB().Exec(query, RunStatusFailed, time.Now().UTC(), errorMsg, exitCode, id)
	if err != nil {
		return fmt.Errorf("failed to mark build run failed: %w", err)
	}
	return expectOne(result, id)
}

// Delete removes a run and its stages
func (r *BuildRunRepository) Delete(id string) error {
	result, err := r.db.DB().Exec("DELETE FROM build_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete build run: %w", err)
	}
	return expectOne(result, id)
}

// StartStage inserts a running stage record
func (r *BuildRunRepository) StartStage(runID, name string) (*RunStage, error) {
	stage := &RunStage{
		RunID:     runID,
		Name:      name,
		Status:    StageStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	result, err := r.db.DB().Exec(
		`INSERT INTO build_run_stages (run_id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		stage.RunID, stage.Name, stage.Status, stage.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create build run stage: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	stage.ID = id

	return stage, nil
}

// FinishStage completes a stage record; a non-empty errMsg marks it failed
func (r *BuildRunRepository) FinishStage(stage *RunStage, errMsg string) error {
	now := time.Now().UTC()
	stage.CompletedAt = &now
	stage.DurationMs = now.Sub(stage.StartedAt).Milliseconds()
	stage.ErrorMessage = errMsg
	stage.Status = StageStatusCompleted
	if errMsg != "" {
		stage.Status = StageStatusFailed
	}

	query := `
		UPDATE build_run_stages
		SET status = ?, completed_at = ?, duration_ms = ?, error_message = ?
		WHERE id = ?
	`
	if _, err := r.db.DB().Exec(query, stage.Status, now, stage.DurationMs, errMsg, stage.ID); err != nil {
		return fmt.Errorf("failed to finish build run stage: %w", err)
	}
	return nil
}

// GetStages retrieves the stages of a run in execution order
func (r *BuildRunRepository) GetStages(runID string) ([]RunStage, error) {
	query := `
		SELECT id, run_id, name, status, started_at, completed_at, duration_ms, error_message
		FROM build_run_stages
		WHERE run_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.DB().Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get build run stages: %w", err)
	}
	defer rows.Close()

	var stages []RunStage
	for rows.Next() {
		var stage RunStage
		var completedAt sql.NullTime
		var errorMsg sql.NullString

		if err := rows.Scan(
			&stage.ID, &stage.RunID, &stage.Name, &stage.Status,
			&stage.StartedAt, &completedAt, &stage.DurationMs, &errorMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan build run stage: %w", err)
		}

		if completedAt.Valid {
			stage.CompletedAt = &completedAt.Time
		}
		stage.ErrorMessage = errorMsg.String
		stages = append(stages, stage)
	}

	return stages, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a single build run row
func (r *BuildRunRepository) scanRun(row scanner) (*BuildRun, error) {
	var run BuildRun
	var completedAt sql.NullTime
	var currentStage, version, archivePath, checksum, errorMsg sql.NullString

	err := row.Scan(
		&run.ID, &run.Board, &run.Platform, &run.Device, &run.Profile, &run.Command,
		&currentStage, &run.Status, &version, &archivePath, &checksum,
		&errorMsg, &run.ExitCode, &run.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan build run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.CurrentStage = currentStage.String
	run.Version = version.String
	run.ArchivePath = archivePath.String
	run.Checksum = checksum.String
	run.ErrorMessage = errorMsg.String

	return &run, nil
}

// expectOne fails when an update or delete matched no run
func expectOne(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build run not found: %s", id)
	}
	return nil
}
