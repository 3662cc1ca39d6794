package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/projectopenrap/buildimage/src/buildimage/db"
	"github.com/projectopenrap/buildimage/src/buildimage/output"
	"github.com/projectopenrap/buildimage/src/buildimage/pipeline"
	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/common/cli"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	commandBuild = db.CommandBuild
	commandClean = db.CommandClean
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded build runs",
	Long:  `Lists build and clean runs recorded in the history database, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a recorded run and its stages",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml (default: table on a terminal, json otherwise)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 = all)")
	historyCmd.AddCommand(historyShowCmd)
}

// historyPath returns the configured database path for a checkout
func historyPath(baseDir string) string {
	if p := cli.GetExpandedString("history.path"); p != "" {
		return p
	}
	return db.DefaultConfig(baseDir).Path
}

// openHistoryRepository opens an existing history database. ok is false when
// nothing has been recorded yet.
func openHistoryRepository() (repo *db.BuildRunRepository, closeFn func(), ok bool, err error) {
	baseDir, err := baseDirectory()
	if err != nil {
		return nil, nil, false, err
	}
	path := historyPath(baseDir)
	if !paths.IsFile(path) {
		return nil, nil, false, nil
	}

	database, err := db.New(db.Config{Path: path})
	if err != nil {
		return nil, nil, false, errors.ErrDatabaseConnection.WithMessagef("open %s", path).WithCause(err)
	}
	return db.NewBuildRunRepository(database), func() { database.Close() }, true, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(name, out)
	if err != nil {
		return errors.ErrInvalidConfig.WithMessage(err.Error())
	}
	limit, _ := cmd.Flags().GetInt("limit")

	repo, closeFn, ok, err := openHistoryRepository()
	if err != nil {
		return err
	}
	runs := []db.BuildRun{}
	if ok {
		defer closeFn()
		if runs, err = repo.List(limit); err != nil {
			return errors.ErrDatabaseQuery.WithCause(err)
		}
		if runs == nil {
			runs = []db.BuildRun{}
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, runs)
	case output.FormatYAML:
		return output.PrintYAML(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No build runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.CreatedAt.Local().Format(time.DateTime),
			string(r.Command),
			r.Board + "/" + r.Platform + "/" + r.Profile,
			r.CurrentStage,
			string(r.Status),
			r.Version,
			strconv.Itoa(r.ExitCode),
		})
	}
	return output.PrintTable(out,
		[]string{"ID", "STARTED", "COMMAND", "TARGET", "STAGE", "STATUS", "VERSION", "EXIT"}, rows)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(name, out)
	if err != nil {
		return errors.ErrInvalidConfig.WithMessage(err.Error())
	}

	repo, closeFn, ok, err := openHistoryRepository()
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrDatabaseQuery.WithMessagef("build run not found: %s", args[0])
	}
	defer closeFn()

	run, err := findRun(repo, args[0])
	if err != nil {
		return err
	}
	stages, err := repo.GetStages(run.ID)
	if err != nil {
		return errors.ErrDatabaseQuery.WithCause(err)
	}

	switch format {
	case output.FormatJSON, output.FormatYAML:
		detail := struct {
			db.BuildRun
			Stages []db.RunStage `json:"stages"`
		}{*run, stages}
		if format == output.FormatJSON {
			return output.PrintJSON(out, detail)
		}
		return output.PrintYAML(out, detail)
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Command:  %s\n", run.Command)
	fmt.Fprintf(out, "Target:   board[%s] platform[%s] device[%s] profile[%s]\n", run.Board, run.Platform, run.Device, run.Profile)
	fmt.Fprintf(out, "Status:   %s (exit %d)\n", run.Status, run.ExitCode)
	if run.Version != "" {
		fmt.Fprintf(out, "Version:  %s\n", run.Version)
	}
	if run.ArchivePath != "" {
		fmt.Fprintf(out, "Archive:  %s\n", run.ArchivePath)
		fmt.Fprintf(out, "SHA256:   %s\n", run.Checksum)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.ErrorMessage)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{s.Name, string(s.Status), (time.Duration(s.DurationMs) * time.Millisecond).String(), s.ErrorMessage})
	}
	return output.PrintTable(out, []string{"STAGE", "STATUS", "DURATION", "ERROR"}, rows)
}

// findRun resolves a full run ID or a unique prefix of one
func findRun(repo *db.BuildRunRepository, id string) (*db.BuildRun, error) {
	run, err := repo.GetByID(id)
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithCause(err)
	}
	if run != nil {
		return run, nil
	}

	runs, err := repo.List(0)
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithCause(err)
	}
	var match *db.BuildRun
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, errors.ErrDatabaseQuery.WithMessagef("run id prefix %s is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, errors.ErrDatabaseQuery.WithMessagef("build run not found: %s", id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ============================================================================
// Recording
// ============================================================================

// historyRecorder records a run and its stages. A nil recorder records
// nothing; recording failures are logged and never fail the run.
type historyRecorder struct {
	database *db.Database
	repo     *db.BuildRunRepository
	run      *db.BuildRun
	stage    *db.RunStage
}

// openHistory starts recording a run when history is enabled
func openHistory(baseDir string, t target.Target, command db.RunCommand) *historyRecorder {
	if !viper.GetBool("history.enabled") {
		return nil
	}

	path := historyPath(baseDir)
	database, err := db.New(db.Config{Path: path})
	if err != nil {
		log.Warn("build history disabled", "path", path, "error", err)
		return nil
	}

	rec := &historyRecorder{
		database: database,
		repo:     db.NewBuildRunRepository(database),
		run: &db.BuildRun{
			Board:    string(t.Board),
			Platform: string(t.Platform),
			Device:   string(t.Device),
			Profile:  string(t.Profile),
			Command:  command,
		},
	}
	if err := rec.repo.Create(rec.run); err != nil {
		log.Warn("build history disabled", "path", path, "error", err)
		database.Close()
		return nil
	}
	log.Debug("recording build run", "id", rec.run.ID, "path", path)
	return rec
}

func (h *historyRecorder) StageStarted(stage pipeline.Stage) {
	if err := h.repo.UpdateStage(h.run.ID, string(stage)); err != nil {
		log.Warn("failed to record stage", "stage", stage, "error", err)
	}
	s, err := h.repo.StartStage(h.run.ID, string(stage))
	if err != nil {
		log.Warn("failed to record stage", "stage", stage, "error", err)
	}
	h.stage = s
}

func (h *historyRecorder) StageFinished(stage pipeline.Stage, state pipeline.State, err error) {
	if h.stage == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if ferr := h.repo.FinishStage(h.stage, msg); ferr != nil {
		log.Warn("failed to record stage", "stage", stage, "error", ferr)
	}
	h.stage = nil
}

// finish records the outcome and closes the database
func (h *historyRecorder) finish(res *pipeline.Result, runErr error) {
	if h == nil {
		return
	}
	defer h.database.Close()

	var err error
	if runErr != nil {
		err = h.repo.MarkFailed(h.run.ID, runErr.Error(), errors.ExitCode(runErr))
	} else {
		var version, archivePath, checksum string
		if res != nil {
			version, archivePath, checksum = res.Version, res.ArchivePath, res.Checksum
		}
		err = h.repo.MarkSucceeded(h.run.ID, version, archivePath, checksum)
	}
	if err != nil {
		log.Warn("failed to record build run", "id", h.run.ID, "error", err)
	}
}
