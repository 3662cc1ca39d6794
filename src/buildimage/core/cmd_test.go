package core

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/projectopenrap/buildimage/src/buildimage/db"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// =============================================================================
// Test Helpers
// =============================================================================

// resetFlags restores every flag to its default so tests do not leak values
// through the package-level command tree
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs the root command with the given args and returns its output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// quietLogs keeps the console logger off the test output
func quietLogs(t *testing.T) {
	t.Setenv("BUILDIMAGE_LOG_LEVEL", "error")
}

// =============================================================================
// Command Registration Tests
// =============================================================================

func TestRootCommand_HasSubcommands(t *testing.T) {
	expected := []string{"history", "artifacts", "version"}

	commands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		commands[cmd.Name()] = true
	}
	for _, name := range expected {
		if !commands[name] {
			t.Errorf("expected subcommand %q not found on root", name)
		}
	}
}

func TestRootCommand_FlagDefaults(t *testing.T) {
	defaults := map[string]string{
		"board":          "rpi",
		"platform":       "raspbian",
		"profile":        "ekstep",
		"clean":          "false",
		"archive-format": "tgz",
		"publish":        "false",
		"history":        "true",
	}
	for name, want := range defaults {
		f := rootCmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("flag --%s not registered", name)
			continue
		}
		if f.DefValue != want {
			t.Errorf("--%s default = %q, want %q", name, f.DefValue, want)
		}
	}

	for _, name := range []string{"base-dir", "history-db", "storage-type", "storage-path", "s3-bucket", "log-level", "config"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not registered", name)
		}
	}
}

// =============================================================================
// Build / Clean Tests
// =============================================================================

func TestRun_InvalidBoard(t *testing.T) {
	quietLogs(t)
	_, err := executeCommand(t, "--board", "bpi", "--base-dir", t.TempDir(), "--history=false")
	if !errors.Is(err, errors.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if code := errors.ExitCode(err); code != 2 {
		t.Errorf("ExitCode = %d, want 2", code)
	}
}

func TestRun_InvalidArchiveFormat(t *testing.T) {
	quietLogs(t)
	_, err := executeCommand(t, "--archive-format", "zip", "--base-dir", t.TempDir(), "--history=false")
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRun_UnknownFlagIsUsageError(t *testing.T) {
	quietLogs(t)
	_, err := executeCommand(t, "--device", "openrap")
	if code := errors.ExitCode(err); code != 2 {
		t.Errorf("ExitCode = %d, want 2 (err %v)", code, err)
	}
}

func TestRun_CleanRecordsHistory(t *testing.T) {
	quietLogs(t)
	base := t.TempDir()
	out := filepath.Join(base, "build", "output_raspbian_rpi_openrap")
	if err := os.MkdirAll(filepath.Join(out, "dist"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCommand(t, "--clean", "--base-dir", base); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output directory still exists after clean")
	}

	stdout, err := executeCommand(t, "history", "-o", "json", "--base-dir", base)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []db.BuildRun
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, stdout)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Command != db.CommandClean || r.Status != db.RunStatusSucceeded || r.CurrentStage != "clean" {
		t.Errorf("unexpected run %+v", r)
	}
	if r.Board != "rpi" || r.Platform != "raspbian" || r.Profile != "ekstep" {
		t.Errorf("unexpected target %+v", r)
	}

	table, err := executeCommand(t, "history", "show", r.ID[:8], "-o", "table", "--base-dir", base)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(table, r.ID) || !strings.Contains(table, "clean") {
		t.Errorf("history show output:\n%s", table)
	}
}

func TestRun_ToolchainMissingRecordsNeutralFailure(t *testing.T) {
	quietLogs(t)
	t.Setenv("PATH", t.TempDir())
	t.Setenv("GOPATH", "")
	t.Setenv("GOBIN", "")
	base := t.TempDir()

	_, err := executeCommand(t, "--base-dir", base)
	if !errors.Is(err, errors.ErrToolchainMissing) {
		t.Fatalf("expected ErrToolchainMissing, got %v", err)
	}
	if code := errors.ExitCode(err); code != 0 {
		t.Errorf("ExitCode = %d, want 0", code)
	}

	stdout, err := executeCommand(t, "history", "-o", "json", "--base-dir", base)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []db.BuildRun
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != db.RunStatusFailed || runs[0].CurrentStage != "prepare" {
		t.Errorf("unexpected history %+v", runs)
	}
}

// =============================================================================
// History / Version Tests
// =============================================================================

func TestHistory_EmptyDatabase(t *testing.T) {
	quietLogs(t)
	base := t.TempDir()

	stdout, err := executeCommand(t, "history", "-o", "table", "--base-dir", base)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(stdout, "No build runs recorded.") {
		t.Errorf("unexpected output %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(base, "build", "history.db")); !os.IsNotExist(err) {
		t.Error("history should not create the database")
	}

	stdout, err = executeCommand(t, "history", "-o", "json", "--base-dir", base)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Errorf("expected empty JSON list, got %q", stdout)
	}
}

func TestArtifacts_LocalStorage(t *testing.T) {
	quietLogs(t)
	store := t.TempDir()
	key := filepath.Join(store, "openrap", "ekstep", "openrap-1.0.ES.tgz")
	if err := os.MkdirAll(filepath.Dir(key), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(key, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, err := executeCommand(t, "artifacts", "--storage-path", store, "--profile", "ekstep", "-o", "table")
	if err != nil {
		t.Fatalf("artifacts failed: %v", err)
	}
	if !strings.Contains(stdout, "openrap/ekstep/openrap-1.0.ES.tgz") {
		t.Errorf("artifact missing from listing:\n%s", stdout)
	}

	stdout, err = executeCommand(t, "artifacts", "--storage-path", store, "--profile", "meghshala", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Errorf("expected no meghshala artifacts, got %q", stdout)
	}

	_, err = executeCommand(t, "artifacts", "--storage-path", store, "--profile", "unknown")
	if !errors.Is(err, errors.ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	quietLogs(t)
	stdout, err := executeCommand(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"version", "release_version", "git_commit", "go_version"} {
		if _, ok := info[key]; !ok {
			t.Errorf("missing %s in version output", key)
		}
	}
}

func TestReport_SkipsToolchainMissing(t *testing.T) {
	// Neither call may panic with no logger configured
	saved := log
	log = nil
	defer func() { log = saved }()

	report(nil)
	report(errors.ErrToolchainMissing)
}
