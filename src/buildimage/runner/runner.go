// Package runner executes the external shell commands a build is made of.
// Every command blocks until it exits; a non-zero exit is returned as an
// errors.ErrCommandFailed carrying the command's own exit status.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/logs"
)

// Command describes a single shell invocation
type Command struct {
	Line string            // shell command line, interpreted by the runner's shell
	Dir  string            // working directory (empty = current)
	Env  map[string]string // overrides on top of the inherited environment
}

// String returns the command as it would be typed in a shell
func (c Command) String() string {
	var b strings.Builder
	if c.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", c.Dir)
	}
	if len(c.Env) > 0 {
		b.WriteString("env ")
		for _, k := range sortedKeys(c.Env) {
			fmt.Fprintf(&b, "%s=%s ", k, c.Env[k])
		}
	}
	b.WriteString(c.Line)
	return b.String()
}

// Runner is the interface for executing build commands
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// Func adapts a function to the Runner interface
type Func func(ctx context.Context, cmd Command) error

// Run calls f
func (f Func) Run(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// ShellRunner runs commands through /bin/sh on the host. Standard output goes
// to the build log file; standard error is captured for the failure report and
// also copied to the log file.
type ShellRunner struct {
	shell  string
	logger *logs.Logger
}

// NewShellRunner creates a runner that logs through logger
func NewShellRunner(logger *logs.Logger) *ShellRunner {
	return &ShellRunner{
		shell:  "/bin/sh",
		logger: logger,
	}
}

// Run executes cmd and waits for it to exit
func (r *ShellRunner) Run(ctx context.Context, cmd Command) error {
	if strings.TrimSpace(cmd.Line) == "" {
		return errors.ErrCommandFailed.WithMessage("no command specified")
	}

	r.logger.Info("cmd: " + cmd.String())

	c := exec.CommandContext(ctx, r.shell, "-c", cmd.Line)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}

	c.Env = os.Environ()
	for _, k := range sortedKeys(cmd.Env) {
		c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, cmd.Env[k]))
	}

	var stderr bytes.Buffer
	logFile := r.logger.FileWriter()
	c.Stdout = logFile
	c.Stderr = io.MultiWriter(&stderr, logFile)

	if err := c.Run(); err != nil {
		status := errors.ExitFailure
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			status = exitErr.ExitCode()
		}
		detail := strings.TrimSpace(stderr.String())

		r.logger.Error("Error cmd: "+cmd.String(), "status", status, "stderr", detail)

		msg := fmt.Sprintf("command %q exited with status %d", cmd.String(), status)
		if detail != "" {
			msg += ": " + detail
		}
		return errors.ErrCommandFailed.WithMessage(msg).WithExitCode(status).WithCause(err)
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Quote returns s as a single shell word. Plain paths are returned unchanged.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("/._-+=:,@%", r):
		return false
	}
	return true
}
