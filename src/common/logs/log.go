// Package logs provides the logging facility for buildimage.
// A Logger always writes to a console sink (stdout or systemd journald) and can
// additionally mirror every record into a per-build log file at debug level.
package logs

import (
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// LogOutput defines the output destination for the console sink
type LogOutput string

const (
	// OutputStdout sends logs to standard output
	OutputStdout LogOutput = "stdout"
	// OutputJournald sends logs to systemd journald
	OutputJournald LogOutput = "journald"
	// OutputAuto automatically selects journald if available, otherwise stdout
	OutputAuto LogOutput = "auto"
)

// DefaultName is the logger name printed in front of every record
const DefaultName = "ORAP"

// TimeFormat is the timestamp layout used by both sinks
const TimeFormat = "2006-01-02 15:04:05,000"

// Logger wraps the charm console logger and an optional file logger
type Logger struct {
	*log.Logger
	output LogOutput
	name   string

	mu   sync.Mutex
	file *log.Logger
	fd   *os.File
}

// Config holds the configuration for the logger
type Config struct {
	// Output specifies where console logs should be sent (stdout, journald, auto)
	Output LogOutput
	// Level sets the minimum console log level (debug, info, warn, error)
	Level string
	// Prefix sets the logger name for all log messages
	Prefix string
	// Writer overrides the console destination (tests)
	Writer io.Writer
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Output: OutputStdout,
		Level:  "info",
		Prefix: DefaultName,
	}
}

// journaldAvailable checks if systemd-journald is available on the system
func journaldAvailable() bool {
	if _, err := exec.LookPath("systemd-cat"); err != nil {
		return false
	}
	if _, err := os.Stat("/run/systemd/journal/socket"); err != nil {
		return false
	}
	return true
}

// parseLevel converts a string level to log.Level
func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func newCharm(w io.Writer, level log.Level, prefix string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		ReportCaller:    false,
	})
}

// newFileCharm returns the build log sink. Records read
// "<timestamp> - <name> - <LEVEL> - <message>": the name and the full level
// word are carried by the level styles, so no prefix is set.
func newFileCharm(w io.Writer, name string) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Level:           log.DebugLevel,
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
	})
	l.SetStyles(fileStyles(name))
	return l
}

func fileStyles(name string) *log.Styles {
	st := log.DefaultStyles()
	st.Prefix = lipgloss.NewStyle()
	st.Key = lipgloss.NewStyle()
	st.Separator = lipgloss.NewStyle()
	st.Levels = make(map[log.Level]lipgloss.Style)
	for _, lvl := range []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel, log.FatalLevel} {
		st.Levels[lvl] = lipgloss.NewStyle().
			SetString("- " + name + " - " + strings.ToUpper(lvl.String()) + " -")
	}
	return st
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	var writer io.Writer
	var output LogOutput

	switch {
	case cfg.Writer != nil:
		writer = cfg.Writer
		output = OutputStdout
	case cfg.Output == OutputJournald || cfg.Output == OutputAuto:
		if journaldAvailable() {
			writer = newJournaldWriter()
			output = OutputJournald
		} else {
			writer = os.Stdout
			output = OutputStdout
		}
	default:
		writer = os.Stdout
		output = OutputStdout
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultName
	}

	return &Logger{
		Logger: newCharm(writer, parseLevel(cfg.Level), prefix),
		output: output,
		name:   prefix,
	}
}

// NewDefault creates a new Logger with default configuration
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard returns a Logger that drops every record
func Discard() *Logger {
	return New(Config{Writer: io.Discard, Level: "error"})
}

// Output returns the current console destination
func (l *Logger) Output() LogOutput {
	return l.output
}

// Name returns the logger name printed in front of every record
func (l *Logger) Name() string {
	return l.name
}

// AttachFile opens path in append mode and mirrors all records into it at
// debug level. A previously attached file is closed first.
func (l *Logger) AttachFile(path string) error {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd != nil {
		l.fd.Close()
	}
	l.fd = fd
	l.file = newFileCharm(fd, l.name)
	return nil
}

// FileWriter returns the attached log file, or io.Discard when none is attached.
// Command output is streamed here.
func (l *Logger) FileWriter() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd == nil {
		return io.Discard
	}
	return l.fd
}

// Close detaches and closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd == nil {
		return nil
	}
	err := l.fd.Close()
	l.fd = nil
	l.file = nil
	return err
}

func (l *Logger) fileLogger() *log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

// Debug logs a debug record to both sinks
func (l *Logger) Debug(msg interface{}, keyvals ...interface{}) {
	l.Logger.Debug(msg, keyvals...)
	if f := l.fileLogger(); f != nil {
		f.Debug(msg, keyvals...)
	}
}

// Info logs an info record to both sinks
func (l *Logger) Info(msg interface{}, keyvals ...interface{}) {
	l.Logger.Info(msg, keyvals...)
	if f := l.fileLogger(); f != nil {
		f.Info(msg, keyvals...)
	}
}

// Warn logs a warning record to both sinks
func (l *Logger) Warn(msg interface{}, keyvals ...interface{}) {
	l.Logger.Warn(msg, keyvals...)
	if f := l.fileLogger(); f != nil {
		f.Warn(msg, keyvals...)
	}
}

// Error logs an error record to both sinks
func (l *Logger) Error(msg interface{}, keyvals ...interface{}) {
	l.Logger.Error(msg, keyvals...)
	if f := l.fileLogger(); f != nil {
		f.Error(msg, keyvals...)
	}
}

// journaldWriter implements io.Writer for journald
type journaldWriter struct {
	identifier string
}

// newJournaldWriter creates a writer that sends output to journald
func newJournaldWriter() *journaldWriter {
	return &journaldWriter{
		identifier: "buildimage",
	}
}

// Write implements io.Writer for journald
// It uses systemd-cat to send messages to journald
func (w *journaldWriter) Write(p []byte) (n int, err error) {
	cmd := exec.Command("systemd-cat", "-t", w.identifier)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return os.Stdout.Write(p)
	}

	if err := cmd.Start(); err != nil {
		return os.Stdout.Write(p)
	}

	n, err = stdin.Write(p)
	stdin.Close()

	// The message was handed over; a journald hiccup on exit is not a write failure
	_ = cmd.Wait()

	return n, err
}
