package gh

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Logger writes action output. Under GitHub Actions it emits workflow
// commands (::error::, ::group::) so messages surface as annotations;
// elsewhere it writes plain lines. Progress lines are suppressed when
// output is neither a terminal nor an Actions log, so piping the tool
// in scripts stays quiet.
type Logger struct {
	out      io.Writer
	actions  bool
	progress bool
}

// NewLogger builds a Logger for the current environment, writing to
// stdout.
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

// NewLoggerTo builds a Logger writing to w. Actions mode comes from
// the GITHUB_ACTIONS variable; progress output additionally requires
// w to be a terminal outside Actions.
func NewLoggerTo(w io.Writer) *Logger {
	actions := os.Getenv("GITHUB_ACTIONS") == "true"
	progress := actions
	if f, ok := w.(*os.File); ok && !progress {
		progress = isatty.IsTerminal(f.Fd())
	}
	return &Logger{out: w, actions: actions, progress: progress}
}

// NewTestLogger builds a plain Logger writing to w with progress
// enabled, ignoring the environment. For tests.
func NewTestLogger(w io.Writer) *Logger {
	return &Logger{out: w, progress: true}
}

// Infof logs an informational line.
func (l *Logger) Infof(format string, args ...any) {
	fmt.Fprintf(l.out, format+"\n", args...)
}

// Errorf logs an error. Under Actions this becomes a red annotation.
func (l *Logger) Errorf(format string, args ...any) {
	l.command("error", format, args...)
}

// Warnf logs a warning annotation.
func (l *Logger) Warnf(format string, args ...any) {
	l.command("warning", format, args...)
}

// Debugf logs a debug line, visible in Actions only when step debug
// logging is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	l.command("debug", format, args...)
}

// Progressf logs a transient progress line (poll status updates).
func (l *Logger) Progressf(format string, args ...any) {
	if l.progress {
		fmt.Fprintf(l.out, format+"\n", args...)
	}
}

// Group opens a collapsible log group under Actions.
func (l *Logger) Group(title string) {
	if l.actions {
		fmt.Fprintf(l.out, "::group::%s\n", title)
	} else {
		fmt.Fprintf(l.out, "--- %s ---\n", title)
	}
}

// EndGroup closes the current log group.
func (l *Logger) EndGroup() {
	if l.actions {
		fmt.Fprintln(l.out, "::endgroup::")
	}
}

func (l *Logger) command(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.actions {
		fmt.Fprintf(l.out, "::%s::%s\n", level, msg)
	} else {
		fmt.Fprintf(l.out, "%s: %s\n", level, msg)
	}
}
