package migratory

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
)

// Logger receives lifecycle notifications from the Runner. Implementations
// must not fail in a way that affects migration execution, so no method
// returns an error.
type Logger interface {
	Info(message string)
	Error(message string)
	StartMigrationAction(migrationID string, action ActionType)
	CompleteMigrationAction(migrationID string, action ActionType)
	FailedMigrationAction(migrationID string, action ActionType, err error)
	DisplayPlan(actions []Action)
	DisplayState(records []MigrationRecord)
}

// ConsoleLogger is the default Logger. It writes plain progress lines to
// Out and failures to Err.
type ConsoleLogger struct {
	Out io.Writer
	Err io.Writer

	info    *color.Color
	success *color.Color
	failure *color.Color
	detail  *color.Color
}

// NewConsoleLogger returns a ConsoleLogger writing to stdout and stderr.
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stdout, os.Stderr)
}

// NewConsoleLoggerTo returns a ConsoleLogger writing to the given writers.
//
// Parameters:
//   - out: Destination for informational output.
//   - errOut: Destination for error output.
//
// Returns:
//   - *ConsoleLogger: A new console logger.
func NewConsoleLoggerTo(out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{
		Out:     out,
		Err:     errOut,
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		detail:  color.New(color.FgYellow),
	}
}

// WithoutColor returns a copy of the logger that never emits ANSI escapes.
func (l *ConsoleLogger) WithoutColor() *ConsoleLogger {
	new := *l
	new.info = plain(l.info)
	new.success = plain(l.success)
	new.failure = plain(l.failure)
	new.detail = plain(l.detail)
	return &new
}

func plain(c *color.Color) *color.Color {
	// Copy so the original logger keeps its colors.
	p := *c
	p.DisableColor()
	return &p
}

func (l *ConsoleLogger) Info(message string) {
	fmt.Fprintln(l.Out, message)
}

func (l *ConsoleLogger) Error(message string) {
	l.failure.Fprintln(l.Err, message)
}

func (l *ConsoleLogger) StartMigrationAction(migrationID string, action ActionType) {
	l.info.Fprintf(l.Out, "Starting to run %s, %q...\n", migrationID, string(action))
}

func (l *ConsoleLogger) CompleteMigrationAction(migrationID string, action ActionType) {
	l.success.Fprintf(l.Out, "Successfully finished %q on %s.\n", string(action), migrationID)
}

func (l *ConsoleLogger) FailedMigrationAction(migrationID string, action ActionType, err error) {
	l.failure.Fprintf(
		l.Err,
		"Could not complete %q on %s. This migration will be in a failed state until it is fixed manually.\n",
		string(action),
		migrationID,
	)
	if err != nil {
		l.detail.Fprintln(l.Err, err.Error())
	}
}

func (l *ConsoleLogger) DisplayPlan(actions []Action) {
	for _, a := range actions {
		fmt.Fprintf(l.Out, " - %s: %s\n", a.Type, strconv.Quote(a.MigrationID))
	}
	fmt.Fprintf(l.Out, "%d %s\n", len(actions), plural(len(actions), "action", "actions"))
}

func (l *ConsoleLogger) DisplayState(records []MigrationRecord) {
	for _, r := range records {
		fmt.Fprintf(l.Out, " - %s: %s\n", r.State, strconv.Quote(r.MigrationID))
	}
	fmt.Fprintf(l.Out, "%d %s\n", len(records), plural(len(records), "migration", "migrations"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string)                                     {}
func (NopLogger) Error(string)                                    {}
func (NopLogger) StartMigrationAction(string, ActionType)         {}
func (NopLogger) CompleteMigrationAction(string, ActionType)      {}
func (NopLogger) FailedMigrationAction(string, ActionType, error) {}
func (NopLogger) DisplayPlan([]Action)                            {}
func (NopLogger) DisplayState([]MigrationRecord)                  {}
