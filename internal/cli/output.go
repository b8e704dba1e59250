package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A migration or record store operation failed
	ExitCommandError = 2 // Bad flags, arguments or configuration
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Kind    string // Short machine-readable category for JSON output
	Message string
	Err     error // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// failure wraps err as a failed operation.
func failure(message string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Kind: "migration", Message: message, Err: err}
}

// commandError wraps err as a usage or configuration problem.
func commandError(kind, message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Kind: kind, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that carry no
// code come from flag and argument parsing and map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command in JSON output.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Exit    int    `json:"exit"`
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data. In text mode only a non-empty message is printed.
func (f *OutputFormatter) Success(message string, data any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if message != "" {
		_, err := fmt.Fprintln(f.Writer, message)
		return err
	}
	return nil
}

// Error writes err in the configured format.
func (f *OutputFormatter) Error(err error) {
	code, kind := GetExitCode(err), "command"
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Kind != "" {
		kind = exitErr.Kind
	}
	if f.JSON() {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: kind, Message: err.Error(), Exit: code},
		})
		return
	}
	fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", kind, err)
}

// VerboseLog writes a diagnostic line when verbose mode is on. It never
// writes to the JSON stream.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
