package source

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Executor is an interface that both *sql.DB and *sql.Tx implement.
type Executor interface {
	ExecContext(
		ctx context.Context, query string, args ...any,
	) (sql.Result, error)
}

// DB is the argument handed to SQL migrations. *sql.DB implements it.
type DB interface {
	Executor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Step defines a step that can be executed in up/down mode.
type Step interface {
	ExecuteUp(ctx context.Context, exec Executor) error
	ExecuteDown(ctx context.Context, exec Executor) error
}

// HookFn is a generic hook function.
type HookFn func(ctx context.Context, exec Executor) error

// FileHookFn is a hook function that accepts a file path.
type FileHookFn func(ctx context.Context, exec Executor, filePath string) error

// SQLStep executes a plain SQL statement in either direction. Blank SQL is
// skipped.
type SQLStep struct {
	SQL string
}

// NewSQLStep returns a new SQLStep.
//
// Parameters:
//   - sql: The SQL statement to execute.
//
// Returns:
//   - *SQLStep: A new SQLStep.
func NewSQLStep(sql string) *SQLStep {
	return &SQLStep{SQL: sql}
}

// WithSQL returns a new SQLStep with the given SQL statement.
func (s *SQLStep) WithSQL(sql string) *SQLStep {
	new := *s
	new.SQL = sql
	return &new
}

func (s SQLStep) exec(ctx context.Context, exec Executor) error {
	if strings.TrimSpace(s.SQL) == "" {
		return nil
	}
	_, err := exec.ExecContext(ctx, s.SQL)
	return err
}

// ExecuteUp executes the SQL statement.
func (s SQLStep) ExecuteUp(ctx context.Context, exec Executor) error {
	return s.exec(ctx, exec)
}

// ExecuteDown executes the SQL statement.
func (s SQLStep) ExecuteDown(ctx context.Context, exec Executor) error {
	return s.exec(ctx, exec)
}

// HookStep executes custom hook functions.
type HookStep struct {
	UpHook   HookFn
	DownHook HookFn
}

// NewHookStep returns an empty HookStep.
func NewHookStep() *HookStep {
	return &HookStep{}
}

// WithUpHook returns a new HookStep with the given up hook.
//
// Parameters:
//   - upHook: The up hook to use.
//
// Returns:
//   - *HookStep: A new hook step.
func (h *HookStep) WithUpHook(upHook HookFn) *HookStep {
	new := *h
	new.UpHook = upHook
	return &new
}

// WithDownHook returns a new HookStep with the given down hook.
//
// Parameters:
//   - downHook: The down hook to use.
//
// Returns:
//   - *HookStep: A new hook step.
func (h *HookStep) WithDownHook(downHook HookFn) *HookStep {
	new := *h
	new.DownHook = downHook
	return &new
}

// ExecuteUp executes the up hook.
func (h HookStep) ExecuteUp(ctx context.Context, exec Executor) error {
	if h.UpHook == nil {
		return errors.New("up hook not defined")
	}
	return h.UpHook(ctx, exec)
}

// ExecuteDown executes the down hook.
func (h HookStep) ExecuteDown(ctx context.Context, exec Executor) error {
	if h.DownHook == nil {
		return errors.New("down hook not defined")
	}
	return h.DownHook(ctx, exec)
}
