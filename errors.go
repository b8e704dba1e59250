package migratory

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationNotFound is returned when a migration ID has no loadable
	// body.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrUnsupportedAction is returned when a plan contains an action type
	// the runner cannot execute directly.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// StepError reports a failed up or down step. The migration's record has
// been set to StateFailed by the time a StepError is returned.
type StepError struct {
	MigrationID string
	Action      ActionType
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Action, e.MigrationID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsStepError reports whether err carries a StepError.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}
