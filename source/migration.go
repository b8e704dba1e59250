package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aatuh/migratory"
)

// SQLMigration holds a migration's version, name, and its up and down
// steps. It runs against a DB.
type SQLMigration struct {
	Version   string
	Name      string
	UpSteps   []Step
	DownSteps []Step
	// Transactional runs all steps of one direction in a single
	// transaction.
	Transactional bool
}

var _ migratory.Migration[DB] = (*SQLMigration)(nil)

// NewSQLMigration returns a new migration without steps.
//
// Parameters:
//   - version: The version of the migration.
//   - name: The name of the migration.
//
// Returns:
//   - *SQLMigration: A new migration.
func NewSQLMigration(version string, name string) *SQLMigration {
	return &SQLMigration{Version: version, Name: name}
}

// WithUpSteps returns a new SQLMigration with the given up steps.
func (m *SQLMigration) WithUpSteps(upSteps []Step) *SQLMigration {
	new := *m
	new.UpSteps = upSteps
	return &new
}

// WithDownSteps returns a new SQLMigration with the given down steps.
func (m *SQLMigration) WithDownSteps(downSteps []Step) *SQLMigration {
	new := *m
	new.DownSteps = downSteps
	return &new
}

// WithTransactional returns a new SQLMigration with the transactional flag
// set.
//
// Parameters:
//   - transactional: Whether to use transactions.
//
// Returns:
//   - *SQLMigration: A new migration.
func (m *SQLMigration) WithTransactional(transactional bool) *SQLMigration {
	new := *m
	new.Transactional = transactional
	return &new
}

// ID returns the migration ID: "version_name", or just the version when
// the migration is unnamed.
func (m *SQLMigration) ID() string {
	if m.Name == "" {
		return m.Version
	}
	return m.Version + "_" + m.Name
}

// Up runs the up steps in order.
func (m *SQLMigration) Up(ctx context.Context, db DB) error {
	return m.run(ctx, db, m.UpSteps, migratory.ActionUp)
}

// Down runs the down steps in order.
func (m *SQLMigration) Down(ctx context.Context, db DB) error {
	return m.run(ctx, db, m.DownSteps, migratory.ActionDown)
}

func (m *SQLMigration) run(
	ctx context.Context, db DB, steps []Step, direction migratory.ActionType,
) error {
	if !m.Transactional {
		return executeSteps(ctx, db, steps, m.ID(), direction)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := executeSteps(ctx, tx, steps, m.ID(), direction); err != nil {
		return rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rollback rolls back tx and reports both errors if that fails too.
func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return fmt.Errorf(
			"error processing migration: %w, also error rolling back transaction: %v",
			err,
			rbErr,
		)
	}
	return err
}

// executeSteps executes steps in the given direction and stops at the first
// error.
func executeSteps(
	ctx context.Context,
	exec Executor,
	steps []Step,
	migrationID string,
	direction migratory.ActionType,
) error {
	for idx, step := range steps {
		var err error
		if direction == migratory.ActionUp {
			err = step.ExecuteUp(ctx, exec)
		} else {
			err = step.ExecuteDown(ctx, exec)
		}
		if err != nil {
			return fmt.Errorf("%s step %d of %s: %w", direction, idx+1, migrationID, err)
		}
	}
	return nil
}
