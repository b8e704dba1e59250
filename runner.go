package migratory

import (
	"context"
	"errors"
	"fmt"
)

// RunnerOption configures a Runner at construction.
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	logger Logger
}

// WithLogger sets the Logger used by the Runner. It takes precedence over a
// logger supplied by the Config.
func WithLogger(logger Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// Runner executes migration plans against a Config.
//
// A Runner never runs two steps at once. The first failing step stops the
// enclosing operation; every earlier step stays committed and the failing
// migration is left in StateFailed.
type Runner[A any] struct {
	config  Config[A]
	planner *Planner
	logger  Logger
	args    *argsCache[A]
}

// NewRunner returns a Runner bound to config, which must be non-nil.
//
// The logger is chosen from, in order: the WithLogger option, the config's
// own Logger when it implements LoggerProvider, and a ConsoleLogger.
//
// Parameters:
//   - config: The backend capability bundle.
//   - opts: Optional settings.
//
// Returns:
//   - *Runner[A]: A new runner.
func NewRunner[A any](config Config[A], opts ...RunnerOption) *Runner[A] {
	var o runnerOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		if lp, ok := config.(LoggerProvider); ok {
			logger = lp.Logger()
		}
	}
	if logger == nil {
		logger = NewConsoleLogger()
	}
	return &Runner[A]{
		config:  config,
		planner: NewPlanner(config),
		logger:  logger,
		args:    newArgsCache[A](config),
	}
}

// WithLogger returns a Runner bound to the same config and argument cache
// but reporting to logger.
//
// Parameters:
//   - logger: The logger to use. Nil discards all output.
//
// Returns:
//   - *Runner[A]: A new runner.
func (r *Runner[A]) WithLogger(logger Logger) *Runner[A] {
	if logger == nil {
		logger = NopLogger{}
	}
	new := *r
	new.logger = logger
	return &new
}

// Logger returns the runner's Logger.
func (r *Runner[A]) Logger() Logger {
	return r.logger
}

// IsInitialized reports whether the backing store is initialized.
func (r *Runner[A]) IsInitialized(ctx context.Context) (bool, error) {
	return r.config.IsInitialized(ctx)
}

// Initialize performs the backing store's one-time setup.
func (r *Runner[A]) Initialize(ctx context.Context) error {
	return r.config.Initialize(ctx)
}

func (r *Runner[A]) ensureInitialized(ctx context.Context) error {
	ok, err := r.config.IsInitialized(ctx)
	if err != nil {
		return fmt.Errorf("check initialized: %w", err)
	}
	if ok {
		return nil
	}
	if err := r.config.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// PlanMigration returns the actions Migrate would run, without running
// them.
func (r *Runner[A]) PlanMigration(ctx context.Context) ([]Action, error) {
	return r.planner.PlanMigration(ctx)
}

// Migrate plans and executes every action needed to reconcile the record
// store with the declared migrations.
//
// Parameters:
//   - ctx: Context passed to the backend and migration bodies.
//
// Returns:
//   - error: The first error raised. A *StepError when a migration body
//     failed.
func (r *Runner[A]) Migrate(ctx context.Context) error {
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	plan, err := r.planner.PlanMigration(ctx)
	if err != nil {
		return err
	}
	return r.runPlan(ctx, plan)
}

// MigrateOneUp runs the up operation of a single migration regardless of
// its recorded state.
func (r *Runner[A]) MigrateOneUp(ctx context.Context, migrationID string) error {
	return r.runStep(ctx, migrationID, ActionUp)
}

// MigrateOneDown runs the down operation of a single migration regardless
// of its recorded state.
func (r *Runner[A]) MigrateOneDown(ctx context.Context, migrationID string) error {
	return r.runStep(ctx, migrationID, ActionDown)
}

// RerunOne runs down and then up for a single migration. A failing down
// leaves the migration failed and up is not attempted.
func (r *Runner[A]) RerunOne(ctx context.Context, migrationID string) error {
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	return r.runPlan(ctx, []Action{
		{MigrationID: migrationID, Type: ActionDown},
		{MigrationID: migrationID, Type: ActionUp},
	})
}

// MarkFailed sets a migration's record to StateFailed without running any
// code.
func (r *Runner[A]) MarkFailed(ctx context.Context, migrationID string) error {
	return r.SetMigrationState(ctx, migrationID, StateFailed)
}

// Drop sets a migration's record to StateDown without running any code, so
// the next Migrate applies it again.
func (r *Runner[A]) Drop(ctx context.Context, migrationID string) error {
	return r.SetMigrationState(ctx, migrationID, StateDown)
}

// SetMigrationState writes a record directly.
//
// Parameters:
//   - ctx: Context to use.
//   - migrationID: The migration to update.
//   - state: The new state.
//
// Returns:
//   - error: An error if state is unknown or the write fails.
func (r *Runner[A]) SetMigrationState(
	ctx context.Context, migrationID string, state MigrationState,
) error {
	if !state.Valid() {
		return fmt.Errorf("unknown migration state %q", state)
	}
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := r.config.SetMigrationState(ctx, migrationID, state); err != nil {
		return fmt.Errorf("set state of %s to %s: %w", migrationID, state, err)
	}
	return nil
}

// ListMigrationIDs returns every declared migration ID.
func (r *Runner[A]) ListMigrationIDs(ctx context.Context) ([]string, error) {
	if err := r.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return r.config.ListMigrationIDs(ctx)
}

// GetAllMigrationRecords returns every persisted record.
func (r *Runner[A]) GetAllMigrationRecords(ctx context.Context) ([]MigrationRecord, error) {
	if err := r.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return r.config.GetAllMigrationRecords(ctx)
}

// DisplayPlan computes the plan and hands it to the Logger.
func (r *Runner[A]) DisplayPlan(ctx context.Context) ([]Action, error) {
	plan, err := r.PlanMigration(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.DisplayPlan(plan)
	return plan, nil
}

// DisplayState loads every record and hands the list to the Logger.
func (r *Runner[A]) DisplayState(ctx context.Context) ([]MigrationRecord, error) {
	records, err := r.GetAllMigrationRecords(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.DisplayState(records)
	return records, nil
}

// Destroy runs down for every record not already down, walking the record
// list from last to first, then tears down the backing store.
func (r *Runner[A]) Destroy(ctx context.Context) error {
	if err := r.migrateAllDown(ctx); err != nil {
		return err
	}
	if err := r.config.Destroy(ctx); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

func (r *Runner[A]) migrateAllDown(ctx context.Context) error {
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	records, err := r.config.GetAllMigrationRecords(ctx)
	if err != nil {
		return fmt.Errorf("get migration records: %w", err)
	}
	var plan []Action
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].State == StateDown {
			continue
		}
		plan = append(plan, Action{MigrationID: records[i].MigrationID, Type: ActionDown})
	}
	return r.runPlan(ctx, plan)
}

// runPlan executes plan in order and stops at the first error.
func (r *Runner[A]) runPlan(ctx context.Context, plan []Action) error {
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	for _, action := range plan {
		switch action.Type {
		case ActionDeleteRecord:
			if err := r.config.DeleteMigrationRecord(ctx, action.MigrationID); err != nil {
				return fmt.Errorf("delete record of %s: %w", action.MigrationID, err)
			}
		case ActionDown, ActionUp:
			if err := r.runStep(ctx, action.MigrationID, action.Type); err != nil {
				return err
			}
		default:
			return fmt.Errorf(
				"%w %q on migration %q", ErrUnsupportedAction, action.Type, action.MigrationID,
			)
		}
	}
	return nil
}

// runStep runs one direction of one migration and records the outcome.
func (r *Runner[A]) runStep(ctx context.Context, migrationID string, action ActionType) error {
	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}
	r.logger.StartMigrationAction(migrationID, action)

	migration, err := r.config.LoadMigration(ctx, migrationID)
	if err != nil && !errors.Is(err, ErrMigrationNotFound) {
		return fmt.Errorf("load migration %s: %w", migrationID, err)
	}
	args, argsErr := r.args.get(ctx)
	if argsErr != nil {
		return fmt.Errorf("get migration args: %w", argsErr)
	}

	var bodyErr error
	switch {
	case err != nil:
		bodyErr = err
	case migration == nil:
		bodyErr = fmt.Errorf("%w: %q", ErrMigrationNotFound, migrationID)
	case action == ActionUp:
		bodyErr = migration.Up(ctx, args)
	default:
		bodyErr = migration.Down(ctx, args)
	}
	if bodyErr != nil {
		return r.fail(ctx, migrationID, action, bodyErr)
	}

	r.logger.CompleteMigrationAction(migrationID, action)
	target := StateUp
	if action == ActionDown {
		target = StateDown
	}
	if err := r.config.SetMigrationState(ctx, migrationID, target); err != nil {
		return fmt.Errorf("set state of %s to %s: %w", migrationID, target, err)
	}
	return nil
}

// fail records StateFailed for a step, notifies the logger and returns the
// step error.
func (r *Runner[A]) fail(
	ctx context.Context, migrationID string, action ActionType, cause error,
) error {
	stepErr := &StepError{MigrationID: migrationID, Action: action, Err: cause}
	stateErr := r.config.SetMigrationState(ctx, migrationID, StateFailed)
	r.logger.FailedMigrationAction(migrationID, action, cause)
	if stateErr != nil {
		return errors.Join(
			stepErr,
			fmt.Errorf("record failed state for %s: %w", migrationID, stateErr),
		)
	}
	return stepErr
}
