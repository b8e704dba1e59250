package migratory

import (
	"context"
	"errors"
)

// Migration is an opaque reversible unit of work. A is the argument value
// passed to every migration body, for example a database handle.
type Migration[A any] interface {
	Up(ctx context.Context, args A) error
	Down(ctx context.Context, args A) error
}

// MigrationSource enumerates and loads the declared migrations.
type MigrationSource[A any] interface {
	// ListMigrationIDs returns every currently declared migration ID.
	ListMigrationIDs(ctx context.Context) ([]string, error)
	// LoadMigration returns the body for id. A missing migration is
	// reported either as a nil Migration or as an error wrapping
	// ErrMigrationNotFound.
	LoadMigration(ctx context.Context, id string) (Migration[A], error)
}

// RecordStore persists migration records and owns the backing store
// lifecycle.
type RecordStore interface {
	// Initialize performs one-time setup of the backing store.
	Initialize(ctx context.Context) error
	// IsInitialized reports whether Initialize has run.
	IsInitialized(ctx context.Context) (bool, error)
	// Destroy reverses Initialize.
	Destroy(ctx context.Context) error
	// GetAllMigrationRecords returns every record in store-defined order.
	GetAllMigrationRecords(ctx context.Context) ([]MigrationRecord, error)
	// SetMigrationState upserts the record for id.
	SetMigrationState(ctx context.Context, id string, state MigrationState) error
	// DeleteMigrationRecord removes the record for id. Deleting a missing
	// record is not an error.
	DeleteMigrationRecord(ctx context.Context, id string) error
}

// ArgsProvider produces the argument value handed to migration bodies.
type ArgsProvider[A any] interface {
	Args(ctx context.Context) (A, error)
}

// ArgsFunc adapts a function to ArgsProvider.
type ArgsFunc[A any] func(ctx context.Context) (A, error)

// Args calls f.
func (f ArgsFunc[A]) Args(ctx context.Context) (A, error) {
	return f(ctx)
}

// StaticArgs returns an ArgsProvider that always yields args.
func StaticArgs[A any](args A) ArgsFunc[A] {
	return func(context.Context) (A, error) { return args, nil }
}

// Config is the full capability bundle a backend implements for the
// Runner. It is the only path from the core to persistent storage.
type Config[A any] interface {
	MigrationSource[A]
	RecordStore
	ArgsProvider[A]
}

// LoggerProvider may be implemented by a Config to supply its own Logger.
type LoggerProvider interface {
	Logger() Logger
}

// PlanSource is the read-only part of a Config the Planner needs.
type PlanSource interface {
	ListMigrationIDs(ctx context.Context) ([]string, error)
	GetAllMigrationRecords(ctx context.Context) ([]MigrationRecord, error)
}

// ComposedConfig is a Config assembled from independent parts.
type ComposedConfig[A any] struct {
	MigrationSource[A]
	RecordStore
	ArgsProvider[A]
	logger Logger
}

// Compose builds a Config from a migration source, a record store and an
// argument provider.
//
// Parameters:
//   - source: Declares and loads migrations.
//   - store: Persists migration records.
//   - args: Produces the value passed to every migration body.
//
// Returns:
//   - *ComposedConfig[A]: The assembled configuration.
//   - error: An error if any part is nil.
func Compose[A any](
	source MigrationSource[A],
	store RecordStore,
	args ArgsProvider[A],
) (*ComposedConfig[A], error) {
	if source == nil {
		return nil, errors.New("migration source is required")
	}
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if args == nil {
		return nil, errors.New("args provider is required")
	}
	return &ComposedConfig[A]{
		MigrationSource: source,
		RecordStore:     store,
		ArgsProvider:    args,
	}, nil
}

// WithLogger returns a copy of the config that supplies logger to runners
// built from it.
//
// Parameters:
//   - logger: The logger to use.
//
// Returns:
//   - *ComposedConfig[A]: A new config.
func (c *ComposedConfig[A]) WithLogger(logger Logger) *ComposedConfig[A] {
	new := *c
	new.logger = logger
	return &new
}

// Logger returns the attached logger, or nil when none was set.
func (c *ComposedConfig[A]) Logger() Logger {
	return c.logger
}
