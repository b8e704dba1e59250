// Package sqlstore persists migration records in a SQL table. SQLite and
// MySQL are supported through Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/aatuh/migratory"
)

const (
	// DefaultTable is the records table used when none is configured.
	DefaultTable = "migratory_records"
	// DefaultNamespace separates record sets of different systems sharing
	// one table.
	DefaultNamespace = "default"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a migratory.RecordStore backed by a SQL table.
type Store struct {
	DB        *sql.DB
	Dialect   Dialect
	Table     string
	Namespace string
	now       func() time.Time
}

var _ migratory.RecordStore = (*Store)(nil)

// New returns a Store using the default table and namespace.
//
// Parameters:
//   - db: A connection to the database holding the records table.
//   - dialect: The SQL dialect of db.
//
// Returns:
//   - *Store: A new Store.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		DB:        db,
		Dialect:   dialect,
		Table:     DefaultTable,
		Namespace: DefaultNamespace,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithTable returns a new Store using the given table name.
//
// Parameters:
//   - table: The name of the records table.
//
// Returns:
//   - *Store: A new Store.
func (s *Store) WithTable(table string) *Store {
	new := *s
	new.Table = table
	return &new
}

// WithNamespace returns a new Store scoped to namespace. It is used to
// keep the records of multiple systems apart in one table.
//
// Parameters:
//   - namespace: The namespace of the records.
//
// Returns:
//   - *Store: A new Store.
func (s *Store) WithNamespace(namespace string) *Store {
	new := *s
	new.Namespace = namespace
	return &new
}

func (s *Store) check() error {
	if s.DB == nil {
		return fmt.Errorf("sqlstore: database is required")
	}
	if s.Dialect == nil {
		return fmt.Errorf("sqlstore: dialect is required")
	}
	if !identifierRe.MatchString(s.Table) {
		return fmt.Errorf("sqlstore: invalid table name %q", s.Table)
	}
	return nil
}

// Initialize creates the records table if it does not exist.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, s.Dialect.CreateTableSQL(s.Table)); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}
	return nil
}

// IsInitialized reports whether the records table exists.
func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.tableExists(ctx)
}

func (s *Store) tableExists(ctx context.Context) (bool, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, s.Dialect.TableExistsSQL(), s.Table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", s.Table, err)
	}
	return count > 0, nil
}

// Destroy deletes this namespace's records and drops the table once no
// namespace has records left.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = ?`, s.Table)
	if _, err := s.DB.ExecContext(ctx, query, s.Namespace); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	var remaining int
	query = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.Table)
	if err := s.DB.QueryRowContext(ctx, query).Scan(&remaining); err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if remaining > 0 {
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.Table)); err != nil {
		return fmt.Errorf("drop table %s: %w", s.Table, err)
	}
	return nil
}

// GetAllMigrationRecords returns the namespace's records in first-write
// order. A missing table reads as no records.
func (s *Store) GetAllMigrationRecords(ctx context.Context) ([]migratory.MigrationRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT migration_id, state FROM %s WHERE namespace = ? ORDER BY id`,
		s.Table,
	)
	rows, err := s.DB.QueryContext(ctx, query, s.Namespace)
	if err != nil {
		if exists, existsErr := s.tableExists(ctx); existsErr == nil && !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []migratory.MigrationRecord
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		state, err := migratory.ParseMigrationState(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, migratory.MigrationRecord{MigrationID: id, State: state})
	}
	return records, rows.Err()
}

// SetMigrationState upserts the record for id.
func (s *Store) SetMigrationState(
	ctx context.Context, id string, state migratory.MigrationState,
) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(
		ctx, s.Dialect.UpsertSQL(s.Table), s.Namespace, id, string(state), s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", id, err)
	}
	return nil
}

// DeleteMigrationRecord removes the record for id if present.
func (s *Store) DeleteMigrationRecord(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = ? AND migration_id = ?`,
		s.Table,
	)
	if _, err := s.DB.ExecContext(ctx, query, s.Namespace, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}
