package sqlstore

import "fmt"

// Dialect supplies the database-specific SQL used by Store. Statements use
// "?" placeholders.
type Dialect interface {
	// Name identifies the dialect in errors and logs.
	Name() string
	// CreateTableSQL returns the DDL for the records table.
	CreateTableSQL(table string) string
	// TableExistsSQL returns a query taking the table name and yielding a
	// count greater than zero when the table exists.
	TableExistsSQL() string
	// UpsertSQL returns a statement taking namespace, migration ID, state
	// and update time. It must keep the row's id on update so listing order
	// is stable.
	UpsertSQL(table string) string
}

// SQLite is the Dialect for SQLite.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) CreateTableSQL(table string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		migration_id TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (namespace, migration_id))`,
		table,
	)
}

func (SQLite) TableExistsSQL() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (SQLite) UpsertSQL(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (namespace, migration_id, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, migration_id)
		DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		table,
	)
}

// MySQL is the Dialect for MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) CreateTableSQL(table string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		namespace VARCHAR(255) NOT NULL,
		migration_id VARCHAR(255) NOT NULL,
		state VARCHAR(16) NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_%s_migration (namespace, migration_id))`,
		table,
		table,
	)
}

func (MySQL) TableExistsSQL() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
}

func (MySQL) UpsertSQL(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (namespace, migration_id, state, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`,
		table,
	)
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", name)
	}
}
