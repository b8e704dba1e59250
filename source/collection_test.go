package source_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatuh/migratory"
	"github.com/aatuh/migratory/source"
	"github.com/aatuh/migratory/store/sqlstore"
)

type failingLoader struct{}

func (failingLoader) LoadMigrations() ([]*source.SQLMigration, error) {
	return nil, errors.New("disk on fire")
}

func TestCollection_ListsSortedAndLoads(t *testing.T) {
	c := source.NewCollection(
		source.NewVarLoader("002", "b", "B", ""),
		source.NewVarLoader("001", "a", "A", ""),
	)
	ids, err := c.ListMigrationIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a", "002_b"}, ids)

	mig, err := c.LoadMigration(context.Background(), "002_b")
	require.NoError(t, err)
	assert.Equal(t, "002_b", mig.(*source.SQLMigration).ID())

	_, err = c.LoadMigration(context.Background(), "003_c")
	require.ErrorIs(t, err, migratory.ErrMigrationNotFound)
}

func TestCollection_MigrationsInIDOrder(t *testing.T) {
	c := source.NewCollection(
		source.NewVarLoader("002", "b", "B", ""),
		source.NewVarLoader("001", "a", "A", "DROP A"),
	)
	migs, err := c.Migrations()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_a", migs[0].ID())
	assert.Equal(t, "002_b", migs[1].ID())
	assert.Len(t, migs[0].UpSteps, 1)

	_, err = source.NewCollection(failingLoader{}).Migrations()
	assert.ErrorContains(t, err, "disk on fire")
}

func TestCollection_RejectsDuplicates(t *testing.T) {
	c := source.NewCollection(
		source.NewVarLoader("001", "a", "A", ""),
		source.NewVarLoader("001", "a", "A2", ""),
	)
	_, err := c.ListMigrationIDs(context.Background())
	require.ErrorContains(t, err, "duplicate migration 001_a")
}

func TestCollection_RejectsMissingUpSteps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_a_down.sql"), []byte("X"), 0o644))

	c := source.NewCollection(source.NewDirLoader(dir))
	require.ErrorContains(t, c.Validate(), "migration 001_a has no up steps")
}

func TestCollection_LoaderError(t *testing.T) {
	c := source.NewCollection(failingLoader{})
	_, err := c.ListMigrationIDs(context.Background())
	require.ErrorContains(t, err, "disk on fire")
	require.ErrorIs(t, source.NewCollection().Validate(), source.ErrNoLoaders)
}

// TestCollection_EndToEndSQLite migrates a real SQLite database with SQL
// files and records the states in the same database.
func TestCollection_EndToEndSQLite(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("001_users_up.sql", "CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT);")
	write("001_users_down.sql", "DROP TABLE users;")
	write("002_seed_up.sql", "INSERT INTO users(name) VALUES ('ada');")
	write("002_seed_down.sql", "DELETE FROM users;")

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	cfg, err := migratory.Compose[source.DB](
		source.NewCollection(source.NewDirLoader(dir).WithTransactional(true)),
		sqlstore.New(db, sqlstore.SQLite{}),
		migratory.StaticArgs[source.DB](db),
	)
	require.NoError(t, err)
	runner := migratory.NewRunner[source.DB](cfg, migratory.WithLogger(migratory.NopLogger{}))
	ctx := context.Background()

	require.NoError(t, runner.Migrate(ctx))
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)

	records, err := runner.GetAllMigrationRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migratory.MigrationRecord{
		{MigrationID: "001_users", State: migratory.StateUp},
		{MigrationID: "002_seed", State: migratory.StateUp},
	}, records)

	plan, err := runner.PlanMigration(ctx)
	require.NoError(t, err)
	assert.Empty(t, plan)

	require.NoError(t, runner.Destroy(ctx))
	var tables int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'",
	).Scan(&tables))
	assert.Zero(t, tables)
}
