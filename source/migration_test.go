package source

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSQLMigration_ID(t *testing.T) {
	assert.Equal(t, "001_init", NewSQLMigration("001", "init").ID())
	assert.Equal(t, "001", NewSQLMigration("001", "").ID())
}

func TestSQLMigration_TransactionalCommit(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a(x int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b(x int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mig := NewSQLMigration("001", "ab").
		WithUpSteps([]Step{NewSQLStep("CREATE TABLE a(x int)"), NewSQLStep("CREATE TABLE b(x int)")}).
		WithTransactional(true)
	require.NoError(t, mig.Up(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMigration_TransactionalRollbackOnError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("syntax error")
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("FAIL").WillReturnError(boom)
	mock.ExpectRollback()

	mig := NewSQLMigration("001", "ab").
		WithDownSteps([]Step{NewSQLStep("DROP TABLE a"), NewSQLStep("FAIL"), NewSQLStep("NEVER")}).
		WithTransactional(true)
	err := mig.Down(context.Background(), db)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "down step 2 of 001_ab")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMigration_RollbackFailureReportsBoth(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("FAIL").WillReturnError(errors.New("exec failed"))
	mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

	mig := NewSQLMigration("002", "x").
		WithUpSteps([]Step{NewSQLStep("FAIL")}).
		WithTransactional(true)
	err := mig.Up(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec failed")
	assert.Contains(t, err.Error(), "rollback failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMigration_NonTransactional(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE a(x int)").WillReturnResult(sqlmock.NewResult(0, 0))

	mig := NewSQLMigration("001", "a").
		WithUpSteps([]Step{NewSQLStep("  "), NewSQLStep("CREATE TABLE a(x int)")})
	require.NoError(t, mig.Up(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMigration_BeginFails(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	mig := NewSQLMigration("001", "a").
		WithUpSteps([]Step{NewSQLStep("X")}).
		WithTransactional(true)
	err := mig.Up(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestHookStep_MissingHooksReturnError(t *testing.T) {
	h := NewHookStep()
	require.EqualError(t, h.ExecuteUp(context.Background(), nil), "up hook not defined")
	require.EqualError(t, h.ExecuteDown(context.Background(), nil), "down hook not defined")
}

func TestSQLStep_WithSQL(t *testing.T) {
	s := NewSQLStep("A")
	s2 := s.WithSQL("B")
	assert.Equal(t, "A", s.SQL)
	assert.Equal(t, "B", s2.SQL)
}
