// Package storetest holds the behavior every migratory.RecordStore must
// share. Store packages run it from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatuh/migratory"
)

// Factory returns a fresh, uninitialized store for one subtest.
type Factory func(t *testing.T) migratory.RecordStore

// Run executes the shared record store checks against stores built by
// newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Lifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		ok, err := s.IsInitialized(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "fresh store should not be initialized")

		require.NoError(t, s.Initialize(ctx))
		require.NoError(t, s.Initialize(ctx), "Initialize should be idempotent")

		ok, err = s.IsInitialized(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Destroy(ctx))
		ok, err = s.IsInitialized(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "Destroy should clear initialization")
	})

	t.Run("UninitializedReadsEmpty", func(t *testing.T) {
		s := newStore(t)
		records, err := s.GetAllMigrationRecords(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("UpsertKeepsFirstWriteOrder", func(t *testing.T) {
		ctx := context.Background()
		s := initialized(t, newStore)

		require.NoError(t, s.SetMigrationState(ctx, "2", migratory.StateUp))
		require.NoError(t, s.SetMigrationState(ctx, "1", migratory.StateUp))
		require.NoError(t, s.SetMigrationState(ctx, "3", migratory.StateFailed))
		require.NoError(t, s.SetMigrationState(ctx, "2", migratory.StateDown))

		records, err := s.GetAllMigrationRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []migratory.MigrationRecord{
			{MigrationID: "2", State: migratory.StateDown},
			{MigrationID: "1", State: migratory.StateUp},
			{MigrationID: "3", State: migratory.StateFailed},
		}, records)
	})

	t.Run("DeleteRecord", func(t *testing.T) {
		ctx := context.Background()
		s := initialized(t, newStore)

		require.NoError(t, s.SetMigrationState(ctx, "a", migratory.StateUp))
		require.NoError(t, s.SetMigrationState(ctx, "b", migratory.StateUp))
		require.NoError(t, s.DeleteMigrationRecord(ctx, "a"))
		require.NoError(t, s.DeleteMigrationRecord(ctx, "missing"), "deleting a missing record is a no-op")

		records, err := s.GetAllMigrationRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []migratory.MigrationRecord{{MigrationID: "b", State: migratory.StateUp}}, records)

		// A re-created record moves to the end.
		require.NoError(t, s.SetMigrationState(ctx, "a", migratory.StateDown))
		records, err = s.GetAllMigrationRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []migratory.MigrationRecord{
			{MigrationID: "b", State: migratory.StateUp},
			{MigrationID: "a", State: migratory.StateDown},
		}, records)
	})

	t.Run("DestroyDropsRecords", func(t *testing.T) {
		ctx := context.Background()
		s := initialized(t, newStore)

		require.NoError(t, s.SetMigrationState(ctx, "1", migratory.StateUp))
		require.NoError(t, s.Destroy(ctx))
		require.NoError(t, s.Initialize(ctx))

		records, err := s.GetAllMigrationRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func initialized(t *testing.T, newStore Factory) migratory.RecordStore {
	t.Helper()
	s := newStore(t)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}
