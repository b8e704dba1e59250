package migratory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakePlanSource struct {
	ids       []string
	records   []MigrationRecord
	idsErr    error
	recordErr error
}

func (f *fakePlanSource) ListMigrationIDs(context.Context) ([]string, error) {
	return f.ids, f.idsErr
}

func (f *fakePlanSource) GetAllMigrationRecords(context.Context) ([]MigrationRecord, error) {
	return f.records, f.recordErr
}

func plan(t *testing.T, ids []string, records ...MigrationRecord) []Action {
	t.Helper()
	actions, err := NewPlanner(&fakePlanSource{ids: ids, records: records}).PlanMigration(context.Background())
	require.NoError(t, err)
	return actions
}

func TestPlanMigration_FreshStoreAppliesAll(t *testing.T) {
	assert.Equal(t, []Action{
		{MigrationID: "1", Type: ActionUp},
		{MigrationID: "2", Type: ActionUp},
		{MigrationID: "3", Type: ActionUp},
	}, plan(t, []string{"3", "1", "2"}))
}

func TestPlanMigration_UpToDateIsEmpty(t *testing.T) {
	assert.Empty(t, plan(t, []string{"1", "2"},
		MigrationRecord{MigrationID: "1", State: StateUp},
		MigrationRecord{MigrationID: "2", State: StateUp},
	))
}

func TestPlanMigration_FailedDeclaredIsLeftAlone(t *testing.T) {
	assert.Equal(t, []Action{{MigrationID: "3", Type: ActionUp}}, plan(t, []string{"1", "2", "3"},
		MigrationRecord{MigrationID: "1", State: StateUp},
		MigrationRecord{MigrationID: "2", State: StateFailed},
	))
}

func TestPlanMigration_UndeclaredRecordsAreDeletedFirst(t *testing.T) {
	assert.Equal(t, []Action{
		{MigrationID: "gone-down", Type: ActionDeleteRecord},
		{MigrationID: "gone-failed", Type: ActionDeleteRecord},
		{MigrationID: "gone-up", Type: ActionDeleteRecord},
		{MigrationID: "2", Type: ActionUp},
	}, plan(t, []string{"1", "2"},
		MigrationRecord{MigrationID: "gone-up", State: StateUp},
		MigrationRecord{MigrationID: "1", State: StateUp},
		MigrationRecord{MigrationID: "gone-failed", State: StateFailed},
		MigrationRecord{MigrationID: "gone-down", State: StateDown},
	))
}

func TestPlanMigration_DownDeclaredIsReapplied(t *testing.T) {
	assert.Equal(t, []Action{{MigrationID: "1", Type: ActionUp}}, plan(t, []string{"1"},
		MigrationRecord{MigrationID: "1", State: StateDown},
	))
}

func TestPlanMigration_ReadErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewPlanner(&fakePlanSource{idsErr: boom}).PlanMigration(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "list migration ids")

	_, err = NewPlanner(&fakePlanSource{recordErr: boom}).PlanMigration(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "get migration records")
}

var stateGen = rapid.SampledFrom([]MigrationState{StateUp, StateDown, StateFailed})

// drawWorld draws a set of declared IDs and a record set with distinct IDs
// that partly overlaps it.
func drawWorld(t *rapid.T) ([]string, []MigrationRecord) {
	idGen := rapid.StringMatching(`[a-e][0-9]{0,2}`)
	ids := rapid.SliceOfDistinct(idGen, rapid.ID[string]).Draw(t, "ids")
	recordIDs := rapid.SliceOfDistinct(idGen, rapid.ID[string]).Draw(t, "recordIDs")
	records := make([]MigrationRecord, len(recordIDs))
	for i, id := range recordIDs {
		records[i] = MigrationRecord{MigrationID: id, State: stateGen.Draw(t, "state")}
	}
	return ids, records
}

func TestPlanMigration_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids, records := drawWorld(t)
		src := &fakePlanSource{ids: ids, records: records}
		actions, err := NewPlanner(src).PlanMigration(context.Background())
		if err != nil {
			t.Fatalf("plan: %v", err)
		}

		declared := make(map[string]bool, len(ids))
		for _, id := range ids {
			declared[id] = true
		}
		state := make(map[string]MigrationState, len(records))
		for _, r := range records {
			state[r.MigrationID] = r.State
		}

		var ups, deletes []string
		seenUp := false
		for _, a := range actions {
			switch a.Type {
			case ActionDeleteRecord:
				if seenUp {
					t.Fatalf("delete-record after up in %v", actions)
				}
				if declared[a.MigrationID] {
					t.Fatalf("deleting declared migration %s", a.MigrationID)
				}
				deletes = append(deletes, a.MigrationID)
			case ActionUp:
				seenUp = true
				s, hasRecord := state[a.MigrationID]
				if !declared[a.MigrationID] || (hasRecord && s != StateDown) {
					t.Fatalf("unexpected up for %s (declared=%v state=%q)", a.MigrationID, declared[a.MigrationID], s)
				}
				ups = append(ups, a.MigrationID)
			default:
				t.Fatalf("unexpected action %v", a)
			}
		}
		if !sort.StringsAreSorted(ups) || !sort.StringsAreSorted(deletes) {
			t.Fatalf("actions not in ID order: %v", actions)
		}

		wantUps := 0
		for _, id := range ids {
			if s, ok := state[id]; !ok || s == StateDown {
				wantUps++
			}
		}
		wantDeletes := 0
		for _, r := range records {
			if !declared[r.MigrationID] {
				wantDeletes++
			}
		}
		if len(ups) != wantUps || len(deletes) != wantDeletes {
			t.Fatalf("got %d ups %d deletes, want %d and %d", len(ups), len(deletes), wantUps, wantDeletes)
		}

		again, err := NewPlanner(src).PlanMigration(context.Background())
		if err != nil {
			t.Fatalf("replan: %v", err)
		}
		if len(again) != len(actions) {
			t.Fatalf("plan not deterministic: %v vs %v", actions, again)
		}
		for i := range again {
			if again[i] != actions[i] {
				t.Fatalf("plan not deterministic: %v vs %v", actions, again)
			}
		}
	})
}

// TestPlanMigration_ApplyingPlanConverges applies a plan to the records
// and checks that planning again yields nothing.
func TestPlanMigration_ApplyingPlanConverges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids, records := drawWorld(t)
		src := &fakePlanSource{ids: ids, records: records}
		actions, err := NewPlanner(src).PlanMigration(context.Background())
		if err != nil {
			t.Fatalf("plan: %v", err)
		}

		next := append([]MigrationRecord(nil), records...)
		for _, a := range actions {
			switch a.Type {
			case ActionDeleteRecord:
				for i, r := range next {
					if r.MigrationID == a.MigrationID {
						next = append(next[:i], next[i+1:]...)
						break
					}
				}
			case ActionUp:
				found := false
				for i, r := range next {
					if r.MigrationID == a.MigrationID {
						next[i].State = StateUp
						found = true
					}
				}
				if !found {
					next = append(next, MigrationRecord{MigrationID: a.MigrationID, State: StateUp})
				}
			}
		}

		again, err := NewPlanner(&fakePlanSource{ids: ids, records: next}).PlanMigration(context.Background())
		if err != nil {
			t.Fatalf("replan: %v", err)
		}
		if len(again) != 0 {
			t.Fatalf("expected converged plan, got %v", again)
		}
	})
}
