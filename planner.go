package migratory

import (
	"context"
	"fmt"
)

// Planner computes the actions needed to bring the record store in line
// with the declared migrations. It only reads.
type Planner struct {
	source PlanSource
}

// NewPlanner returns a Planner reading from source.
//
// Parameters:
//   - source: The declared migrations and persisted records to reconcile.
//
// Returns:
//   - *Planner: A new planner.
func NewPlanner(source PlanSource) *Planner {
	return &Planner{source: source}
}

// PlanMigration reconciles the declared migration IDs against the
// persisted records and returns the sorted actions required.
//
// Failed records are left alone while still declared. Records for
// migrations that are no longer declared are deleted. Declared migrations
// that are up produce nothing; all other declared migrations, whether never
// run or reset to down, are applied.
//
// Parameters:
//   - ctx: Context to use for reads.
//
// Returns:
//   - []Action: The ordered plan, possibly empty.
//   - error: An error if reading the source fails.
func (p *Planner) PlanMigration(ctx context.Context) ([]Action, error) {
	ids, err := p.source.ListMigrationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list migration ids: %w", err)
	}
	records, err := p.source.GetAllMigrationRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("get migration records: %w", err)
	}

	declared := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		declared[id] = struct{}{}
	}

	assigned := make(map[string]ActionType, len(ids)+len(records))
	var order []string
	assign := func(id string, t ActionType) {
		if _, ok := assigned[id]; !ok {
			order = append(order, id)
		}
		assigned[id] = t
	}

	for _, rec := range records {
		_, isDeclared := declared[rec.MigrationID]
		switch {
		case rec.State == StateFailed && isDeclared:
			assign(rec.MigrationID, ActionNoop)
		case rec.State == StateFailed:
			assign(rec.MigrationID, ActionDeleteRecord)
		case isDeclared:
			if rec.State == StateUp {
				assign(rec.MigrationID, ActionNoop)
			}
		default:
			assign(rec.MigrationID, ActionDeleteRecord)
		}
	}

	// Declared migrations that are new or down still need to be applied.
	for _, id := range ids {
		if _, ok := assigned[id]; ok {
			continue
		}
		assign(id, ActionUp)
	}

	actions := make([]Action, 0, len(order))
	for _, id := range order {
		switch t := assigned[id]; t {
		case ActionUp, ActionDown, ActionDeleteRecord:
			actions = append(actions, Action{MigrationID: id, Type: t})
		case ActionDownUp:
			actions = append(actions,
				Action{MigrationID: id, Type: ActionDown},
				Action{MigrationID: id, Type: ActionUp},
			)
		case ActionNoop:
		}
	}

	return SortActions(actions), nil
}
