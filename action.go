package migratory

import (
	"sort"
	"strings"
)

// ActionType names one kind of plan step.
type ActionType string

const (
	ActionUp           ActionType = "up"
	ActionDown         ActionType = "down"
	ActionDownUp       ActionType = "down-up"
	ActionDeleteRecord ActionType = "delete-record"
	ActionNoop         ActionType = "noop"
)

// Action is one step of a plan.
type Action struct {
	MigrationID string     `json:"migrationId" yaml:"migrationId"`
	Type        ActionType `json:"type" yaml:"type"`
}

// String renders the action as "type:id".
func (a Action) String() string {
	return string(a.Type) + ":" + a.MigrationID
}

// Score returns the ordering priority of an action type. Lower scores run
// first: record deletion, then rollbacks, then upgrades. Anything else sorts
// last.
func Score(t ActionType) int {
	switch t {
	case ActionDeleteRecord:
		return 0
	case ActionDown:
		return 10
	case ActionUp:
		return 20
	default:
		return 99
	}
}

// SortActions returns a sorted copy of actions.
//
// Actions are ordered by Score, then by migration ID. IDs ascend for every
// type except ActionDown, where they descend so that rollbacks unwind in the
// reverse of apply order. The action type breaks any remaining tie.
//
// Parameters:
//   - actions: The actions to sort. The slice is not modified.
//
// Returns:
//   - []Action: A new, sorted slice.
func SortActions(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareActions(sorted[i], sorted[j]) < 0
	})
	return sorted
}

func compareActions(a, b Action) int {
	if diff := Score(a.Type) - Score(b.Type); diff != 0 {
		return diff
	}
	var byID int
	if a.Type == ActionDown {
		byID = strings.Compare(b.MigrationID, a.MigrationID)
	} else {
		byID = strings.Compare(a.MigrationID, b.MigrationID)
	}
	if byID != 0 {
		return byID
	}
	return strings.Compare(string(a.Type), string(b.Type))
}
