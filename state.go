package migratory

import "fmt"

// MigrationState is the persisted state of a single migration.
type MigrationState string

const (
	// StateUp means the forward operation completed and has not been
	// reverted since.
	StateUp MigrationState = "up"
	// StateDown means the reverse operation completed, or the record was
	// reset to treat the migration as not applied.
	StateDown MigrationState = "down"
	// StateFailed means the most recent attempt raised an error. Planning
	// leaves failed migrations alone until they are resolved by hand.
	StateFailed MigrationState = "failed"
)

// Valid reports whether s is one of the known states.
func (s MigrationState) Valid() bool {
	switch s {
	case StateUp, StateDown, StateFailed:
		return true
	default:
		return false
	}
}

// ParseMigrationState converts a stored string into a MigrationState.
//
// Parameters:
//   - s: The stored state value.
//
// Returns:
//   - MigrationState: The parsed state.
//   - error: An error if s is not a known state.
func ParseMigrationState(s string) (MigrationState, error) {
	state := MigrationState(s)
	if !state.Valid() {
		return "", fmt.Errorf("unknown migration state %q", s)
	}
	return state, nil
}

// MigrationRecord is the persisted state of one migration ID. A missing
// record means the migration has never run.
type MigrationRecord struct {
	MigrationID string         `json:"migrationId" yaml:"migrationId" bson:"migrationId"`
	State       MigrationState `json:"state" yaml:"state" bson:"state"`
}
