// Package memstore keeps migration records in process memory. It is meant
// for tests and for callers whose migrations target in-memory state.
package memstore

import (
	"context"
	"sync"

	"github.com/aatuh/migratory"
)

// Store is an in-memory migratory.RecordStore. Records are listed in the
// order their IDs were first written.
type Store struct {
	mu          sync.Mutex
	initialized bool
	states      map[string]migratory.MigrationState
	order       []string
}

var _ migratory.RecordStore = (*Store)(nil)

// New returns an empty, uninitialized Store.
func New() *Store {
	return &Store{states: make(map[string]migratory.MigrationState)}
}

// Initialize marks the store initialized.
func (s *Store) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// IsInitialized reports whether Initialize has run since the last Destroy.
func (s *Store) IsInitialized(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized, nil
}

// Destroy drops every record and clears the initialized flag.
func (s *Store) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.states = make(map[string]migratory.MigrationState)
	s.order = nil
	return nil
}

// GetAllMigrationRecords returns a snapshot of every record.
func (s *Store) GetAllMigrationRecords(context.Context) ([]migratory.MigrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]migratory.MigrationRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, migratory.MigrationRecord{MigrationID: id, State: s.states[id]})
	}
	return records, nil
}

// SetMigrationState upserts the record for id.
func (s *Store) SetMigrationState(_ context.Context, id string, state migratory.MigrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		s.order = append(s.order, id)
	}
	s.states[id] = state
	return nil
}

// DeleteMigrationRecord removes the record for id if present.
func (s *Store) DeleteMigrationRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return nil
	}
	delete(s.states, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// State returns the recorded state of id and whether a record exists.
func (s *Store) State(id string) (migratory.MigrationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	return state, ok
}
