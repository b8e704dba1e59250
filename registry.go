package migratory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MigrationFuncs adapts a pair of functions to Migration. A nil function
// fails when called.
type MigrationFuncs[A any] struct {
	UpFn   func(ctx context.Context, args A) error
	DownFn func(ctx context.Context, args A) error
}

func (m MigrationFuncs[A]) Up(ctx context.Context, args A) error {
	if m.UpFn == nil {
		return errors.New("up function not defined")
	}
	return m.UpFn(ctx, args)
}

func (m MigrationFuncs[A]) Down(ctx context.Context, args A) error {
	if m.DownFn == nil {
		return errors.New("down function not defined")
	}
	return m.DownFn(ctx, args)
}

// Registry is a MigrationSource for migrations declared in Go code.
type Registry[A any] struct {
	mu         sync.RWMutex
	migrations map[string]Migration[A]
}

// NewRegistry returns an empty Registry.
func NewRegistry[A any]() *Registry[A] {
	return &Registry[A]{migrations: make(map[string]Migration[A])}
}

// Register adds a migration under id.
//
// Parameters:
//   - id: The stable migration ID.
//   - m: The migration body.
//
// Returns:
//   - error: An error if id is empty, m is nil, or id is already taken.
func (r *Registry[A]) Register(id string, m Migration[A]) error {
	if id == "" {
		return errors.New("migration id is required")
	}
	if m == nil {
		return fmt.Errorf("migration %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.migrations[id]; exists {
		return fmt.Errorf("migration %q already registered", id)
	}
	r.migrations[id] = m
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level declarations.
func (r *Registry[A]) MustRegister(id string, m Migration[A]) *Registry[A] {
	if err := r.Register(id, m); err != nil {
		panic(err)
	}
	return r
}

// ListMigrationIDs returns the registered IDs in ascending order.
func (r *Registry[A]) ListMigrationIDs(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.migrations))
	for id := range r.migrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadMigration returns the migration registered under id.
func (r *Registry[A]) LoadMigration(_ context.Context, id string) (Migration[A], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.migrations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMigrationNotFound, id)
	}
	return m, nil
}
