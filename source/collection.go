// Package source turns SQL files and inline SQL into migrations a
// migratory.Runner can execute against a database handle.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aatuh/migratory"
)

// Collection merges the migrations of several loaders into one
// migratory.MigrationSource. Loaders run once, on first use.
type Collection struct {
	loaders []Loader

	once       sync.Once
	err        error
	ids        []string
	migrations map[string]*SQLMigration
}

var _ migratory.MigrationSource[DB] = (*Collection)(nil)

// NewCollection returns a Collection over the given loaders.
func NewCollection(loaders ...Loader) *Collection {
	return &Collection{loaders: loaders}
}

func (c *Collection) load() error {
	c.once.Do(func() {
		migrations := make(map[string]*SQLMigration)
		for _, loader := range c.loaders {
			loaded, err := loader.LoadMigrations()
			if err != nil {
				c.err = fmt.Errorf("load migrations: %w", err)
				return
			}
			for _, mig := range loaded {
				id := mig.ID()
				if len(mig.UpSteps) == 0 {
					c.err = fmt.Errorf("migration %s has no up steps", id)
					return
				}
				if _, dup := migrations[id]; dup {
					c.err = fmt.Errorf("duplicate migration %s", id)
					return
				}
				migrations[id] = mig
			}
		}
		ids := make([]string, 0, len(migrations))
		for id := range migrations {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		c.ids = ids
		c.migrations = migrations
	})
	return c.err
}

// ListMigrationIDs returns every migration ID in sorted order.
func (c *Collection) ListMigrationIDs(_ context.Context) ([]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return append([]string(nil), c.ids...), nil
}

// LoadMigration returns the migration with the given ID. Unknown IDs give
// an error wrapping migratory.ErrMigrationNotFound.
func (c *Collection) LoadMigration(_ context.Context, id string) (migratory.Migration[DB], error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	mig, ok := c.migrations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", migratory.ErrMigrationNotFound, id)
	}
	return mig, nil
}

// Migrations returns the loaded migrations in ID order.
func (c *Collection) Migrations() ([]*SQLMigration, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	out := make([]*SQLMigration, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.migrations[id])
	}
	return out, nil
}

// ErrNoLoaders is returned by Validate for an empty Collection.
var ErrNoLoaders = errors.New("no migration loaders configured")

// Validate loads the collection and reports any loading error.
func (c *Collection) Validate() error {
	if len(c.loaders) == 0 {
		return ErrNoLoaders
	}
	return c.load()
}
