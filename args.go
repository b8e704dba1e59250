package migratory

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const argsKey = "args"

// argsCache memoizes the first Args outcome, value or error. Concurrent
// callers arriving before it resolves share the same in-flight call.
type argsCache[A any] struct {
	provider ArgsProvider[A]
	group    singleflight.Group

	mu     sync.Mutex
	loaded bool
	value  A
	err    error
}

func newArgsCache[A any](provider ArgsProvider[A]) *argsCache[A] {
	return &argsCache[A]{provider: provider}
}

func (c *argsCache[A]) cached() (A, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.err, c.loaded
}

func (c *argsCache[A]) get(ctx context.Context) (A, error) {
	if v, err, ok := c.cached(); ok {
		return v, err
	}
	// The shared call outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	c.group.Do(argsKey, func() (any, error) {
		if _, _, ok := c.cached(); ok {
			return nil, nil
		}
		v, err := c.provider.Args(shared)
		c.mu.Lock()
		c.value, c.err, c.loaded = v, err, true
		c.mu.Unlock()
		return nil, nil
	})
	v, err, _ := c.cached()
	return v, err
}
