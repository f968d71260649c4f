// Package cache provides the response cache in front of provider calls.
//
// Information Hiding:
// - Backing store hidden behind storage.ResponseStorage
// - Process-lifetime memory tier in front of persistent stores hidden
// - Per-key in-flight deduplication hidden (singleflight)
// - Store failures classified: read errors degrade to a miss, write errors fail the call

package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/model"
	"github.com/richinex/chunkmill/storage"
)

// ComputeFunc produces the result for a cache miss.
type ComputeFunc func(ctx context.Context) (model.Result, error)

// Stats are cumulative cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	// Shared counts callers that waited on an identical in-flight compute.
	Shared int64
}

// Cache memoizes results by request tuple.
type Cache struct {
	store storage.ResponseStorage
	// memo holds every result of this process, including failures a
	// persistent store declines to keep. nil when store is in memory.
	memo     *storage.InMemoryStorage
	reporter diag.Reporter
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithReporter sets the sink for store failures.
func WithReporter(r diag.Reporter) Option {
	return func(c *Cache) { c.reporter = r }
}

// New creates a cache over store. A nil store selects an unbounded
// in-memory store. Any other store gets an unbounded memory tier in front
// of it so entries never expire within a run.
func New(store storage.ResponseStorage, opts ...Option) *Cache {
	if store == nil {
		store = storage.NewInMemoryStorage(0)
	}
	c := &Cache{store: store}
	if _, inMemory := store.(*storage.InMemoryStorage); !inMemory {
		c.memo = storage.NewInMemoryStorage(0)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reporter = diag.OrNop(c.reporter)
	return c
}

type outcome struct {
	res    model.Result
	cached bool
}

// GetOrCompute returns the stored result for req, or runs compute, stores
// its result and returns it. cached reports whether the result came from
// the store. Concurrent calls for the same req share one compute.
//
// compute errors are returned unchanged and nothing is stored. A store
// write failure is returned as an error for this call only.
func (c *Cache) GetOrCompute(ctx context.Context, req model.Request, compute ComputeFunc) (res model.Result, cached bool, err error) {
	v, err, shared := c.group.Do(req.Key(), func() (any, error) {
		return c.load(ctx, req, compute)
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return model.Result{}, false, err
	}
	out := v.(outcome)
	return out.res, out.cached, nil
}

func (c *Cache) load(ctx context.Context, req model.Request, compute ComputeFunc) (outcome, error) {
	if c.memo != nil {
		if res, found, _ := c.memo.Get(ctx, req); found {
			c.hits.Add(1)
			return outcome{res: res, cached: true}, nil
		}
	}

	stored, found, err := c.store.Get(ctx, req)
	if err != nil {
		c.reporter.Report(diag.StorageError, fmt.Sprintf("cache read failed, treating as miss: %v", err))
	} else if found {
		c.hits.Add(1)
		c.remember(ctx, req, stored)
		return outcome{res: stored, cached: true}, nil
	}
	c.misses.Add(1)

	res, err := compute(ctx)
	if err != nil {
		return outcome{}, err
	}
	if err := c.store.Put(ctx, req, res); err != nil {
		return outcome{}, fmt.Errorf("failed to cache response: %w", err)
	}
	c.remember(ctx, req, res)
	return outcome{res: res}, nil
}

func (c *Cache) remember(ctx context.Context, req model.Request, res model.Result) {
	if c.memo != nil {
		_ = c.memo.Put(ctx, req, res)
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

// Len returns the number of entries in the backing store.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Clear removes every stored entry and resets the counters.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	if c.memo != nil {
		_ = c.memo.Clear(ctx)
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.shared.Store(0)
	return nil
}
