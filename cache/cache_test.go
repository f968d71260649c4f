package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/model"
	"github.com/richinex/chunkmill/storage"
)

var req = model.Request{Provider: "openai", Model: "gpt-4", Prompt: "Summarize: ", Chunk: "a b"}

func counting(calls *atomic.Int32, text string) ComputeFunc {
	return func(context.Context) (model.Result, error) {
		calls.Add(1)
		return model.Success(text), nil
	}
}

func TestGetOrComputeMemoizes(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	var calls atomic.Int32

	first, cached, err := c.GetOrCompute(ctx, req, counting(&calls, "summary"))
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := c.GetOrCompute(ctx, req, counting(&calls, "other"))
	require.NoError(t, err)
	assert.True(t, cached)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestGetOrComputeDistinguishesKeys(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	var calls atomic.Int32

	other := req
	other.Model = "gpt-4o"
	_, _, _ = c.GetOrCompute(ctx, req, counting(&calls, "x"))
	_, _, _ = c.GetOrCompute(ctx, other, counting(&calls, "y"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrComputeSharesInFlight(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (model.Result, error) {
		calls.Add(1)
		<-release
		return model.Success("once"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]model.Result, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := c.GetOrCompute(ctx, req, compute)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	// Let the callers pile up behind the first compute.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, model.Success("once"), r)
	}
	// Late arrivals hit the store instead of sharing; either way one compute.
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeErrorNotStored(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(ctx, req, func(context.Context) (model.Result, error) {
		return model.Result{}, boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyStore fails reads or writes on demand.
type flakyStore struct {
	storage.ResponseStorage
	getErr error
	putErr error
}

func (s *flakyStore) Get(ctx context.Context, r model.Request) (model.Result, bool, error) {
	if s.getErr != nil {
		return model.Result{}, false, s.getErr
	}
	return s.ResponseStorage.Get(ctx, r)
}

func (s *flakyStore) Put(ctx context.Context, r model.Request, res model.Result) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.ResponseStorage.Put(ctx, r, res)
}

func TestReadErrorIsAMiss(t *testing.T) {
	var reported []diag.Classification
	store := &flakyStore{ResponseStorage: storage.NewInMemoryStorage(0), getErr: errors.New("read failed")}
	c := New(store, WithReporter(diag.ReporterFunc(func(cl diag.Classification, _ string) {
		reported = append(reported, cl)
	})))

	var calls atomic.Int32
	res, cached, err := c.GetOrCompute(context.Background(), req, counting(&calls, "fresh"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "fresh", res.Text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []diag.Classification{diag.StorageError}, reported)
}

func TestWriteErrorFailsCall(t *testing.T) {
	diskFull := fault.LocalResource(errors.New("no space"))
	store := &flakyStore{ResponseStorage: storage.NewInMemoryStorage(0), putErr: diskFull}
	c := New(store)

	var calls atomic.Int32
	_, _, err := c.GetOrCompute(context.Background(), req, counting(&calls, "x"))
	assert.ErrorIs(t, err, fault.ErrLocalResource)
}

func TestClearResets(t *testing.T) {
	c := New(storage.NewInMemoryStorage(0))
	ctx := context.Background()
	var calls atomic.Int32

	_, _, _ = c.GetOrCompute(ctx, req, counting(&calls, "x"))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, Stats{}, c.Stats())

	_, cached, _ := c.GetOrCompute(ctx, req, counting(&calls, "x"))
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSqliteBackedCacheKeepsFailuresForTheRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := storage.OpenSqlite(path)
	require.NoError(t, err)

	ctx := context.Background()
	var calls atomic.Int32
	failing := func(context.Context) (model.Result, error) {
		calls.Add(1)
		return model.Failure(), nil
	}

	c := New(store)
	first, _, err := c.GetOrCompute(ctx, req, failing)
	require.NoError(t, err)
	second, cached, err := c.GetOrCompute(ctx, req, failing)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failures are not persisted")
	require.NoError(t, store.Close())

	reopened, err := storage.OpenSqlite(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, cached, err = New(reopened).GetOrCompute(ctx, req, failing)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls.Load(), "a new run retries failed chunks")
}

func TestSqliteBackedCacheServesFromMemoryTier(t *testing.T) {
	store, err := storage.NewSqliteInMemory()
	require.NoError(t, err)
	defer store.Close()

	c := New(store)
	ctx := context.Background()
	var calls atomic.Int32

	_, _, err = c.GetOrCompute(ctx, req, counting(&calls, "x"))
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	res, cached, err := c.GetOrCompute(ctx, req, counting(&calls, "y"))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "x", res.Text)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.Clear(ctx))
	_, cached, _ = c.GetOrCompute(ctx, req, counting(&calls, "z"))
	assert.False(t, cached)
}
