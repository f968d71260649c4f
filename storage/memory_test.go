package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/richinex/chunkmill/model"
)

func testRequest(chunk string) model.Request {
	return model.Request{Provider: "openai", Model: "gpt-4", Prompt: "Summarize: ", Chunk: chunk}
}

func TestInMemoryStoragePutAndGet(t *testing.T) {
	storage := NewInMemoryStorage(0)
	ctx := context.Background()
	req := testRequest("a b c")

	if err := storage.Put(ctx, req, model.Success("summary")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := storage.Get(ctx, req)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if got.Text != "summary" || got.Failed {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestInMemoryStorageExactTupleMatch(t *testing.T) {
	storage := NewInMemoryStorage(0)
	ctx := context.Background()

	if err := storage.Put(ctx, testRequest("text"), model.Success("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	variants := []model.Request{
		testRequest("text "),
		{Provider: "anthropic", Model: "gpt-4", Prompt: "Summarize: ", Chunk: "text"},
		{Provider: "openai", Model: "gpt-4o", Prompt: "Summarize: ", Chunk: "text"},
		{Provider: "openai", Model: "gpt-4", Prompt: "Summarize:", Chunk: "text"},
	}
	for _, v := range variants {
		if _, found, _ := storage.Get(ctx, v); found {
			t.Errorf("unexpected hit for %+v", v)
		}
	}
}

func TestInMemoryStorageStoresFailures(t *testing.T) {
	storage := NewInMemoryStorage(0)
	ctx := context.Background()
	req := testRequest("bad")

	if err := storage.Put(ctx, req, model.Failure()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, _ := storage.Get(ctx, req)
	if !found || !got.Failed {
		t.Errorf("expected stored failure, got %+v (found=%v)", got, found)
	}
}

func TestInMemoryStorageEvictsLeastRecentlyUsed(t *testing.T) {
	storage := NewInMemoryStorage(2)
	ctx := context.Background()

	a, b, c := testRequest("a"), testRequest("b"), testRequest("c")
	_ = storage.Put(ctx, a, model.Success("A"))
	_ = storage.Put(ctx, b, model.Success("B"))

	// Touch a so b becomes the eviction candidate.
	if _, found, _ := storage.Get(ctx, a); !found {
		t.Fatal("expected a to be present")
	}
	_ = storage.Put(ctx, c, model.Success("C"))

	if _, found, _ := storage.Get(ctx, b); found {
		t.Error("expected b to be evicted")
	}
	for _, req := range []model.Request{a, c} {
		if _, found, _ := storage.Get(ctx, req); !found {
			t.Errorf("expected %q to be present", req.Chunk)
		}
	}
	if n, _ := storage.Len(ctx); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestInMemoryStorageDeleteAndClear(t *testing.T) {
	storage := NewInMemoryStorage(0)
	ctx := context.Background()

	for i := range 3 {
		_ = storage.Put(ctx, testRequest(fmt.Sprint(i)), model.Success("x"))
	}
	if err := storage.Delete(ctx, testRequest("1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := storage.Len(ctx); n != 2 {
		t.Errorf("expected 2 entries after delete, got %d", n)
	}

	if err := storage.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := storage.Len(ctx); n != 0 {
		t.Errorf("expected empty storage, got %d", n)
	}
}

func TestInMemoryStorageConcurrentAccess(t *testing.T) {
	storage := NewInMemoryStorage(16)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testRequest(fmt.Sprint(i % 8))
			_ = storage.Put(ctx, req, model.Success("x"))
			_, _, _ = storage.Get(ctx, req)
		}(i)
	}
	wg.Wait()

	if n, _ := storage.Len(ctx); n != 8 {
		t.Errorf("expected 8 entries, got %d", n)
	}
}
