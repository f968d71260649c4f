// Package storage provides response storage abstraction.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures and eviction

package storage

import (
	"context"

	"github.com/richinex/chunkmill/model"
)

// ResponseStorage stores provider results keyed by the exact request tuple.
// Implementations must be safe for concurrent use.
type ResponseStorage interface {
	// Get returns the stored result for req. found is false on a miss.
	// Returns error only for storage failures, not missing entries.
	Get(ctx context.Context, req model.Request) (res model.Result, found bool, err error)

	// Put stores res for req, replacing any previous entry.
	Put(ctx context.Context, req model.Request, res model.Result) error

	// Delete removes the entry for req, if any.
	Delete(ctx context.Context, req model.Request) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}
