// Package store provides chunk persistence, full-text indexing, activation
// tracking, and hybrid-ranked search over SQLite.
package store

import (
	"context"

	"kbindex/internal/model"
)

// SearchOptions narrows and tunes a search.
type SearchOptions struct {
	// Roles filters results to chunks whose role is in the set. Empty means
	// no visibility filter.
	Roles []string
	// Types filters by coarse chunk category (kb, conv). Empty means all.
	Types []string
	// Decay overrides the configured activation decay rate when > 0.
	Decay float64
}

// Store defines the chunk persistence interface.
type Store interface {
	// SaveChunk inserts or wholly replaces a chunk keyed by its id.
	SaveChunk(ctx context.Context, chunk model.Chunk) error

	// SaveChunks applies the set in a single transaction.
	SaveChunks(ctx context.Context, chunks []model.Chunk) error

	// DeleteByFile removes every chunk for the file path, cascading to its
	// access events.
	DeleteByFile(ctx context.Context, filePath string) error

	// GetChunk retrieves a single chunk by id.
	GetChunk(ctx context.Context, chunkID string) (*model.Chunk, error)

	// Search runs the hybrid-ranked query. An all-stop-word query returns an
	// empty result set.
	Search(ctx context.Context, query string, limit int, opts SearchOptions) ([]model.SearchResult, error)

	// RecentByType returns the newest chunks of the given types, bypassing
	// full-text matching entirely.
	RecentByType(ctx context.Context, types []string, limit int) ([]model.Chunk, error)

	// RecordAccess appends an access event and recomputes the chunk's
	// cached activation.
	RecordAccess(ctx context.Context, chunkID, query string) error

	// RecordSearchAccess records access for a batch of ids in one
	// transaction. An empty id list is a no-op.
	RecordSearchAccess(ctx context.Context, chunkIDs []string, query string) error

	// Stats returns index-wide counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store.
	Close() error
}
