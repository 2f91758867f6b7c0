// Package index orchestrates parsing, chunking, and persistence for files,
// directory trees, in-memory buffers, and archived conversation summaries.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kbindex/internal/chunker"
	"kbindex/internal/model"
	"kbindex/internal/parser"
	"kbindex/internal/store"
)

// Config holds indexer construction parameters.
type Config struct {
	DBPath  string
	Chunker chunker.Options
	Weight  float64
	Decay   float64
	Logger  *slog.Logger
}

// Indexer is the public API surface for external collaborators.
type Indexer struct {
	store   *store.SQLiteStore
	chunker *chunker.Chunker
	logger  *slog.Logger
}

// New opens the backing store and builds an Indexer.
func New(cfg Config) (*Indexer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.New(store.Config{Path: cfg.DBPath, Weight: cfg.Weight, Decay: cfg.Decay})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Indexer{
		store:   s,
		chunker: chunker.New(cfg.Chunker),
		logger:  logger,
	}, nil
}

// Close closes the backing store.
func (ix *Indexer) Close() error {
	return ix.store.Close()
}

// Store exposes the underlying chunk store.
func (ix *Indexer) Store() *store.SQLiteStore {
	return ix.store
}

// IndexFile re-indexes a single file: existing chunks for the path are
// deleted, the file is parsed and split, every chunk is tagged with the
// caller's role, and the fresh set is persisted in one transaction. Returns
// the chunk count; 0 is valid (an empty file parses to nothing).
func (ix *Indexer) IndexFile(ctx context.Context, path, role string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", model.ErrFileNotFound, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", model.ErrFileNotFound, abs)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", model.ErrFileNotFound, abs)
	}
	if _, err := parser.Detect(abs); err != nil {
		return 0, err
	}

	if err := ix.store.DeleteByFile(ctx, abs); err != nil {
		return 0, err
	}

	chunks, err := parser.Parse(abs)
	if err != nil {
		return 0, err
	}
	chunks = ix.chunker.Process(chunks)

	if role == "" {
		role = model.RolePublic
	}
	for i := range chunks {
		chunks[i].Role = role
	}

	if err := ix.store.SaveChunks(ctx, chunks); err != nil {
		return 0, err
	}

	ix.logger.Info("indexed file", "path", abs, "chunks", len(chunks), "role", role)
	return len(chunks), nil
}

// IndexBuffer materializes the buffer under a stable transient path keyed by
// filename, delegates to IndexFile, and removes the transient artifact on
// every exit path. The stable path keeps buffer indexing idempotent.
func (ix *Indexer) IndexBuffer(ctx context.Context, data []byte, filename, role string) (int, error) {
	dir := filepath.Join(os.TempDir(), "kbindex-buffers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create buffer dir: %w", err)
	}

	tmp := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return 0, fmt.Errorf("write buffer: %w", err)
	}
	defer os.Remove(tmp)

	return ix.IndexFile(ctx, tmp, role)
}

// DirResult aggregates a directory indexing run.
type DirResult struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
	Failed int `json:"failed"`
}

// IndexDirectory walks the tree and indexes every file with a supported
// extension. Per-file failures are logged and counted without aborting the
// walk.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string, recursive bool, role string) (DirResult, error) {
	var res DirResult

	abs, err := filepath.Abs(root)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", model.ErrFileNotFound, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return res, fmt.Errorf("%w: directory %s", model.ErrFileNotFound, abs)
	}

	index := func(path string) {
		if !parser.Supported(path) {
			return
		}
		n, err := ix.IndexFile(ctx, path, role)
		if err != nil {
			res.Failed++
			ix.logger.Warn("index file failed", "path", path, "error", err)
			return
		}
		res.Files++
		res.Chunks += n
	}

	if !recursive {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return res, fmt.Errorf("read dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			index(filepath.Join(abs, e.Name()))
		}
		return res, nil
	}

	walkErr := filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		if d.IsDir() {
			return nil
		}
		index(path)
		return nil
	})
	return res, walkErr
}

// ArchiveSummary stores a conversation summary as a searchable conv chunk
// under the chat's synthetic path. Long summaries are split like any other
// content. An empty role defaults to the chat user's own visibility.
func (ix *Indexer) ArchiveSummary(ctx context.Context, chatID, summary, role string) (int, error) {
	if role == "" {
		role = model.UserRole(chatID)
	}

	path := "memory/chats/" + chatID
	name := "Conversation " + chatID
	chunk := model.Chunk{
		ChunkID:  model.DeriveChunkID(model.TypeConv, path, name, summary),
		FilePath: path,
		Element:  "memory_summary",
		Name:     name,
		Content:  summary,
		Type:     model.TypeConv,
		Role:     role,
	}

	chunks := ix.chunker.Process([]model.Chunk{chunk})
	if err := ix.store.SaveChunks(ctx, chunks); err != nil {
		return 0, err
	}

	ix.logger.Info("archived summary", "chat_id", chatID, "chunks", len(chunks))
	return len(chunks), nil
}

// Search delegates to the chunk store.
func (ix *Indexer) Search(ctx context.Context, query string, limit int, opts store.SearchOptions) ([]model.SearchResult, error) {
	return ix.store.Search(ctx, query, limit, opts)
}

// RecordSearchAccess feeds used results back into activation scoring.
func (ix *Indexer) RecordSearchAccess(ctx context.Context, chunkIDs []string, query string) error {
	return ix.store.RecordSearchAccess(ctx, chunkIDs, query)
}

// Stats delegates to the chunk store.
func (ix *Indexer) Stats(ctx context.Context) (*store.Stats, error) {
	return ix.store.Stats(ctx)
}
