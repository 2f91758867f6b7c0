package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"kbindex/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func kbChunk(id, path, name, content string) model.Chunk {
	return model.Chunk{
		ChunkID:  id,
		FilePath: path,
		Name:     name,
		Content:  content,
		Type:     model.TypeKB,
		Role:     model.RolePublic,
	}
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := kbChunk("kb-111111111111", "docs/a.md", "Setup", "install instructions here")
	in.SectionPath = []string{"Guide", "Setup"}
	in.SectionLevel = 2
	in.PageStart = 3
	in.PageEnd = 4
	in.Metadata = map[string]string{"lang": "en"}

	if err := s.SaveChunk(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetChunk(ctx, in.ChunkID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Setup" || got.Content != "install instructions here" {
		t.Errorf("roundtrip: %+v", got)
	}
	if len(got.SectionPath) != 2 || got.SectionPath[1] != "Setup" {
		t.Errorf("section path: %v", got.SectionPath)
	}
	if got.PageStart != 3 || got.PageEnd != 4 {
		t.Errorf("pages: %d-%d", got.PageStart, got.PageEnd)
	}
	if got.Metadata["lang"] != "en" {
		t.Errorf("metadata: %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetChunk(context.Background(), "kb-nope"); err == nil {
		t.Error("expected error for missing chunk")
	}
}

func TestSaveDefaultsTypeAndRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveChunk(ctx, model.Chunk{ChunkID: "kb-x", FilePath: "f", Name: "n", Content: "c"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetChunk(ctx, "kb-x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != model.TypeKB || got.Role != model.RolePublic {
		t.Errorf("defaults: type=%q role=%q", got.Type, got.Role)
	}
}

func TestUpsertPreservesCreatedAtAndAccessState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := kbChunk("kb-up", "docs/a.md", "Setup", "version one")
	if err := s.SaveChunk(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.RecordAccess(ctx, "kb-up", "setup"); err != nil {
		t.Fatalf("record: %v", err)
	}

	first, _ := s.GetChunk(ctx, "kb-up")

	in.Content = "version two"
	if err := s.SaveChunk(ctx, in); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	second, err := s.GetChunk(ctx, "kb-up")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Content != "version two" {
		t.Errorf("content not replaced: %q", second.Content)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("updated_at did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.AccessCount != 1 || second.Activation <= 0 || second.LastAccessed == nil {
		t.Errorf("access state lost on upsert: count=%d activation=%f", second.AccessCount, second.Activation)
	}

	var n int
	s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	if n != 1 {
		t.Errorf("expected 1 row after upsert, got %d", n)
	}
}

func TestDeleteByFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunks(ctx, []model.Chunk{
		kbChunk("kb-a1", "docs/a.md", "A1", "alpha content"),
		kbChunk("kb-a2", "docs/a.md", "A2", "beta content"),
		kbChunk("kb-b1", "docs/b.md", "B1", "gamma content"),
	})
	if err := s.RecordAccess(ctx, "kb-a1", "alpha"); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.DeleteByFile(ctx, "docs/a.md"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetChunk(ctx, "kb-a1"); err == nil {
		t.Error("kb-a1 survived delete")
	}
	if _, err := s.GetChunk(ctx, "kb-b1"); err != nil {
		t.Errorf("kb-b1 should survive: %v", err)
	}

	// Access events cascade with their chunk.
	var events int
	s.db.QueryRow(`SELECT COUNT(*) FROM access_history`).Scan(&events)
	if events != 0 {
		t.Errorf("expected 0 orphaned events, got %d", events)
	}

	// The FTS index must no longer match deleted content.
	res, err := s.Search(ctx, "alpha", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("deleted chunk still searchable: %v", res)
	}
}

func TestMigrateLegacySchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	legacy := `
	CREATE TABLE chunks (
		chunk_id        TEXT PRIMARY KEY,
		file_path       TEXT NOT NULL,
		page_start      INTEGER NOT NULL DEFAULT 0,
		page_end        INTEGER NOT NULL DEFAULT 0,
		element         TEXT NOT NULL DEFAULT '',
		name            TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		parent_chunk_id TEXT,
		section_path    TEXT NOT NULL DEFAULT '[]',
		section_level   INTEGER NOT NULL DEFAULT 0,
		document_type   TEXT NOT NULL DEFAULT 'kb',
		metadata        TEXT NOT NULL DEFAULT '{}',
		scope           TEXT NOT NULL DEFAULT 'public',
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);
	INSERT INTO chunks (chunk_id, file_path, name, content, document_type, scope, created_at, updated_at)
	VALUES ('kb-legacy', 'old/doc.md', 'Old Section', 'legacy searchable content',
	        'conv', 'admin', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z');`
	if _, err := db.Exec(legacy); err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}
	db.Close()

	s, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("open over legacy schema: %v", err)
	}
	defer s.Close()

	got, err := s.GetChunk(ctx, "kb-legacy")
	if err != nil {
		t.Fatalf("get migrated chunk: %v", err)
	}
	if got.Type != "conv" {
		t.Errorf("document_type not backfilled into type: %q", got.Type)
	}
	if got.Role != "admin" {
		t.Errorf("scope not backfilled into role: %q", got.Role)
	}
	if got.AccessCount != 0 || got.Activation != 0 {
		t.Errorf("legacy access state: count=%d activation=%f", got.AccessCount, got.Activation)
	}

	// Pre-trigger rows are backfilled into the FTS index.
	res, err := s.Search(ctx, "legacy searchable", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].ChunkID != "kb-legacy" {
		t.Fatalf("migrated chunk not searchable: %v", res)
	}
	// The activation cache was never written for this row, so search
	// falls back to a live compute over its empty history.
	if res[0].Activation != 0 {
		t.Errorf("expected zero activation, got %f", res[0].Activation)
	}

	// Re-opening must be a no-op, not a failed re-migration.
	s.Close()
	s2, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := kbChunk("conv-1", "memory/chats/c1", "Conversation c1", "summary text")
	conv.Type = model.TypeConv
	s.SaveChunks(ctx, []model.Chunk{
		kbChunk("kb-1", "docs/a.md", "A", "aaa"),
		kbChunk("kb-2", "docs/a.md", "B", "bbb"),
		kbChunk("kb-3", "docs/b.md", "C", "ccc"),
		conv,
	})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalChunks != 4 {
		t.Errorf("total: %d", st.TotalChunks)
	}
	if st.IndexedFiles != 3 {
		t.Errorf("files: %d", st.IndexedFiles)
	}
	if st.ByType["kb"] != 3 || st.ByType["conv"] != 1 {
		t.Errorf("by type: %v", st.ByType)
	}
	if st.DBSizeBytes <= 0 {
		t.Errorf("db size: %d", st.DBSizeBytes)
	}
	if !strings.HasSuffix(st.DBPath, "test.db") {
		t.Errorf("db path: %s", st.DBPath)
	}
}
