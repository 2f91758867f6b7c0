package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"kbindex/internal/model"
)

// Config holds store construction parameters.
type Config struct {
	Path   string
	Weight float64 // blended-ranking activation weight, default 2.0
	Decay  float64 // activation decay rate, default 0.5
}

// SQLiteStore implements Store using SQLite with an FTS5 index.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	weight  float64
	decay   float64
	entropy *rand.Rand
}

// New opens or creates a SQLite store at cfg.Path.
func New(cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if cfg.Weight == 0 {
		cfg.Weight = DefaultWeight
	}
	if cfg.Decay == 0 {
		cfg.Decay = DefaultDecay
	}

	s := &SQLiteStore{
		db:      db,
		path:    cfg.Path,
		weight:  cfg.Weight,
		decay:   cfg.Decay,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// timeLayout is RFC 3339 with a fixed-width fractional second. Timestamps
// are compared as TEXT in SQL, and RFC3339Nano trims trailing zeros, which
// makes lexicographic order diverge from chronological order when one stamp
// is a prefix of another. Reads still parse with RFC3339Nano, which accepts
// both forms.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const baseSchema = `
CREATE TABLE IF NOT EXISTS chunks (
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
	type            TEXT NOT NULL DEFAULT 'kb',
	metadata        TEXT NOT NULL DEFAULT '{}',
	role            TEXT NOT NULL DEFAULT 'public',
	activation      REAL DEFAULT 0,
	access_count    INTEGER NOT NULL DEFAULT 0,
	last_accessed   TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS access_history (
	id          TEXT PRIMARY KEY,
	chunk_id    TEXT NOT NULL REFERENCES chunks(chunk_id) ON DELETE CASCADE,
	accessed_at TEXT NOT NULL,
	query       TEXT NOT NULL DEFAULT ''
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	name,
	content,
	section_path,
	content=chunks,
	content_rowid=rowid,
	tokenize='porter unicode61'
);
`

// indexSchema runs after the column migrations so the indexes can cover
// columns that migrations add to pre-existing tables.
const indexSchema = `
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);
CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type);
CREATE INDEX IF NOT EXISTS idx_chunks_role ON chunks(role);
CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_access_chunk ON access_history(chunk_id, accessed_at DESC);
`

// migration is one idempotent schema-evolution step, checked against
// observable schema state and applied once at store open.
type migration struct {
	name   string
	needed func(db *sql.DB) (bool, error)
	apply  func(db *sql.DB) error
}

// Migrations are additive only: renamed columns are added next to the old
// ones and backfilled, never dropped, so pre-existing indexed data stays
// searchable without a re-index.
var migrations = []migration{
	{
		name:   "chunks.type from legacy document_type",
		needed: columnMissing("chunks", "type"),
		apply: func(db *sql.DB) error {
			if _, err := db.Exec(`ALTER TABLE chunks ADD COLUMN type TEXT NOT NULL DEFAULT 'kb'`); err != nil {
				return err
			}
			return backfill(db, "chunks", "document_type", `UPDATE chunks SET type = document_type`)
		},
	},
	{
		name:   "chunks.role from legacy scope",
		needed: columnMissing("chunks", "role"),
		apply: func(db *sql.DB) error {
			if _, err := db.Exec(`ALTER TABLE chunks ADD COLUMN role TEXT NOT NULL DEFAULT 'public'`); err != nil {
				return err
			}
			return backfill(db, "chunks", "scope", `UPDATE chunks SET role = scope`)
		},
	},
	{
		name:   "chunks activation columns",
		needed: columnMissing("chunks", "activation"),
		apply: func(db *sql.DB) error {
			// No default: legacy rows keep a NULL cache so search knows
			// to recompute from their event history.
			stmts := []string{
				`ALTER TABLE chunks ADD COLUMN activation REAL`,
				`ALTER TABLE chunks ADD COLUMN access_count INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE chunks ADD COLUMN last_accessed TEXT`,
			}
			for _, stmt := range stmts {
				if _, err := db.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

func columnMissing(table, column string) func(db *sql.DB) (bool, error) {
	return func(db *sql.DB) (bool, error) {
		ok, err := hasColumn(db, table, column)
		return !ok, err
	}
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// backfill copies oldColumn into the new column when the old one exists.
func backfill(db *sql.DB, table, oldColumn, update string) error {
	ok, err := hasColumn(db, table, oldColumn)
	if err != nil || !ok {
		return err
	}
	_, err = db.Exec(update)
	return err
}

func (s *SQLiteStore) migrate() error {
	var ftsTables int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'chunks_fts'`,
	).Scan(&ftsTables); err != nil {
		return err
	}

	if _, err := s.db.Exec(baseSchema); err != nil {
		return err
	}

	applied := false
	for _, m := range migrations {
		needed, err := m.needed(s.db)
		if err != nil {
			return fmt.Errorf("check %s: %w", m.name, err)
		}
		if !needed {
			continue
		}
		if err := m.apply(s.db); err != nil {
			return fmt.Errorf("apply %s: %w", m.name, err)
		}
		applied = true
	}

	if _, err := s.db.Exec(indexSchema); err != nil {
		return err
	}

	// FTS5 triggers keep the index in lockstep with chunk writes.
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, chunk_id, name, content, section_path)
			VALUES (new.rowid, new.chunk_id, new.name, new.content, new.section_path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, chunk_id, name, content, section_path)
			VALUES ('delete', old.rowid, old.chunk_id, old.name, old.content, old.section_path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, chunk_id, name, content, section_path)
			VALUES ('delete', old.rowid, old.chunk_id, old.name, old.content, old.section_path);
			INSERT INTO chunks_fts(rowid, chunk_id, name, content, section_path)
			VALUES (new.rowid, new.chunk_id, new.name, new.content, new.section_path);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return err
		}
	}

	// Rebuild the index whenever the FTS table is new or the schema moved,
	// picking up rows written before the triggers existed. Rebuild is
	// idempotent where a raw backfill insert would duplicate postings.
	if ftsTables == 0 || applied {
		if _, err := s.db.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES('rebuild')`); err != nil {
			return err
		}
	}

	return nil
}

// SaveChunk inserts or wholly replaces one chunk.
func (s *SQLiteStore) SaveChunk(ctx context.Context, chunk model.Chunk) error {
	return s.SaveChunks(ctx, []model.Chunk{chunk})
}

// SaveChunks upserts the set in a single transaction so a reader never
// observes a half-written batch.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin save", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, file_path, page_start, page_end, element, name, content,
		                    parent_chunk_id, section_path, section_level, type, metadata, role,
		                    created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			file_path = excluded.file_path,
			page_start = excluded.page_start,
			page_end = excluded.page_end,
			element = excluded.element,
			name = excluded.name,
			content = excluded.content,
			parent_chunk_id = excluded.parent_chunk_id,
			section_path = excluded.section_path,
			section_level = excluded.section_level,
			type = excluded.type,
			metadata = excluded.metadata,
			role = excluded.role,
			updated_at = excluded.updated_at`)
	if err != nil {
		return storageErr("prepare save", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	for _, c := range chunks {
		if c.Type == "" {
			c.Type = model.TypeKB
		}
		if c.Role == "" {
			c.Role = model.RolePublic
		}

		var parent *string
		if c.ParentChunkID != "" {
			parent = &c.ParentChunkID
		}
		secPath, _ := json.Marshal(c.SectionPath)
		if c.SectionPath == nil {
			secPath = []byte("[]")
		}
		meta, _ := json.Marshal(c.Metadata)
		if c.Metadata == nil {
			meta = []byte("{}")
		}

		_, err := stmt.ExecContext(ctx,
			c.ChunkID, c.FilePath, c.PageStart, c.PageEnd, c.Element, c.Name, c.Content,
			parent, string(secPath), c.SectionLevel, c.Type, string(meta), c.Role,
			now, now)
		if err != nil {
			return storageErr("save chunk "+c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit save", err)
	}
	return nil
}

// DeleteByFile removes every chunk for the path in one statement; the FTS
// trigger and the access_history foreign key cascade handle the rest.
func (s *SQLiteStore) DeleteByFile(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath); err != nil {
		return storageErr("delete by file", err)
	}
	return nil
}

// GetChunk retrieves one chunk by id.
func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID string) (*model.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns("")+` FROM chunks WHERE chunk_id = ?`, chunkID)
	c, _, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", chunkID)
	}
	if err != nil {
		return nil, storageErr("get chunk", err)
	}
	return &c, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var chunkColumnNames = []string{
	"chunk_id", "file_path", "page_start", "page_end", "element", "name", "content",
	"parent_chunk_id", "section_path", "section_level", "type", "metadata", "role",
	"activation", "access_count", "last_accessed", "created_at", "updated_at",
}

// chunkColumns renders the select list, optionally table-qualified.
func chunkColumns(prefix string) string {
	if prefix == "" {
		return strings.Join(chunkColumnNames, ", ")
	}
	qualified := make([]string, len(chunkColumnNames))
	for i, c := range chunkColumnNames {
		qualified[i] = prefix + "." + c
	}
	return strings.Join(qualified, ", ")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk reads a row in chunkColumns order, plus any extra trailing
// columns. The bool reports whether the activation cache was filled; a NULL
// marks a legacy row whose cache was never computed.
func scanChunk(row scanner, extra ...interface{}) (model.Chunk, bool, error) {
	var (
		c                    model.Chunk
		parent, lastAccessed sql.NullString
		activation           sql.NullFloat64
		secPath, meta        string
		createdAt, updatedAt string
	)

	dest := []interface{}{
		&c.ChunkID, &c.FilePath, &c.PageStart, &c.PageEnd, &c.Element, &c.Name, &c.Content,
		&parent, &secPath, &c.SectionLevel, &c.Type, &meta, &c.Role,
		&activation, &c.AccessCount, &lastAccessed, &createdAt, &updatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return c, false, err
	}

	if parent.Valid {
		c.ParentChunkID = parent.String
	}
	json.Unmarshal([]byte(secPath), &c.SectionPath)
	json.Unmarshal([]byte(meta), &c.Metadata)
	if activation.Valid {
		c.Activation = activation.Float64
	}
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastAccessed.String)
		c.LastAccessed = &t
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return c, activation.Valid, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}
