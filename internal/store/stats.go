package store

import (
	"context"
	"os"
)

// Stats holds index-wide statistics.
type Stats struct {
	DBPath       string         `json:"db_path"`
	DBSizeBytes  int64          `json:"db_size_bytes"`
	TotalChunks  int            `json:"total_chunks"`
	ByType       map[string]int `json:"by_type"`
	IndexedFiles int            `json:"indexed_files"`
}

// Stats returns totals, a per-type breakdown, and the distinct file count.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, ByType: map[string]int{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.TotalChunks); err != nil {
		return nil, storageErr("count chunks", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT file_path) FROM chunks`).Scan(&st.IndexedFiles); err != nil {
		return nil, storageErr("count files", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM chunks GROUP BY type`)
	if err != nil {
		return nil, storageErr("count by type", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, storageErr("scan type count", err)
		}
		st.ByType[typ] = n
	}
	return st, rows.Err()
}
