package store

import (
	"context"
	"database/sql"
	"math"
	"time"
)

const (
	// DefaultDecay is the activation decay rate d.
	DefaultDecay = 0.5
	// DefaultWeight scales activation against bm25 in the blended rank.
	DefaultWeight = 2.0
	// maxAccessHistory caps how many recent events feed the formula.
	maxAccessHistory = 50
)

// ComputeActivation evaluates the base-level activation formula over the
// chunk's recent access timestamps:
//
//	activation = ln(1 + Σ max(1s, age_j)^(-d))
//
// The ln(1+B) form keeps the score strictly positive after a single very
// recent access, where ln(B) would be near zero or negative. No history
// means exactly 0.0.
func ComputeActivation(accessTimes []time.Time, decay float64, now time.Time) float64 {
	if len(accessTimes) == 0 {
		return 0.0
	}
	var b float64
	for _, t := range accessTimes {
		age := now.Sub(t).Seconds()
		if age < 1 {
			age = 1
		}
		b += math.Pow(age, -decay)
	}
	return math.Log(1 + b)
}

// queryer abstracts *sql.DB and *sql.Tx for history reads.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// accessTimes loads the chunk's most recent access timestamps, newest first,
// capped at maxAccessHistory.
func accessTimes(ctx context.Context, q queryer, chunkID string) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT accessed_at FROM access_history
		 WHERE chunk_id = ?
		 ORDER BY accessed_at DESC
		 LIMIT ?`, chunkID, maxAccessHistory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// RecordAccess appends one access event and refreshes the chunk's cached
// activation. This is the only code path that writes the cache.
func (s *SQLiteStore) RecordAccess(ctx context.Context, chunkID, query string) error {
	return s.RecordSearchAccess(ctx, []string{chunkID}, query)
}

// RecordSearchAccess records access for a batch of chunk ids in one
// transaction. An empty id list is a no-op, never an error.
func (s *SQLiteStore) RecordSearchAccess(ctx context.Context, chunkIDs []string, query string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin record access", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	stamp := now.Format(timeLayout)

	for _, id := range chunkIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO access_history (id, chunk_id, accessed_at, query) VALUES (?, ?, ?, ?)`,
			s.newID(), id, stamp, query)
		if err != nil {
			return storageErr("insert access event", err)
		}

		times, err := accessTimes(ctx, tx, id)
		if err != nil {
			return storageErr("load access history", err)
		}
		activation := ComputeActivation(times, s.decay, now)

		_, err = tx.ExecContext(ctx,
			`UPDATE chunks
			 SET access_count = access_count + 1, last_accessed = ?, activation = ?
			 WHERE chunk_id = ?`,
			stamp, activation, id)
		if err != nil {
			return storageErr("update activation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit record access", err)
	}
	return nil
}

// liveActivation recomputes activation straight from the event log, for rows
// whose cache was never filled.
func (s *SQLiteStore) liveActivation(ctx context.Context, chunkID string, decay float64, now time.Time) (float64, error) {
	times, err := accessTimes(ctx, s.db, chunkID)
	if err != nil {
		return 0, err
	}
	return ComputeActivation(times, decay, now), nil
}
