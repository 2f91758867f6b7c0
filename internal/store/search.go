package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"kbindex/internal/model"
)

// stopWords is a fixed English list: articles, auxiliary verbs, pronouns,
// and common prepositions/conjunctions. Terms surviving this filter are
// OR-joined for broad recall.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "am": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "shall": {}, "should": {},
	"may": {}, "might": {}, "must": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"me": {}, "him": {}, "her": {}, "us": {}, "them": {},
	"my": {}, "your": {}, "his": {}, "its": {}, "our": {}, "their": {},
	"this": {}, "that": {}, "these": {}, "those": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {},
	"from": {}, "by": {}, "as": {}, "about": {}, "into": {}, "over": {},
	"after": {}, "before": {}, "between": {}, "under": {},
	"and": {}, "or": {}, "but": {}, "if": {}, "then": {}, "than": {}, "so": {},
	"not": {}, "no": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "where": {}, "when": {},
	"why": {}, "how": {},
}

// NormalizeQuery lower-cases the query, strips punctuation, splits on
// whitespace, and drops stop words. An empty return means the query has no
// searchable terms.
func NormalizeQuery(query string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var terms []string
	for _, w := range strings.Fields(b.String()) {
		if _, ok := stopWords[w]; ok {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// ftsQuery quotes each term and OR-joins them for the FTS5 MATCH grammar.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// candidateFactor is how many full-text candidates are fetched per requested
// result before activation reranking.
const candidateFactor = 3

// Search runs the hybrid-ranked query: bm25 candidates from FTS5, blended
// with the activation score as bm25 + weight*activation, sorted descending.
// Search never writes the activation cache.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int, opts SearchOptions) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := NormalizeQuery(query)
	if len(terms) == 0 {
		return []model.SearchResult{}, nil
	}

	where := []string{"chunks_fts MATCH ?"}
	args := []interface{}{ftsQuery(terms)}

	if len(opts.Roles) > 0 {
		where = append(where, "c.role IN ("+placeholders(len(opts.Roles))+")")
		for _, r := range opts.Roles {
			args = append(args, r)
		}
	}
	if len(opts.Types) > 0 {
		where = append(where, "c.type IN ("+placeholders(len(opts.Types))+")")
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}

	sqlq := fmt.Sprintf(`
		SELECT %s, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE %s
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, chunkColumns("c"), strings.Join(where, " AND "))
	args = append(args, candidateFactor*limit)

	rows, err := s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, storageErr("search", err)
	}

	type candidate struct {
		chunk  model.Chunk
		cached bool
		raw    float64
	}
	var candidates []candidate
	for rows.Next() {
		var raw float64
		c, cached, err := scanChunk(rows, &raw)
		if err != nil {
			rows.Close()
			return nil, storageErr("scan search row", err)
		}
		candidates = append(candidates, candidate{chunk: c, cached: cached, raw: raw})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("search rows", err)
	}
	rows.Close()

	decay := opts.Decay
	if decay <= 0 {
		decay = s.decay
	}
	now := time.Now().UTC()

	results := make([]model.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		activation := cand.chunk.Activation
		if !cand.cached {
			activation, err = s.liveActivation(ctx, cand.chunk.ChunkID, decay, now)
			if err != nil {
				return nil, storageErr("compute activation", err)
			}
		}

		// The engine reports better matches as more negative.
		bm25 := -cand.raw

		r := model.SearchResult{Chunk: cand.chunk, BM25: bm25}
		r.Activation = activation
		r.Rank = bm25 + s.weight*activation
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rank > results[j].Rank
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// RecentByType is the non-matching fallback path: newest chunks of the given
// types by creation time, no full-text scoring involved.
func (s *SQLiteStore) RecentByType(ctx context.Context, types []string, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		limit = 10
	}

	where := ""
	var args []interface{}
	if len(types) > 0 {
		where = "WHERE type IN (" + placeholders(len(types)) + ")"
		for _, t := range types {
			args = append(args, t)
		}
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM chunks %s
		ORDER BY created_at DESC
		LIMIT ?`, chunkColumns(""), where), args...)
	if err != nil {
		return nil, storageErr("recent by type", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		c, _, err := scanChunk(rows)
		if err != nil {
			return nil, storageErr("scan recent row", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
