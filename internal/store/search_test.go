package store

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"kbindex/internal/model"
)

func TestNormalizeQuery(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"How do I install the tool?", []string{"install", "tool"}},
		{"INSTALL, the; tool!", []string{"install", "tool"}},
		{"the a is are", nil},
		{"", nil},
		{"version 2 setup", []string{"version", "2", "setup"}},
	}
	for _, c := range cases {
		got := NormalizeQuery(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("NormalizeQuery(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFTSQuery(t *testing.T) {
	if got := ftsQuery([]string{"install", "tool"}); got != `"install" OR "tool"` {
		t.Errorf("ftsQuery: %q", got)
	}
}

func TestSearchRelevance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunks(ctx, []model.Chunk{
		kbChunk("kb-setup", "docs/g.md", "Setup", "To install the tool run make install. Install steps follow."),
		kbChunk("kb-usage", "docs/g.md", "Usage", "Run the tool against your documents."),
		kbChunk("kb-other", "docs/g.md", "Other", "Nothing relevant lives here."),
	})

	res, err := s.Search(ctx, "how do I install the tool", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res))
	}
	if res[0].ChunkID != "kb-setup" {
		t.Errorf("expected kb-setup first, got %s", res[0].ChunkID)
	}
	if res[0].BM25 <= res[1].BM25 {
		t.Errorf("bm25 ordering: %f vs %f", res[0].BM25, res[1].BM25)
	}
}

func TestSearchStopWordOnlyQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.SaveChunk(ctx, kbChunk("kb-1", "f", "N", "some content"))

	res, err := s.Search(ctx, "the is a", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("expected empty result set, got %d", len(res))
	}
}

func TestSearchRoleIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pub := kbChunk("kb-pub", "docs/p.md", "Public Doc", "shared team knowledge")
	adm := kbChunk("kb-adm", "docs/p.md", "Admin Doc", "shared admin knowledge")
	adm.Role = model.RoleAdmin
	usr := kbChunk("kb-usr", "memory/chats/c1", "Chat", "shared private knowledge")
	usr.Role = model.UserRole("c1")
	s.SaveChunks(ctx, []model.Chunk{pub, adm, usr})

	res, _ := s.Search(ctx, "shared knowledge", 10, SearchOptions{Roles: []string{"public"}})
	if len(res) != 1 || res[0].ChunkID != "kb-pub" {
		t.Errorf("public-only search: %v", ids(res))
	}

	res, _ = s.Search(ctx, "shared knowledge", 10, SearchOptions{Roles: []string{"public", "user:c1"}})
	if len(res) != 2 {
		t.Errorf("public+user search: %v", ids(res))
	}

	// No role filter means everything is visible.
	res, _ = s.Search(ctx, "shared knowledge", 10, SearchOptions{})
	if len(res) != 3 {
		t.Errorf("unfiltered search: %v", ids(res))
	}
}

func TestSearchTypeFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	kb := kbChunk("kb-1", "docs/a.md", "Doc", "deployment checklist")
	conv := kbChunk("conv-1", "memory/chats/c1", "Conversation c1", "we discussed the deployment")
	conv.Type = model.TypeConv
	s.SaveChunks(ctx, []model.Chunk{kb, conv})

	res, _ := s.Search(ctx, "deployment", 10, SearchOptions{Types: []string{model.TypeConv}})
	if len(res) != 1 || res[0].ChunkID != "conv-1" {
		t.Errorf("conv-only search: %v", ids(res))
	}
}

func TestSearchBlendedRank(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Identical content so bm25 ties; activation must break the tie.
	s.SaveChunks(ctx, []model.Chunk{
		kbChunk("kb-cold", "docs/a.md", "Cold", "identical caching guidance"),
		kbChunk("kb-hot", "docs/b.md", "Hot", "identical caching guidance"),
	})
	if err := s.RecordAccess(ctx, "kb-hot", "caching"); err != nil {
		t.Fatalf("record: %v", err)
	}

	res, err := s.Search(ctx, "caching guidance", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].ChunkID != "kb-hot" {
		t.Errorf("accessed chunk should rank first, got %s", res[0].ChunkID)
	}
	if res[0].Activation <= 0 {
		t.Errorf("accessed chunk activation: %f", res[0].Activation)
	}
	if res[1].Activation != 0 {
		t.Errorf("untouched chunk activation: %f", res[1].Activation)
	}

	for _, r := range res {
		want := r.BM25 + DefaultWeight*r.Activation
		if math.Abs(r.Rank-want) > 1e-9 {
			t.Errorf("%s rank %f, want bm25 %f + %f*activation %f",
				r.ChunkID, r.Rank, r.BM25, DefaultWeight, r.Activation)
		}
	}
}

func TestSearchDoesNotWriteActivationCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, kbChunk("kb-1", "f", "N", "observable content"))
	s.RecordAccess(ctx, "kb-1", "observable")

	before, _ := s.GetChunk(ctx, "kb-1")
	if _, err := s.Search(ctx, "observable", 10, SearchOptions{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	after, _ := s.GetChunk(ctx, "kb-1")

	if after.Activation != before.Activation || after.AccessCount != before.AccessCount {
		t.Errorf("search mutated access state: %+v -> %+v", before, after)
	}
}

func TestSearchLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"kb-1", "kb-2", "kb-3", "kb-4", "kb-5"} {
		s.SaveChunk(ctx, kbChunk(id, "docs/"+id+".md", id, "repeated filler phrase"))
	}

	res, err := s.Search(ctx, "filler phrase", 2, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("expected limit 2, got %d", len(res))
	}
}

func TestRecentByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := kbChunk("conv-old", "memory/chats/a", "A", "one")
	a.Type = model.TypeConv
	s.SaveChunk(ctx, a)

	b := kbChunk("conv-new", "memory/chats/b", "B", "two")
	b.Type = model.TypeConv
	s.SaveChunk(ctx, b)

	s.SaveChunk(ctx, kbChunk("kb-1", "docs/a.md", "Doc", "three"))

	res, err := s.RecentByType(ctx, []string{model.TypeConv}, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 conv chunks, got %d", len(res))
	}
	if res[0].ChunkID != "conv-new" {
		t.Errorf("expected newest first, got %s", res[0].ChunkID)
	}

	all, err := s.RecentByType(ctx, nil, 2)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("limit ignored: %d", len(all))
	}
}

func TestRecentByTypeSameSecondOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, kbChunk("kb-older", "docs/a.md", "A", "one"))
	s.SaveChunk(ctx, kbChunk("kb-newer", "docs/b.md", "B", "two"))

	// Fractional seconds where one rendering is a prefix of the other
	// (.12 vs .123): trimmed-zero formats sort these backwards as TEXT.
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	older := base.Add(120 * time.Millisecond)
	newer := base.Add(123 * time.Millisecond)
	for id, ts := range map[string]time.Time{"kb-older": older, "kb-newer": newer} {
		if _, err := s.db.Exec(`UPDATE chunks SET created_at = ? WHERE chunk_id = ?`,
			ts.Format(timeLayout), id); err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.RecentByType(ctx, nil, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if res[0].ChunkID != "kb-newer" {
		t.Errorf("expected kb-newer first, got %s", res[0].ChunkID)
	}
}

func TestStoredTimestampsFixedWidth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, kbChunk("kb-1", "f", "N", "content"))
	s.RecordAccess(ctx, "kb-1", "q")

	var created, accessed string
	if err := s.db.QueryRow(
		`SELECT created_at, last_accessed FROM chunks WHERE chunk_id = 'kb-1'`,
	).Scan(&created, &accessed); err != nil {
		t.Fatal(err)
	}
	// Nine fractional digits regardless of trailing zeros, so TEXT order
	// stays chronological.
	for _, stamp := range []string{created, accessed} {
		if len(stamp) != len("2006-01-02T15:04:05.000000000Z") {
			t.Errorf("stamp not fixed width: %q", stamp)
		}
		if ts, err := time.Parse(timeLayout, stamp); err != nil || ts.IsZero() {
			t.Errorf("stamp does not round-trip: %q (%v)", stamp, err)
		}
	}
}

func ids(res []model.SearchResult) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.ChunkID
	}
	return out
}
