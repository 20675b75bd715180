package directory

import (
	"testing"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

func strPtr(s string) *string { return &s }

func users() []domain.User {
	return []domain.User{
		{ID: 1, Username: "alice", Name: strPtr("Alice Liddell")},
		{ID: 2, Username: "bob_99", Name: strPtr("Bob Builder")},
		{ID: 3, Username: "alicia"},
		{ID: 4, Username: "carol"},
		{ID: 5, Username: "straße_fan", Name: strPtr("Große Fan")},
	}
}

func ids(rs []Result) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.User.ID
	}
	return out
}

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minScore != 0 || def.substringBonus != 0.25 || def.exclude != nil {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}
	cfg := def
	WithMinScore(0.3)(&cfg)
	WithMinScore(-1)(&cfg) // ignored
	if cfg.minScore != 0.3 {
		t.Fatalf("WithMinScore failed: %v", cfg.minScore)
	}
	WithSubstringBonus(0.5)(&cfg)
	WithSubstringBonus(-2)(&cfg) // ignored
	if cfg.substringBonus != 0.5 {
		t.Fatalf("WithSubstringBonus failed: %v", cfg.substringBonus)
	}
	WithExclude()(&cfg)
	if cfg.exclude != nil {
		t.Fatalf("empty WithExclude should be a no-op")
	}
	WithExclude(7, 8)(&cfg)
	if len(cfg.exclude) != 2 {
		t.Fatalf("WithExclude failed: %#v", cfg.exclude)
	}
}

func TestSearch_ExactAndPrefix(t *testing.T) {
	idx := New(users())
	got := ids(idx.Search("alice", 0))
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only alice, got %v", got)
	}
	// "ali" is a prefix of both; alicia has fewer unmatched tokens.
	got = ids(idx.Search("ali", 0))
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Fatalf("unexpected prefix ranking: %v", got)
	}
}

func TestSearch_NameAndDigitTokens(t *testing.T) {
	idx := New(users())
	if got := ids(idx.Search("builder", 0)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected bob via display name, got %v", got)
	}
	if got := ids(idx.Search("99", 0)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected bob via digit token, got %v", got)
	}
}

func TestSearch_CaseFolding(t *testing.T) {
	idx := New(users())
	if got := ids(idx.Search("ALICE", 1)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected case-insensitive hit, got %v", got)
	}
	// Full folding maps ß to ss on both sides.
	if got := ids(idx.Search("STRASSE", 0)); len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected folded hit, got %v", got)
	}
}

func TestSearch_ExcludeLimitAndEmpty(t *testing.T) {
	idx := New(users(), WithExclude(1))
	if idx.Len() != 4 {
		t.Fatalf("Len = %d; want 4", idx.Len())
	}
	for _, id := range ids(idx.Search("alice", 0)) {
		if id == 1 {
			t.Fatalf("excluded user returned")
		}
	}
	if got := idx.Search("   ", 5); got != nil {
		t.Fatalf("blank query should return nil, got %v", got)
	}
	if got := idx.Search("zzz", 5); got != nil {
		t.Fatalf("no match should return nil, got %v", got)
	}
	if got := New(nil).Search("alice", 5); got != nil {
		t.Fatalf("empty index should return nil")
	}
	if got := New(users()).Search("a", 1); len(got) != 1 {
		t.Fatalf("k should cap results, got %d", len(got))
	}
}

func TestSearch_MinScore(t *testing.T) {
	idx := New(users(), WithMinScore(0.9))
	if got := idx.Search("ali", 0); got != nil {
		t.Fatalf("weak matches should be filtered, got %v", ids(got))
	}
}
