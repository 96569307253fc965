package session

import (
	"testing"

	"github.com/google/uuid"
)

func TestFactionScopes(t *testing.T) {
	s := New()
	if s.ID == uuid.Nil {
		t.Fatal("session id not set")
	}
	s.Global.Set("difficulty", "hard")

	a := s.Faction("A")
	if a != s.Faction("A") {
		t.Error("Faction should return the same scope on repeat calls")
	}
	if v, _ := a.Get("difficulty"); v != "hard" {
		t.Errorf("faction scope cannot see global: %v", v)
	}
	a.Set("stance", "defensive")
	if s.Faction("B").Has("stance") {
		t.Error("faction scopes leak into each other")
	}
	if s.Global.Has("stance") {
		t.Error("faction write landed in global")
	}
}

func TestCacheExpiry(t *testing.T) {
	s := New()
	s.Store("A", ThreatGap, 100, 10, 4.5)

	if v, ok := CachedAs[float64](s, "A", ThreatGap, 105); !ok || v != 4.5 {
		t.Errorf("Cached at 105 = %v,%v, want 4.5,true", v, ok)
	}
	if _, ok := s.Cached("A", ThreatGap, 110); ok {
		t.Error("entry should expire at stored+ttl")
	}
	if _, ok := s.Cached("A", ThreatGap, 99); ok {
		t.Error("entry stored after the query tick should be stale")
	}
	if _, ok := s.Cached("B", ThreatGap, 105); ok {
		t.Error("caches must be per faction")
	}
	if _, ok := CachedAs[string](s, "A", ThreatGap, 105); ok {
		t.Error("CachedAs with the wrong type should fail")
	}

	hits, misses := s.CacheStats()
	if hits != 2 || misses != 3 {
		t.Errorf("CacheStats = %d/%d, want 2/3", hits, misses)
	}
}

func TestInvalidate(t *testing.T) {
	s := New()
	s.Store("A", Composition, 0, 100, map[string]int{"tank": 2})
	s.Store("A", Recommendation, 0, 100, "spread")
	s.Store("B", Composition, 0, 100, map[string]int{})

	s.Invalidate("A")
	if _, ok := s.Cached("A", Composition, 1); ok {
		t.Error("A composition survived Invalidate")
	}
	if _, ok := s.Cached("A", Recommendation, 1); ok {
		t.Error("A recommendation survived Invalidate")
	}
	if _, ok := s.Cached("B", Composition, 1); !ok {
		t.Error("Invalidate(A) dropped B's entry")
	}
}
