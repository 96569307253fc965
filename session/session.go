// Package session owns the AI state shared across units: the global and
// per-faction blackboards and the tick-expiring analysis caches.
package session

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/nstehr/vimy/vimy-tactics/bt"
)

// Cache kinds used by the scheduler.
const (
	Composition    = "composition"
	ThreatGap      = "threat_gap"
	Recommendation = "recommendation"
)

type entry struct {
	value   any
	stored  int
	expires int
}

type cacheKey struct {
	faction string
	kind    string
}

// Session is passed explicitly to whatever needs shared AI state. Like the
// blackboards it holds, it is confined to the simulation goroutine.
type Session struct {
	ID     uuid.UUID
	Global *bt.Blackboard

	factions map[string]*bt.Blackboard
	cache    map[cacheKey]entry
	hits     int
	misses   int
}

func New() *Session {
	return &Session{
		ID:       uuid.New(),
		Global:   bt.NewBlackboard(nil),
		factions: make(map[string]*bt.Blackboard),
		cache:    make(map[cacheKey]entry),
	}
}

// Faction returns the faction's blackboard, creating it under Global.
func (s *Session) Faction(name string) *bt.Blackboard {
	bb, ok := s.factions[name]
	if !ok {
		bb = bt.NewBlackboard(s.Global)
		s.factions[name] = bb
		slog.Debug("faction scope created", "session", s.ID, "faction", name)
	}
	return bb
}

// Cached returns a value stored for (faction, kind) that has not expired at
// tick. Entries stored in the future relative to tick are treated as stale.
func (s *Session) Cached(faction, kind string, tick int) (any, bool) {
	e, ok := s.cache[cacheKey{faction, kind}]
	if !ok || tick >= e.expires || tick < e.stored {
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// Store caches v for ttl ticks starting at tick.
func (s *Session) Store(faction, kind string, tick, ttl int, v any) {
	s.cache[cacheKey{faction, kind}] = entry{value: v, stored: tick, expires: tick + ttl}
}

// Invalidate drops every cached value for the faction.
func (s *Session) Invalidate(faction string) {
	for k := range s.cache {
		if k.faction == faction {
			delete(s.cache, k)
		}
	}
}

// CacheStats reports cache hits and misses since creation.
func (s *Session) CacheStats() (hits, misses int) { return s.hits, s.misses }

// CachedAs is Cached with a type assertion.
func CachedAs[T any](s *Session, faction, kind string, tick int) (T, bool) {
	v, ok := s.Cached(faction, kind, tick)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
