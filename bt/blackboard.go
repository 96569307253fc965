package bt

import (
	"maps"
	"slices"
)

// Blackboard is a scoped key/value store. Lookups walk the parent chain and
// the nearest scope wins; writes and deletes only touch the local scope.
// The parent pointer is for lookup only.
//
// A Blackboard is not safe for concurrent use. Global and per-faction scopes
// are shared by every tree under them and rely on a single evaluating
// goroutine.
type Blackboard struct {
	parent *Blackboard
	data   map[string]any
}

func NewBlackboard(parent *Blackboard) *Blackboard {
	return &Blackboard{parent: parent, data: make(map[string]any)}
}

func (b *Blackboard) Parent() *Blackboard {
	if b == nil {
		return nil
	}
	return b.parent
}

// Get looks key up in this scope, then each ancestor.
func (b *Blackboard) Get(key string) (any, bool) {
	for s := b; s != nil; s = s.parent {
		if v, ok := s.data[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Local looks key up in this scope only.
func (b *Blackboard) Local(key string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.data[key]
	return v, ok
}

func (b *Blackboard) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

func (b *Blackboard) Set(key string, v any) {
	b.data[key] = v
}

func (b *Blackboard) Delete(key string) {
	if b == nil {
		return
	}
	delete(b.data, key)
}

// Keys returns the local keys, sorted.
func (b *Blackboard) Keys() []string {
	if b == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(b.data))
}

func (b *Blackboard) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Clear drops every local entry. Ancestors are untouched.
func (b *Blackboard) Clear() {
	if b == nil {
		return
	}
	clear(b.data)
}

// Value is a typed Get. ok is false when the key is missing or holds a
// different type.
func Value[T any](b *Blackboard, key string) (T, bool) {
	v, ok := b.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ValueOr is Value with a fallback.
func ValueOr[T any](b *Blackboard, key string, def T) T {
	if v, ok := Value[T](b, key); ok {
		return v
	}
	return def
}

func localInt(b *Blackboard, key string) (int, bool) {
	v, ok := b.Local(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}
