package bt

import (
	"slices"
	"testing"
)

func TestBlackboardScopes(t *testing.T) {
	global := NewBlackboard(nil)
	faction := NewBlackboard(global)
	unit := NewBlackboard(faction)

	global.Set("aggression", 0.5)
	global.Set("mode", "global")
	faction.Set("mode", "faction")

	if v, _ := unit.Get("mode"); v != "faction" {
		t.Errorf("Get(mode) = %v, want faction (nearest scope)", v)
	}
	if v, _ := unit.Get("aggression"); v != 0.5 {
		t.Errorf("Get(aggression) = %v, want 0.5 from global", v)
	}
	if _, ok := unit.Get("missing"); ok {
		t.Error("Get(missing) should fail after exhausting the chain")
	}

	unit.Set("mode", "unit")
	if v, _ := faction.Get("mode"); v != "faction" {
		t.Errorf("write leaked to parent: faction mode = %v", v)
	}
	if v, _ := unit.Get("mode"); v != "unit" {
		t.Errorf("Get(mode) = %v, want unit after local write", v)
	}

	unit.Delete("mode")
	if v, _ := unit.Get("mode"); v != "faction" {
		t.Errorf("after Delete, Get(mode) = %v, want faction", v)
	}
	unit.Delete("aggression") // not local: no effect
	if !unit.Has("aggression") {
		t.Error("Delete must not reach ancestors")
	}
	if _, ok := unit.Local("aggression"); ok {
		t.Error("Local should not see parent entries")
	}
}

func TestBlackboardKeysAndClear(t *testing.T) {
	parent := NewBlackboard(nil)
	parent.Set("p", 1)
	bb := NewBlackboard(parent)
	bb.Set("b", 1)
	bb.Set("a", 2)

	if got := bb.Keys(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v, want [a b]", got)
	}
	bb.Clear()
	if bb.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", bb.Len())
	}
	if !bb.Has("p") {
		t.Error("Clear must not touch the parent")
	}
}

func TestBlackboardValue(t *testing.T) {
	bb := NewBlackboard(nil)
	bb.Set("n", 3)
	bb.Set("s", "x")

	if n, ok := Value[int](bb, "n"); !ok || n != 3 {
		t.Errorf("Value[int](n) = %d,%v, want 3,true", n, ok)
	}
	if _, ok := Value[int](bb, "s"); ok {
		t.Error("Value[int] on a string should fail")
	}
	if got := ValueOr(bb, "missing", 7); got != 7 {
		t.Errorf("ValueOr = %d, want 7", got)
	}

	var none *Blackboard
	if _, ok := none.Get("x"); ok {
		t.Error("nil blackboard Get should fail")
	}
}
