package bt

import (
	"testing"
	"time"
)

func always(v bool) Predicate { return func(*Context) bool { return v } }

func TestInverterAndSucceeder(t *testing.T) {
	bb := NewBlackboard(nil)
	tests := []struct {
		name string
		node Node
		want Status
	}{
		{"invert success", Invert(&probe{status: Success}), Failure},
		{"invert failure", Invert(&probe{status: Failure}), Success},
		{"invert running", Invert(&probe{status: Running}), Running},
		{"succeed failure", Succeed(&probe{status: Failure}), Success},
		{"succeed running", Succeed(&probe{status: Running}), Success},
	}
	for _, tc := range tests {
		if got := tc.node.Evaluate(ctxAt(bb, 0)); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestGuardAndCondition(t *testing.T) {
	child := &probe{status: Success}
	bb := NewBlackboard(nil)

	if got := Condition(always(false), child).Evaluate(ctxAt(bb, 0)); got != Failure {
		t.Errorf("Condition(false) = %s, want failure", got)
	}
	if child.calls != 0 {
		t.Error("child ran with a false condition")
	}
	if got := NewGuard(always(false), child, Success).Evaluate(ctxAt(bb, 0)); got != Success {
		t.Errorf("Guard(false, otherwise=success) = %s, want success", got)
	}
	if got := Condition(always(true), child).Evaluate(ctxAt(bb, 0)); got != Success {
		t.Errorf("Condition(true) = %s, want child's success", got)
	}
}

func TestCooldownTicks(t *testing.T) {
	child := &probe{status: Success}
	cd := NewCooldownTicks(5, child)
	bb := NewBlackboard(nil)

	if got := cd.Evaluate(ctxAt(bb, 10)); got != Success {
		t.Fatalf("tick 10: got %s, want success", got)
	}
	for tick := 11; tick < 15; tick++ {
		if got := cd.Evaluate(ctxAt(bb, tick)); got != Failure {
			t.Errorf("tick %d: got %s, want failure during cooldown", tick, got)
		}
	}
	if got := cd.Evaluate(ctxAt(bb, 15)); got != Success {
		t.Errorf("tick 15: got %s, want success after cooldown", got)
	}
	if child.calls != 2 {
		t.Errorf("child calls = %d, want 2", child.calls)
	}

	// Failures do not start the cooldown.
	child.status = Failure
	fresh := NewBlackboard(nil)
	cd.Evaluate(ctxAt(fresh, 0))
	child.status = Success
	if got := cd.Evaluate(ctxAt(fresh, 1)); got != Success {
		t.Errorf("got %s, want success: failure must not arm the cooldown", got)
	}
}

func TestCooldownWallClock(t *testing.T) {
	now := time.Unix(1000, 0)
	child := &probe{status: Success}
	cd := NewCooldown(2*time.Second, child)
	cd.Now = func() time.Time { return now }
	bb := NewBlackboard(nil)

	cd.Evaluate(ctxAt(bb, 0))
	now = now.Add(time.Second)
	if got := cd.Evaluate(ctxAt(bb, 0)); got != Failure {
		t.Errorf("got %s, want failure inside cooldown", got)
	}
	now = now.Add(time.Second)
	if got := cd.Evaluate(ctxAt(bb, 0)); got != Success {
		t.Errorf("got %s, want success after cooldown", got)
	}
}

func TestTimeout(t *testing.T) {
	child := &probe{status: Running}
	to := NewTimeout(3, child)
	bb := NewBlackboard(nil)

	for tick := 5; tick < 8; tick++ {
		if got := to.Evaluate(ctxAt(bb, tick)); got != Running {
			t.Fatalf("tick %d: got %s, want running", tick, got)
		}
	}
	if got := to.Evaluate(ctxAt(bb, 8)); got != Failure {
		t.Fatalf("tick 8: got %s, want failure on timeout", got)
	}
	if bb.Len() != 0 {
		t.Errorf("timeout left memory: %v", bb.Keys())
	}
	// The clock restarts on the next run.
	if got := to.Evaluate(ctxAt(bb, 100)); got != Running {
		t.Errorf("tick 100: got %s, want running after restart", got)
	}
	child.status = Success
	if got := to.Evaluate(ctxAt(bb, 101)); got != Success {
		t.Errorf("tick 101: got %s, want success", got)
	}
}

func TestReactiveInterrupts(t *testing.T) {
	ok := true
	a := &probe{status: Success}
	w := NewWait(10)
	r := NewReactive(func(*Context) bool { return ok }, NewMemSequence(a, w))
	bb := NewBlackboard(nil)

	if got := r.Evaluate(ctxAt(bb, 0)); got != Running {
		t.Fatalf("got %s, want running", got)
	}
	ok = false
	if got := r.Evaluate(ctxAt(bb, 1)); got != Failure {
		t.Fatalf("got %s, want failure on interrupt", got)
	}
	if bb.Len() != 0 {
		t.Errorf("interrupt left memory: %v", bb.Keys())
	}
	ok = true
	r.Evaluate(ctxAt(bb, 2))
	if a.calls != 2 {
		t.Errorf("a calls = %d, want 2: interrupted sequence must restart", a.calls)
	}
}
