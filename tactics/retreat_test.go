package tactics

import (
	"testing"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

func withBase(x, y float64) *model.GameState {
	return &model.GameState{
		Player:    "A",
		MapWidth:  200,
		MapHeight: 200,
		Buildings: []model.Building{{ID: 100, Owner: "A", Type: "hq", X: x, Y: y, HP: 500, MaxHP: 500, Completed: true, Base: true}},
	}
}

func hurt(u model.Unit, hp int) model.Unit {
	u.HP = hp
	return u
}

func TestRetreatLifecycle(t *testing.T) {
	tn := config.Default()
	c := NewCoordinator(tn.Retreat, nil)
	gs := withBase(10, 50)

	u := hurt(ranged(1, 40, 50, 6), 20)
	tr := c.Update(0, "A", []model.Unit{u}, gs)
	if len(tr) != 1 || tr[0].To != Retreating {
		t.Fatalf("transitions = %+v, want one into retreating", tr)
	}
	o, _ := c.Order(1)
	if o.Rally.Dist(model.V(16, 50)) > 1e-9 {
		t.Errorf("rally = %v, want (16,50)", o.Rally)
	}
	if o.EarliestReengage != tn.Retreat.MinTicks {
		t.Errorf("earliest re-engage = %d, want %d", o.EarliestReengage, tn.Retreat.MinTicks)
	}

	// Still on the way.
	u.X = 30
	c.Update(10, "A", []model.Unit{u}, gs)
	if s := c.State(1); s != Retreating {
		t.Fatalf("state = %s, want retreating", s)
	}

	// Close to base: rally collapses onto it and the unit is within tolerance.
	u.X = 12
	c.Update(20, "A", []model.Unit{u}, gs)
	if s := c.State(1); s != Regrouping {
		t.Fatalf("state = %s, want regrouping", s)
	}

	// Fully healed but the floor has not passed.
	u.HP = 100
	for _, tick := range []int{30, 60, tn.Retreat.MinTicks - 1} {
		c.Update(tick, "A", []model.Unit{u}, gs)
		if s := c.State(1); s != Regrouping {
			t.Fatalf("tick %d: state = %s, re-engaged before the floor", tick, s)
		}
	}

	c.Update(tn.Retreat.MinTicks, "A", []model.Unit{u}, gs)
	if s := c.State(1); s != Reengaging {
		t.Fatalf("state = %s, want reengaging", s)
	}

	// Moving out past the re-engage distance drops the order.
	u.X = 40
	tr = c.Update(tn.Retreat.MinTicks+10, "A", []model.Unit{u}, gs)
	if _, ok := c.Order(1); ok {
		t.Error("re-engaging order should be dropped once away from the rally point")
	}
	if len(tr) != 1 || tr[0].From != Reengaging || tr[0].To != None {
		t.Errorf("transitions = %+v, want reengaging -> none", tr)
	}
}

func TestPersonalRallyForUnitAheadOfGroup(t *testing.T) {
	tn := config.Default()
	c := NewCoordinator(tn.Retreat, nil)
	gs := withBase(130, 100)

	front := hurt(ranged(1, 100, 100, 6), 20)
	rear := ranged(2, 20, 100, 6)
	c.Update(0, "A", []model.Unit{front, rear}, gs)

	if group, _ := c.Rally("A"); group != model.V(84, 100) {
		t.Fatalf("group rally = %v, want (84,100)", group)
	}
	o, ok := c.Order(1)
	if !ok || o.State != Retreating {
		t.Fatalf("order = %+v, want retreating", o)
	}
	if !o.Personal || o.Rally != model.V(124, 100) {
		t.Errorf("rally = %v (personal %v), want (124,100) from the unit's own position", o.Rally, o.Personal)
	}
	if c.State(2) != None {
		t.Errorf("healthy rear unit state = %s, want none", c.State(2))
	}

	// The group rally is recomputed every update but does not replace it.
	front.X = 110
	c.Update(4, "A", []model.Unit{front, rear}, gs)
	if o, _ := c.Order(1); o.Rally != model.V(124, 100) || o.State != Retreating {
		t.Errorf("order after update = %+v", o)
	}
	front.X = 122
	c.Update(8, "A", []model.Unit{front, rear}, gs)
	if s := c.State(1); s != Regrouping {
		t.Errorf("state = %s, want regrouping at its own rally", s)
	}
}

func TestRecoveryDelta(t *testing.T) {
	tn := config.Default()
	c := NewCoordinator(tn.Retreat, nil)
	gs := withBase(10, 50)

	u := hurt(ranged(1, 12, 50, 6), 10)
	c.Update(0, "A", []model.Unit{u}, gs)
	c.Update(1, "A", []model.Unit{u}, gs)
	if s := c.State(1); s != Regrouping {
		t.Fatalf("state = %s, want regrouping", s)
	}
	// 0.1 -> 0.4 recovers by more than the delta while still below HighHealth.
	u.HP = 40
	c.Update(tn.Retreat.MinTicks, "A", []model.Unit{u}, gs)
	if s := c.State(1); s != Reengaging {
		t.Errorf("state = %s, want reengaging after recovering by the delta", s)
	}
}

func TestGroupTriggers(t *testing.T) {
	tn := config.Default()
	gs := withBase(10, 50)

	t.Run("fraction retreating", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		members := []model.Unit{hurt(ranged(1, 60, 50, 6), 20), hurt(ranged(2, 62, 50, 6), 25), ranged(3, 64, 50, 6)}
		c.Update(0, "A", members, gs)
		for _, u := range members {
			if s := c.State(u.ID); s != Retreating {
				t.Errorf("unit %d state = %s, want retreating", u.ID, s)
			}
		}
	})

	t.Run("average health", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		var members []model.Unit
		for i := range 4 {
			members = append(members, hurt(ranged(i+1, 60, float64(50+i), 6), 32))
		}
		c.Update(0, "A", members, gs)
		st := c.GroupStatus("A", members)
		if st.Retreating != 4 {
			t.Errorf("status = %+v, want all four retreating", st)
		}
	})

	t.Run("healthy group stays", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		members := []model.Unit{hurt(ranged(1, 60, 50, 6), 20), ranged(2, 62, 50, 6), ranged(3, 64, 50, 6)}
		c.Update(0, "A", members, gs)
		if c.State(2) != None || c.State(3) != None {
			t.Error("one wounded unit should not pull the whole group back")
		}
	})
}

func TestGroupReengage(t *testing.T) {
	tn := config.Default()
	c := NewCoordinator(tn.Retreat, nil)
	gs := withBase(10, 50)

	// Both units at 50% so neither individual recovery rule fires.
	members := []model.Unit{hurt(ranged(1, 11, 50, 6), 50), hurt(ranged(2, 11, 51, 6), 50)}
	c.ForceGroupRetreat("A", members, gs, 0)
	c.Update(1, "A", members, gs)
	st := c.GroupStatus("A", members)
	if st.Regrouping != 2 || st.CanReengage {
		t.Fatalf("status = %+v, want two regrouping and no re-engage at 50%% health", st)
	}

	// Above ReengageHealth, below both individual recovery rules.
	for i := range members {
		members[i].HP = 65
	}
	c.Update(tn.Retreat.MinTicks-1, "A", members, gs)
	if st := c.GroupStatus("A", members); !st.CanReengage || st.Reengaging != 0 {
		t.Fatalf("status = %+v, want re-engage allowed but held by the floor", st)
	}
	c.Update(tn.Retreat.MinTicks, "A", members, gs)
	if st := c.GroupStatus("A", members); st.Reengaging != 2 {
		t.Errorf("status = %+v, want the group to re-engage together", st)
	}
}

func TestExpireAndRemove(t *testing.T) {
	tn := config.Default()
	c := NewCoordinator(tn.Retreat, nil)
	gs := withBase(10, 50)
	u := hurt(ranged(1, 150, 50, 6), 10)
	c.EnterRetreat(u, gs, 0)

	if tr := c.Expire(tn.Retreat.Duration - 1); len(tr) != 0 {
		t.Errorf("expired early: %+v", tr)
	}
	if tr := c.Expire(tn.Retreat.Duration + 40); len(tr) != 1 || tr[0].To != Regrouping {
		t.Errorf("Expire = %+v, want one move to regrouping", tr)
	}

	// The unit vanishes from the member list: its order goes with it.
	c.Update(tn.Retreat.Duration+41, "A", nil, gs)
	if _, ok := c.Order(1); ok {
		t.Error("order for a missing unit survived Update")
	}

	c.EnterRetreat(u, gs, 0)
	c.Remove(1)
	if c.State(1) != None {
		t.Error("Remove did not drop the order")
	}
}

func TestRallyPointFallbacks(t *testing.T) {
	tn := config.Default()

	t.Run("home base", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		p, src := c.RallyPoint("A", model.V(20, 50), withBase(10, 50))
		if src != RallyBase || p.Dist(model.V(10, 50)) > 1e-9 {
			t.Errorf("RallyPoint = %v (%s), want base itself when within distance", p, src)
		}
	})

	t.Run("safe direction", func(t *testing.T) {
		field := influence.New(200, 200, tn.Field)
		enemy := model.Unit{ID: 9, Owner: "B", X: 62, Y: 50, HP: 100, MaxHP: 100, Damage: 10, AttackSpeed: 1, Range: 5}
		friend := ranged(1, 50, 50, 6)
		field.Update([]model.Unit{enemy, friend}, nil, 0)

		c := NewCoordinator(tn.Retreat, field)
		centroid := model.V(50, 50)
		p, src := c.RallyPoint("A", centroid, &model.GameState{MapWidth: 200, MapHeight: 200})
		if src != RallySafeDir {
			t.Fatalf("source = %s, want safe_dir", src)
		}
		if p.X >= centroid.X || p.Dist(enemy.Pos()) <= centroid.Dist(enemy.Pos()) {
			t.Errorf("rally %v should lead away from the enemy", p)
		}
	})

	t.Run("default axis", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		gs := &model.GameState{MapWidth: 200, MapHeight: 200}
		if p, src := c.RallyPoint("A", model.V(50, 50), gs); src != RallyAxis || p != model.V(26, 50) {
			t.Errorf("RallyPoint = %v (%s), want (26,50) axis", p, src)
		}
		if p, _ := c.RallyPoint("A", model.V(5, 50), gs); p != model.V(0, 50) {
			t.Errorf("clamped rally = %v, want (0,50)", p)
		}
		if p, _ := c.RallyPoint("A", model.V(2, 50), gs); p != model.V(26, 50) {
			t.Errorf("rally at the map edge = %v, want flipped to (26,50)", p)
		}
	})

	t.Run("safer cell never leads away from base", func(t *testing.T) {
		field := influence.New(200, 200, tn.Field)
		enemy := model.Unit{ID: 9, Owner: "B", X: 6, Y: 50, HP: 100, MaxHP: 100, Damage: 50, AttackSpeed: 1, Range: 5}
		field.Update([]model.Unit{enemy}, nil, 0)

		// Without the base check the best cell is (18,50), farther out than
		// the group itself.
		if best, _, _ := field.FindBestArea(model.V(10, 50), 2*tn.Retreat.RallyTolerance, "A", tn.Retreat.Area); best != model.V(18, 50) {
			t.Fatalf("best area = %v, want (18,50)", best)
		}

		c := NewCoordinator(tn.Retreat, field)
		centroid := model.V(14, 50)
		p, src := c.RallyPoint("A", centroid, withBase(10, 50))
		if src != RallyBase || p != model.V(10, 50) {
			t.Errorf("RallyPoint = %v (%s), want the base itself", p, src)
		}
	})

	t.Run("snaps to choke", func(t *testing.T) {
		c := NewCoordinator(tn.Retreat, nil)
		c.SetPositions([]StrategicPosition{
			{ID: 0, Pos: model.V(18, 52), Category: Choke, Quality: 0.9},
			{ID: 1, Pos: model.V(16, 51), Category: Expansion, Quality: 1},
		})
		p, _ := c.RallyPoint("A", model.V(40, 50), withBase(10, 50))
		if p != model.V(18, 52) {
			t.Errorf("rally = %v, want snapped to the choke", p)
		}
	})
}
