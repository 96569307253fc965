package scheduler

import (
	"container/heap"
	"reflect"
	"testing"

	"github.com/nstehr/vimy/vimy-tactics/behavior"
	"github.com/nstehr/vimy/vimy-tactics/bt"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/session"
	"github.com/nstehr/vimy/vimy-tactics/tactics"
)

func newScheduler(t config.Tuning, lib *behavior.Library, opts ...Option) *Scheduler {
	field := influence.New(200, 200, t.Field)
	if lib == nil {
		lib = behavior.DefaultLibrary(t)
	}
	return New("A", field, session.New(), lib,
		tactics.NewCoordinator(t.Retreat, field), tactics.NewOrganizer(t.Formation, t.Roles), t, opts...)
}

func rifle(id int, x, y float64) model.Unit {
	return model.Unit{
		ID: id, Owner: "A", Type: "e3", X: x, Y: y, HP: 100, MaxHP: 100,
		Activity: model.ActivityAttacking, Damage: 10, AttackSpeed: 1, Range: 6, SightRange: 10,
	}
}

func hostile(id int, x, y, rng float64, hp int) model.Unit {
	return model.Unit{
		ID: id, Owner: "B", Type: "e1", X: x, Y: y, HP: hp, MaxHP: 100,
		Activity: model.ActivityAttacking, Damage: 5, AttackSpeed: 1, Range: rng,
	}
}

func snapshot(tick int, units, enemies []model.Unit) *model.GameState {
	return &model.GameState{Tick: tick, Player: "A", Units: units, Enemies: enemies, MapWidth: 200, MapHeight: 200}
}

func find(cmds []Command, kind Kind, unit int) (Command, bool) {
	for _, c := range cmds {
		if c.Kind == kind && c.UnitID == unit {
			return c, true
		}
	}
	return Command{}, false
}

func TestDelayQueueOrder(t *testing.T) {
	var q delayQueue
	for i, due := range []int{10, 5, 7, 5} {
		heap.Push(&q, delayed{cmd: Command{UnitID: i}, due: due, seq: i})
	}
	first := q.popDue(6)
	if len(first) != 2 || first[0].cmd.UnitID != 1 || first[1].cmd.UnitID != 3 {
		t.Fatalf("popDue(6) = %+v, want units 1 then 3", first)
	}
	// Catch-up: a late pass drains everything that came due meanwhile.
	rest := q.popDue(50)
	if len(rest) != 2 || rest[0].due != 7 || rest[1].due != 10 {
		t.Fatalf("popDue(50) = %+v", rest)
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty: %d", q.Len())
	}
}

func TestEvalInterval(t *testing.T) {
	s := newScheduler(config.Default(), nil)
	gs := snapshot(3, []model.Unit{rifle(1, 100, 100)}, []model.Unit{hostile(50, 102, 100, 1, 100)})
	if cmds := s.Tick(gs); cmds != nil {
		t.Errorf("off-interval tick emitted %v", cmds)
	}
	st := s.Stats()
	if st.Ticks != 1 || st.Passes != 0 || st.MicroStates != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestWoundedUnitRetreatsTowardBase(t *testing.T) {
	tests := []struct {
		name  string
		squad []model.Unit
	}{
		{"alone", nil},
		// The group centroid lies far behind the wounded unit, so a rally
		// taken from it would send the unit past the enemy and away from home.
		{"group trailing behind", []model.Unit{rifle(2, 20, 100)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tun := config.Default()
			s := newScheduler(tun, nil)

			u := rifle(1, 100, 100)
			u.HP = 20
			base := model.Building{ID: 100, Owner: "A", Type: "fact", X: 130, Y: 100, HP: 500, MaxHP: 500, Completed: true, Base: true}
			gs := snapshot(0, append([]model.Unit{u}, tc.squad...), []model.Unit{
				{ID: 50, Owner: "B", X: 101, Y: 101, HP: 100, MaxHP: 100, Damage: 20, AttackSpeed: 1, Range: 5},
				{ID: 51, Owner: "B", X: 101, Y: 101, HP: 100, MaxHP: 100, Damage: 20, AttackSpeed: 1, Range: 5},
				{ID: 52, Owner: "B", X: 101, Y: 101, HP: 100, MaxHP: 100, Damage: 20, AttackSpeed: 1, Range: 5},
			})
			gs.Buildings = []model.Building{base}

			cmds := s.Tick(gs)
			mv, ok := find(cmds, Move, 1)
			if !ok {
				t.Fatalf("no move issued: %+v", cmds)
			}
			if got, start := mv.Pos.Dist(base.Pos()), u.Pos().Dist(base.Pos()); got >= start {
				t.Errorf("move target %v is %.1f from base, unit was %.1f", mv.Pos, got, start)
			}
			if len(mv.Waypoints) == 0 {
				t.Error("retreat move has no path")
			}

			m, ok := s.Micro(1)
			if !ok {
				t.Fatal("micro state not created")
			}
			if m.ThreatScore <= tun.Scheduler.DangerThreshold {
				t.Errorf("threat score %.2f not above danger threshold", m.ThreatScore)
			}
			if !m.Retreating || m.RetreatEnd != tun.Retreat.Duration {
				t.Errorf("micro retreat = %v until %d", m.Retreating, m.RetreatEnd)
			}
			if s.Stats().Retreats != 1 {
				t.Errorf("Retreats = %d, want 1", s.Stats().Retreats)
			}

			// Still retreating on the next pass: no second order.
			gs.Tick = 4
			if _, ok := find(s.Tick(gs), Move, 1); ok {
				t.Error("retreat move reissued")
			}
		})
	}
}

func TestKiteQueuesReengage(t *testing.T) {
	tests := []struct {
		name      string
		targetHP  int
		wantCmds  int
		wantDrops int
	}{
		{"target alive", 100, 1, 0},
		{"target died meanwhile", 0, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newScheduler(config.Default(), nil)
			units := []model.Unit{rifle(1, 100, 100)}

			cmds := s.Tick(snapshot(0, units, []model.Unit{hostile(50, 102, 100, 1, 100)}))
			if len(cmds) != 1 {
				t.Fatalf("tick 0 commands = %+v, want one move", cmds)
			}
			if mv := cmds[0]; mv.Kind != Move || mv.Pos != model.V(97, 100) {
				t.Fatalf("kite move = %+v, want move to (97,100)", mv)
			}
			if s.Stats().Queued != 1 || s.Stats().Kites != 1 {
				t.Fatalf("stats = %+v", s.Stats())
			}

			// Stepping back at tick 4 with the re-engage still queued: no
			// focus order may cut the kite short.
			backing := rifle(1, 97, 100)
			backing.Activity = model.ActivityMoving
			if cmds := s.Tick(snapshot(4, []model.Unit{backing}, []model.Unit{hostile(50, 102, 100, 1, 100)})); len(cmds) != 0 {
				t.Fatalf("tick 4 commands = %+v, want none while kiting", cmds)
			}

			// The re-engage order came due at tick 6; the pass at 8 catches up.
			cmds = s.Tick(snapshot(8, units, []model.Unit{hostile(50, 102, 100, 1, tc.targetHP)}))
			if len(cmds) != tc.wantCmds {
				t.Fatalf("tick 8 commands = %+v, want %d", cmds, tc.wantCmds)
			}
			if tc.wantCmds > 0 {
				if at := cmds[0]; at.Kind != Attack || at.TargetID != 50 || at.Tick != 8 {
					t.Errorf("re-engage = %+v", at)
				}
			}
			if st := s.Stats(); st.Dropped != tc.wantDrops || st.Queued != 0 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}

func TestFocusFire(t *testing.T) {
	tests := []struct {
		name       string
		current    int // hp of target 50
		candidate  int // hp of enemy 51
		wantTarget int
		wantCmd    bool
	}{
		{"switch to much weaker", 90, 50, 51, true},
		{"candidate not weaker enough", 90, 80, 50, false},
		{"keep critical target", 20, 5, 50, false},
		{"reacquire when target dead", 0, 60, 51, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newScheduler(config.Default(), nil)
			u := rifle(1, 100, 100)
			u.TargetID = 50
			m := newMicro(1, nil, 0)
			m.Target = 50
			s.micro[1] = m

			gs := snapshot(0, []model.Unit{u}, []model.Unit{
				hostile(50, 104, 100, 5, tc.current),
				hostile(51, 103, 103, 5, tc.candidate),
			})
			cmd, ok := s.focus(u, m, gs)
			if ok != tc.wantCmd {
				t.Fatalf("focus emitted = %v (%+v), want %v", ok, cmd, tc.wantCmd)
			}
			if ok && (cmd.Kind != Attack || cmd.TargetID != tc.wantTarget) {
				t.Errorf("command = %+v, want attack on %d", cmd, tc.wantTarget)
			}
			if m.Target != tc.wantTarget {
				t.Errorf("cached target = %d, want %d", m.Target, tc.wantTarget)
			}
		})
	}
}

func TestPanicIsolatedToUnit(t *testing.T) {
	lib := behavior.NewLibrary()
	lib.Add(behavior.DefaultTree, bt.NewTree("fragile", bt.NewAction("engage-or-die", func(ctx *bt.Context) bt.Status {
		if ctx.EntityID == 1 {
			panic("corrupt unit")
		}
		ctx.BB.Set(behavior.KeyIntent, behavior.IntentEngage)
		return bt.Success
	})))
	s := newScheduler(config.Default(), lib)

	cmds := s.Tick(snapshot(0,
		[]model.Unit{rifle(1, 100, 100), rifle(2, 100, 104)},
		[]model.Unit{hostile(50, 100, 109, 5, 100)},
	))
	if _, ok := find(cmds, Attack, 2); !ok {
		t.Errorf("unit 2 not evaluated after unit 1 panicked: %+v", cmds)
	}
	if _, ok := find(cmds, Attack, 1); ok {
		t.Error("panicking unit emitted a command")
	}
	if st := s.Stats(); st.Panics != 1 || st.Evaluations != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMicroStateLifecycle(t *testing.T) {
	s := newScheduler(config.Default(), nil)
	enemies := []model.Unit{hostile(50, 150, 150, 5, 100)}

	s.Tick(snapshot(0, []model.Unit{rifle(1, 100, 100), rifle(2, 90, 100)}, enemies))
	if s.Stats().MicroStates != 2 {
		t.Fatalf("MicroStates = %d, want 2", s.Stats().MicroStates)
	}

	s.Tick(snapshot(4, []model.Unit{rifle(2, 90, 100)}, enemies))
	if _, ok := s.Micro(1); ok {
		t.Error("micro state for vanished unit kept")
	}

	s.OnUnitRemoved(2)
	if s.Stats().MicroStates != 0 {
		t.Errorf("MicroStates = %d after removal", s.Stats().MicroStates)
	}
}

func TestFormationRecommendation(t *testing.T) {
	s := newScheduler(config.Default(), nil)
	a, b := rifle(1, 40, 50), rifle(2, 60, 50)
	a.Activity, b.Activity = model.ActivityIdle, model.ActivityIdle
	gs := snapshot(0, []model.Unit{a, b}, []model.Unit{
		{ID: 70, Owner: "B", Type: "v2rl", X: 150, Y: 50, HP: 100, MaxHP: 100, Damage: 5, AttackSpeed: 1, Range: 12},
		{ID: 71, Owner: "B", Type: "v2rl", X: 150, Y: 56, HP: 100, MaxHP: 100, Damage: 5, AttackSpeed: 1, Range: 12},
	})

	cmds := s.Tick(gs)
	n := 0
	for _, c := range cmds {
		if c.Kind == Formation {
			n++
			if c.GroupID != "A/army-1" {
				t.Errorf("group id = %q", c.GroupID)
			}
		}
	}
	if n != 2 {
		t.Fatalf("formation commands = %d, want 2: %+v", n, cmds)
	}
	if got := bt.ValueOr(s.session.Faction("A"), KeyFormation, ""); got != string(tactics.Spread) {
		t.Errorf("recommended formation = %q, want spread against siege", got)
	}
	if k, ok := session.CachedAs[tactics.Kind](s.session, "A", session.Recommendation, 0); !ok || k != tactics.Spread {
		t.Errorf("cached recommendation = %v, %v", k, ok)
	}

	gs.Tick = 4
	for _, c := range s.Tick(gs) {
		if c.Kind == Formation {
			t.Fatal("formation reissued before its interval")
		}
	}
}

type fakeWorker struct {
	batch     *Batch
	submitted []Snapshot
}

func (f *fakeWorker) Submit(s Snapshot) { f.submitted = append(f.submitted, s) }

func (f *fakeWorker) Latest() (Batch, bool) {
	if f.batch == nil {
		return Batch{}, false
	}
	return *f.batch, true
}

func kiteScene(tick int) *model.GameState {
	return snapshot(tick, []model.Unit{rifle(1, 100, 100)}, []model.Unit{hostile(50, 102, 100, 1, 100)})
}

func TestWorkerNoneBatchIsIdempotent(t *testing.T) {
	batch := Batch{SnapshotID: "b1", Decisions: []Decision{{UnitID: 1, Action: ActNone, Threat: 0.9}}}
	w := &fakeWorker{batch: &batch}
	s := newScheduler(config.Default(), nil, WithWorker(w))

	gs := kiteScene(0)
	if cmds := s.Tick(gs); len(cmds) != 0 {
		t.Fatalf("none batch produced commands: %+v", cmds)
	}
	if len(w.submitted) != 1 || len(w.submitted[0].Units) != 1 || len(w.submitted[0].Enemies) != 1 {
		t.Fatalf("submitted = %+v", w.submitted)
	}

	before, _ := s.Micro(1)
	if before.LastKite != never || before.Target != 0 {
		t.Errorf("micro state touched by none decision: %+v", before)
	}
	statsBefore := s.Stats()
	if cmds := s.applyBatch(gs, batch); len(cmds) != 0 {
		t.Fatalf("re-applying produced %+v", cmds)
	}
	after, _ := s.Micro(1)
	if after != before || s.Stats() != statsBefore {
		t.Errorf("state changed on re-apply:\n%+v\n%+v", before, after)
	}
}

func TestWorkerMatchesSyncPath(t *testing.T) {
	tun := config.Default()
	sync := newScheduler(tun, nil)
	want := sync.Tick(kiteScene(0))

	gs := kiteScene(0)
	batch := Decide(NewSnapshot(gs, gs.Units), tun)
	async := newScheduler(tun, nil, WithWorker(&fakeWorker{batch: &batch}))
	got := async.Tick(gs)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("worker path = %+v\nsync path = %+v", got, want)
	}
	if async.Stats().Queued != sync.Stats().Queued {
		t.Errorf("queued %d vs %d", async.Stats().Queued, sync.Stats().Queued)
	}
}

func TestWorkerStaleness(t *testing.T) {
	batch := Batch{SnapshotID: "old", Tick: 0, Decisions: []Decision{{UnitID: 1, Action: ActKite, TargetID: 50}}}
	s := newScheduler(config.Default(), nil, WithWorker(&fakeWorker{batch: &batch}))

	if cmds := s.Tick(kiteScene(20)); len(cmds) != 0 {
		t.Fatalf("stale batch applied: %+v", cmds)
	}
	if st := s.Stats(); st.StaleBatches != 1 || st.WorkerBatches != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestWorkerFallback(t *testing.T) {
	tun := config.Default()
	w := &fakeWorker{}
	s := newScheduler(tun, nil, WithWorker(w))

	for tick := 0; tick <= tun.Worker.Timeout; tick += tun.Scheduler.EvalInterval {
		if cmds := s.Tick(kiteScene(tick)); len(cmds) != 0 {
			t.Fatalf("tick %d: commands without a worker batch: %+v", tick, cmds)
		}
	}
	if !s.Degraded() || s.Stats().Fallbacks != 1 {
		t.Fatalf("degraded = %v, stats = %+v", s.Degraded(), s.Stats())
	}

	next := tun.Worker.Timeout + tun.Scheduler.EvalInterval
	if cmds := s.Tick(kiteScene(next)); len(cmds) == 0 {
		t.Error("synchronous fallback issued nothing")
	}

	w.batch = &Batch{SnapshotID: "late", Tick: next}
	s.Tick(kiteScene(next + tun.Scheduler.EvalInterval))
	if s.Degraded() {
		t.Error("worker not re-adopted after answering")
	}
	if s.Stats().Fallbacks != 1 {
		t.Errorf("Fallbacks = %d", s.Stats().Fallbacks)
	}
}

func TestForceRetreat(t *testing.T) {
	tun := config.Default()
	s := newScheduler(tun, nil)

	base := model.Building{ID: 100, Owner: "A", Type: "fact", X: 60, Y: 100, HP: 500, MaxHP: 500, Completed: true, Base: true}
	gs := snapshot(20, []model.Unit{rifle(1, 100, 100), rifle(2, 104, 100)}, []model.Unit{hostile(50, 140, 100, 5, 100)})
	gs.Buildings = []model.Building{base}

	cmds := s.ForceRetreat(gs)
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2: %+v", len(cmds), cmds)
	}
	for _, c := range cmds {
		if c.Kind != Move || c.Tick != 20 || c.Pos.X >= 100 {
			t.Errorf("command = %+v, want move back toward base", c)
		}
	}
	if s.Stats().Retreats != 2 {
		t.Errorf("retreats = %d, want 2", s.Stats().Retreats)
	}

	// Units already falling back are left alone.
	if again := s.ForceRetreat(gs); again != nil {
		t.Errorf("second call emitted %+v", again)
	}
}
