package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

func TestDecide(t *testing.T) {
	tun := config.Default()
	base := model.V(20, 100)

	hurt := rifle(1, 100, 100)
	hurt.HP = 10
	mobile := rifle(1, 100, 100)
	mobile.Transformable, mobile.Mode, mobile.Range = true, "mobile", 10
	moving := rifle(1, 100, 100)
	moving.Activity = model.ActivityMoving

	tests := []struct {
		name       string
		unit       model.Unit
		enemies    []model.Unit
		wantAction Action
		wantTarget int
		wantPos    *model.Vec2
	}{
		{"badly hurt retreats to base", hurt, []model.Unit{hostile(50, 104, 100, 5, 100)}, ActRetreat, 0, &base},
		{"melee closing kites", rifle(1, 100, 100), []model.Unit{hostile(50, 102, 100, 1, 100)}, ActKite, 50, &model.Vec2{X: 97, Y: 100}},
		{"deploys with enemies near", mobile, []model.Unit{hostile(50, 108, 100, 5, 100)}, ActTransform, 0, nil},
		{"attacks weakest in reach", rifle(1, 100, 100), []model.Unit{
			hostile(60, 103, 100, 5, 90),
			hostile(61, 106, 100, 5, 40),
			hostile(62, 120, 100, 5, 10),
		}, ActAttack, 61, nil},
		{"moving unit holds focus", moving, []model.Unit{hostile(60, 103, 100, 5, 40)}, ActNone, 0, nil},
		{"nothing in reach", rifle(1, 100, 100), []model.Unit{hostile(50, 180, 100, 5, 100)}, ActNone, 0, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := Snapshot{ID: "s", Tick: 12, Player: "A", Units: []model.Unit{tc.unit}, Enemies: tc.enemies, Base: &base, MapWidth: 200, MapHeight: 200}
			b := Decide(snap, tun)
			if b.SnapshotID != "s" || b.Tick != 12 || len(b.Decisions) != 1 {
				t.Fatalf("batch = %+v", b)
			}
			d := b.Decisions[0]
			if d.Action != tc.wantAction || d.TargetID != tc.wantTarget {
				t.Errorf("decision = %+v, want %s on %d", d, tc.wantAction, tc.wantTarget)
			}
			if tc.wantPos != nil && (d.Pos == nil || *d.Pos != *tc.wantPos) {
				t.Errorf("pos = %v, want %v", d.Pos, *tc.wantPos)
			}
			if tc.wantAction == ActTransform && d.Mode != "deployed" {
				t.Errorf("mode = %q, want deployed", d.Mode)
			}
			if d.Threat < 0 || d.Threat >= 1 {
				t.Errorf("threat %.2f out of range", d.Threat)
			}
		})
	}
}

func TestLocalWorkerRoundTrip(t *testing.T) {
	w := NewLocalWorker(config.Default())
	if _, ok := w.Latest(); ok {
		t.Fatal("batch before any snapshot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	gs := kiteScene(8)
	snap := NewSnapshot(gs, gs.Units)
	w.Submit(snap)

	// Mutating the caller's state after Submit must not reach the worker.
	gs.Units[0].HP = 1

	deadline := time.Now().Add(2 * time.Second)
	var b Batch
	for {
		var ok bool
		if b, ok = w.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker produced no batch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if b.SnapshotID != snap.ID || b.Tick != 8 || w.Decided() != 1 {
		t.Fatalf("batch = %+v, decided = %d", b, w.Decided())
	}
	if len(b.Decisions) != 1 || b.Decisions[0].Action != ActKite {
		t.Errorf("decisions = %+v", b.Decisions)
	}
}
