package scheduler

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Action is what a worker decided for one unit.
type Action string

const (
	ActNone      Action = "none"
	ActAttack    Action = "attack"
	ActKite      Action = "kite"
	ActRetreat   Action = "retreat"
	ActTransform Action = "transform"
)

// Snapshot is the read-only world handed to a worker. It is plain data and
// shares nothing with scheduler state.
type Snapshot struct {
	ID             string           `json:"id"`
	Tick           int              `json:"tick"`
	Player         string           `json:"player"`
	Units          []model.Unit     `json:"units"`
	Enemies        []model.Unit     `json:"enemies"`
	EnemyBuildings []model.Building `json:"enemyBuildings"`
	Base           *model.Vec2      `json:"base,omitempty"`
	MapWidth       int              `json:"mapWidth"`
	MapHeight      int              `json:"mapHeight"`
}

type Decision struct {
	UnitID   int         `json:"unitId"`
	Action   Action      `json:"action"`
	TargetID int         `json:"targetId,omitempty"`
	Pos      *model.Vec2 `json:"pos,omitempty"`
	Mode     string      `json:"mode,omitempty"`
	Threat   float64     `json:"threat"`
}

// Batch answers one snapshot.
type Batch struct {
	SnapshotID string     `json:"snapshotId"`
	Tick       int        `json:"tick"`
	Decisions  []Decision `json:"decisions"`
}

// Worker decides off the simulation goroutine. Submit must not block;
// Latest returns the freshest finished batch, if any.
type Worker interface {
	Submit(Snapshot)
	Latest() (Batch, bool)
}

// NewSnapshot captures what a worker needs from gs for player's units.
func NewSnapshot(gs *model.GameState, units []model.Unit) Snapshot {
	snap := Snapshot{
		ID:             uuid.NewString(),
		Tick:           gs.Tick,
		Player:         gs.Player,
		Units:          slices.Clone(units),
		Enemies:        slices.Clone(gs.Enemies),
		EnemyBuildings: slices.Clone(gs.EnemyBuildings),
		MapWidth:       gs.MapWidth,
		MapHeight:      gs.MapHeight,
	}
	if base, ok := gs.HomeBase(); ok {
		snap.Base = &base
	}
	return snap
}

// LocalWorker runs Decide on its own goroutine. Snapshots and batches cross
// the goroutine boundary as framed envelopes, the same encoding a remote
// worker would receive, so neither side can hold a reference into the other.
type LocalWorker struct {
	mu      sync.Mutex
	tuning  config.Tuning
	pending []byte // latest encoded snapshot
	result  []byte // latest encoded batch
	ready   chan struct{}
	decided int
}

func NewLocalWorker(t config.Tuning) *LocalWorker {
	return &LocalWorker{tuning: t, ready: make(chan struct{}, 1)}
}

// Submit replaces any snapshot not yet picked up.
func (w *LocalWorker) Submit(snap Snapshot) {
	data, err := encode(ipc.TypeWorkerSnapshot, snap)
	if err != nil {
		slog.Error("worker snapshot encode failed", "tick", snap.Tick, "error", err)
		return
	}
	w.mu.Lock()
	w.pending = data
	w.mu.Unlock()

	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// Latest decodes the most recent batch.
func (w *LocalWorker) Latest() (Batch, bool) {
	w.mu.Lock()
	data := w.result
	w.mu.Unlock()
	if data == nil {
		return Batch{}, false
	}
	var b Batch
	if err := decode(data, ipc.TypeWorkerBatch, &b); err != nil {
		slog.Error("worker batch decode failed", "error", err)
		return Batch{}, false
	}
	return b, true
}

// Decided reports how many batches the worker has produced.
func (w *LocalWorker) Decided() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decided
}

// Start blocks until ctx is cancelled.
func (w *LocalWorker) Start(ctx context.Context) {
	slog.Info("decision worker started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("decision worker stopped")
			return
		case <-w.ready:
			w.run()
		}
	}
}

func (w *LocalWorker) run() {
	w.mu.Lock()
	data := w.pending
	w.pending = nil
	w.mu.Unlock()
	if data == nil {
		return
	}

	var snap Snapshot
	if err := decode(data, ipc.TypeWorkerSnapshot, &snap); err != nil {
		slog.Error("worker snapshot decode failed", "error", err)
		return
	}
	batch := Decide(snap, w.tuning)
	out, err := encode(ipc.TypeWorkerBatch, batch)
	if err != nil {
		slog.Error("worker batch encode failed", "tick", snap.Tick, "error", err)
		return
	}

	w.mu.Lock()
	w.result = out
	w.decided++
	w.mu.Unlock()
	slog.Debug("worker batch ready", "tick", snap.Tick, "decisions", len(batch.Decisions))
}

func encode(msgType string, v any) ([]byte, error) {
	env, err := ipc.NewEnvelope(msgType, v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := ipc.WriteEnvelope(&buf, env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, msgType string, v any) error {
	env, err := ipc.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if env.Type != msgType {
		return fmt.Errorf("unexpected envelope %q, want %q", env.Type, msgType)
	}
	return env.Decode(v)
}

// Decide is the worker's pure per-unit decision function. In priority order
// a unit retreats when badly hurt, kites a closing melee threat, switches
// mode, or attacks the weakest enemy in reach.
func Decide(snap Snapshot, t config.Tuning) Batch {
	b := Batch{SnapshotID: snap.ID, Tick: snap.Tick, Decisions: make([]Decision, 0, len(snap.Units))}
	for _, u := range snap.Units {
		d := Decision{UnitID: u.ID, Action: ActNone, Threat: localThreat(u, snap, t)}
		pos := u.Pos()
		melee, meleeDist := nearestEnemy(snap.Enemies, pos, func(e model.Unit) bool {
			return e.CanAttack() && !e.Flying && e.Range < t.Roles.ShortRange
		})

		switch {
		case u.HealthFraction() < t.Retreat.HealthThreshold:
			d.Action = ActRetreat
			if snap.Base != nil {
				d.Pos = snap.Base
			}
		case u.CanAttack() && u.Range > t.Roles.ShortRange && melee != nil && meleeDist < t.Kite.TriggerDistance:
			d.Action = ActKite
			d.TargetID = melee.ID
			away := awayFrom(pos, melee.Pos(), t.Kite.StepDistance, snap.MapWidth, snap.MapHeight)
			d.Pos = &away
		case u.Transformable && (u.Mode == "deployed") != (enemiesWithin(snap.Enemies, pos, t.Roles.LongRange+t.Focus.RangeSlack) > 0):
			d.Action = ActTransform
			d.Mode = toggleMode(u.Mode)
		case u.CanAttack() && engaged(u):
			if target, ok := weakestInReach(snap.Enemies, u, t.Focus.RangeSlack); ok {
				d.Action = ActAttack
				d.TargetID = target.ID
			}
		}
		b.Decisions = append(b.Decisions, d)
	}
	return b
}

// localThreat is enemy DPS within sight against the unit's own, in [0,1).
func localThreat(u model.Unit, snap Snapshot, t config.Tuning) float64 {
	sight := max(u.SightRange, t.Roles.LongRange)
	enemy := 0.0
	for _, e := range snap.Enemies {
		if e.Alive() && e.Pos().Dist(u.Pos()) <= sight {
			enemy += e.DPS()
		}
	}
	return enemy / (enemy + u.DPS() + t.Field.DangerConstant)
}

func nearestEnemy(enemies []model.Unit, p model.Vec2, keep func(model.Unit) bool) (*model.Unit, float64) {
	var best *model.Unit
	bestDist := math.Inf(1)
	for i := range enemies {
		e := &enemies[i]
		if !e.Alive() || !keep(*e) {
			continue
		}
		if d := e.Pos().Dist(p); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, bestDist
}

func enemiesWithin(enemies []model.Unit, p model.Vec2, r float64) int {
	n := 0
	for _, e := range enemies {
		if e.Alive() && e.Pos().Dist(p) <= r {
			n++
		}
	}
	return n
}

// weakestInReach picks the living enemy within range+slack with the lowest
// health fraction, nearest first on ties.
func weakestInReach(enemies []model.Unit, u model.Unit, slack float64) (model.Unit, bool) {
	var cands []model.Unit
	for _, e := range enemies {
		if e.Alive() && e.Pos().Dist(u.Pos()) <= u.Range+slack {
			cands = append(cands, e)
		}
	}
	if len(cands) == 0 {
		return model.Unit{}, false
	}
	p := u.Pos()
	return slices.MinFunc(cands, func(a, b model.Unit) int {
		return cmp.Or(
			cmp.Compare(a.HealthFraction(), b.HealthFraction()),
			cmp.Compare(a.Pos().Dist(p), b.Pos().Dist(p)),
			cmp.Compare(a.ID, b.ID),
		)
	}), true
}

// awayFrom steps dist from p directly away from threat, clamped to the map.
func awayFrom(p, threat model.Vec2, dist float64, mapW, mapH int) model.Vec2 {
	dir := p.Sub(threat).Norm()
	if dir.IsZero() {
		dir = model.Vec2{X: -1}
	}
	out := p.Add(dir.Scale(dist))
	if mapW > 0 && mapH > 0 {
		out = out.Clamp(float64(mapW), float64(mapH))
	}
	return out
}

func toggleMode(mode string) string {
	if mode == "deployed" {
		return "mobile"
	}
	return "deployed"
}
