// Package scheduler drives the tactical core once per qualifying simulation
// tick: it rebuilds the threat field on its cadence, evaluates every combat
// unit's behavior tree, runs group coordination, and turns the results into
// commands. It never mutates game state.
package scheduler

import (
	"container/heap"
	"log/slog"

	"github.com/nstehr/vimy/vimy-tactics/behavior"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/session"
	"github.com/nstehr/vimy/vimy-tactics/tactics"
)

// Faction blackboard keys written by the scheduler for the trees.
const (
	KeyThreatGap  = "threat_gap"
	KeyFormation  = "formation"
	KeyEnemyCount = "enemy_count"
	KeySiegeShare = "enemy_siege_share"
)

// Stats are cumulative counters since construction.
type Stats struct {
	Ticks         int `json:"ticks"`
	Passes        int `json:"passes"`
	Evaluations   int `json:"evaluations"`
	Commands      int `json:"commands"`
	Kites         int `json:"kites"`
	Retreats      int `json:"retreats"`
	FocusSwitches int `json:"focusSwitches"`
	Transforms    int `json:"transforms"`
	Formations    int `json:"formations"`
	Dropped       int `json:"dropped"`
	Panics        int `json:"panics"`
	WorkerBatches int `json:"workerBatches"`
	StaleBatches  int `json:"staleBatches"`
	Fallbacks     int `json:"fallbacks"`
	MicroStates   int `json:"microStates"`
	Queued        int `json:"queued"`
}

type Option func(*Scheduler)

// WithWorker delegates per-unit decisions to w. The scheduler falls back to
// synchronous decisions whenever w stops answering.
func WithWorker(w Worker) Option {
	return func(s *Scheduler) { s.worker = w }
}

// Scheduler is one AI player's tick driver. Not safe for concurrent use; it
// belongs to the simulation goroutine.
type Scheduler struct {
	player  string
	field   *influence.Field
	session *session.Session
	library *behavior.Library
	coord   *tactics.Coordinator
	org     *tactics.Organizer
	tuning  config.Tuning

	micro map[int]*MicroState
	queue delayQueue
	seq   int

	lastField     int
	lastFormation int
	lastDiag      int

	worker    Worker
	lastHeard int // tick the worker last delivered a new batch
	applied   string
	degraded  bool

	stats Stats
}

func New(player string, field *influence.Field, sess *session.Session, lib *behavior.Library,
	coord *tactics.Coordinator, org *tactics.Organizer, t config.Tuning, opts ...Option) *Scheduler {
	t.Validate()
	s := &Scheduler{
		player:        player,
		field:         field,
		session:       sess,
		library:       lib,
		coord:         coord,
		org:           org,
		tuning:        t,
		micro:         make(map[int]*MicroState),
		lastField:     never,
		lastFormation: never,
		lastDiag:      never,
		lastHeard:     never,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Player() string { return s.player }

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.MicroStates = len(s.micro)
	st.Queued = s.queue.Len()
	return st
}

// Micro returns a copy of a unit's micro-state.
func (s *Scheduler) Micro(id int) (MicroState, bool) {
	m, ok := s.micro[id]
	if !ok {
		return MicroState{}, false
	}
	return *m, true
}

// Degraded reports whether the worker was given up on.
func (s *Scheduler) Degraded() bool { return s.degraded }

// OnUnitRemoved releases everything held for a dead or removed unit.
func (s *Scheduler) OnUnitRemoved(id int) {
	delete(s.micro, id)
	s.coord.Remove(id)
	s.org.Remove(id)
}

// ForceRetreat pulls the whole army back to the rally point, for instance
// after it has been badly mauled. Members already retreating or regrouping
// keep their orders; everyone else gets a retreat move.
func (s *Scheduler) ForceRetreat(gs *model.GameState) []Command {
	members := s.members(gs)
	before := make(map[int]tactics.State, len(members))
	for _, u := range members {
		before[u.ID] = s.coord.State(u.ID)
	}
	n := s.coord.ForceGroupRetreat(s.player, members, gs, gs.Tick)
	if n == 0 {
		return nil
	}

	var out []Command
	for _, u := range members {
		if prev := before[u.ID]; prev == tactics.Retreating || prev == tactics.Regrouping {
			continue
		}
		o, ok := s.coord.Order(u.ID)
		if !ok || o.State != tactics.Retreating {
			continue
		}
		if m, ok := s.micro[u.ID]; ok {
			m.Retreating = true
			m.RetreatEnd = o.Start + s.tuning.Retreat.Duration
		}
		s.stats.Retreats++
		out = append(out, s.retreatMove(u, o.Rally, gs.Tick))
	}
	slog.Info("army retreat forced", "player", s.player, "units", len(out), "tick", gs.Tick)
	s.stats.Commands += len(out)
	return out
}

// Tick runs one scheduling pass when gs.Tick falls on the evaluation
// interval and returns the commands to apply, in emission order.
func (s *Scheduler) Tick(gs *model.GameState) []Command {
	s.stats.Ticks++
	tick := gs.Tick
	if tick%s.tuning.Scheduler.EvalInterval != 0 {
		return nil
	}
	s.stats.Passes++

	out := s.drain(gs)
	s.expire(tick)

	if elapsed(tick, s.lastField, s.tuning.Scheduler.FieldInterval) {
		s.field.Update(gs.AllUnits(), gs.AllBuildings(), tick)
		s.lastField = tick
	}

	members := s.members(gs)
	s.prune(members)
	out = append(out, s.coordinate(gs, members)...)

	if elapsed(tick, s.lastFormation, s.tuning.Scheduler.FormationInterval) {
		out = append(out, s.formations(gs, members)...)
		s.lastFormation = tick
	}

	useWorker := s.worker != nil && !s.degraded
	for _, u := range members {
		if !u.InCombat() {
			continue
		}
		out = append(out, s.step(gs, u, !useWorker)...)
	}
	if s.worker != nil {
		out = append(out, s.poll(gs, members, useWorker)...)
	}

	s.logDiagnostics(tick)
	s.stats.Commands += len(out)
	return out
}

// members are the player's living non-worker units, in snapshot order.
func (s *Scheduler) members(gs *model.GameState) []model.Unit {
	var out []model.Unit
	for _, u := range gs.Units {
		if u.Alive() && !u.Worker {
			out = append(out, u)
		}
	}
	return out
}

func (s *Scheduler) prune(members []model.Unit) {
	present := make(map[int]bool, len(members))
	for _, u := range members {
		present[u.ID] = true
	}
	for id := range s.micro {
		if !present[id] {
			slog.Debug("micro state released", "unit", id)
			s.OnUnitRemoved(id)
		}
	}
}

func (s *Scheduler) enqueue(cmd Command, due int) {
	s.seq++
	heap.Push(&s.queue, delayed{cmd: cmd, due: due, seq: s.seq})
}

// drain releases queued commands that are due. Commands whose unit or
// target is gone are dropped without error.
func (s *Scheduler) drain(gs *model.GameState) []Command {
	var out []Command
	for _, d := range s.queue.popDue(gs.Tick) {
		cmd := d.cmd
		if _, ok := ownUnit(gs, cmd.UnitID); !ok || (cmd.TargetID != 0 && !gs.Exists(cmd.TargetID)) {
			s.stats.Dropped++
			slog.Debug("queued command dropped", "kind", cmd.Kind, "unit", cmd.UnitID, "target", cmd.TargetID, "due", d.due)
			continue
		}
		if m, ok := s.micro[cmd.UnitID]; ok && cmd.Kind == Attack {
			m.Target = cmd.TargetID
		}
		cmd.Tick = gs.Tick
		out = append(out, cmd)
	}
	return out
}

// expire ends retreat timers that have run out, however many ticks late.
func (s *Scheduler) expire(tick int) {
	for _, t := range s.coord.Expire(tick) {
		if m, ok := s.micro[t.UnitID]; ok {
			m.Retreating = false
		}
		slog.Debug("retreat timer expired", "unit", t.UnitID, "tick", tick)
	}
}

// coordinate runs group retreat coordination and issues the movement each
// transition implies.
func (s *Scheduler) coordinate(gs *model.GameState, members []model.Unit) []Command {
	tick := gs.Tick
	byID := make(map[int]model.Unit, len(members))
	for _, u := range members {
		byID[u.ID] = u
	}

	var out []Command
	for _, t := range s.coord.Update(tick, s.player, members, gs) {
		u := byID[t.UnitID]
		m := s.micro[t.UnitID]
		switch t.To {
		case tactics.Retreating:
			o, _ := s.coord.Order(t.UnitID)
			if m != nil {
				m.Retreating = true
				m.RetreatEnd = o.Start + s.tuning.Retreat.Duration
			}
			s.stats.Retreats++
			out = append(out, s.retreatMove(u, o.Rally, tick))
		case tactics.Reengaging:
			if m != nil {
				m.Retreating = false
			}
			if e, _ := nearestEnemy(gs.Enemies, u.Pos(), func(model.Unit) bool { return true }); e != nil {
				out = append(out, s.attack(u, *e, tick))
			}
		default:
			if m != nil {
				m.Retreating = false
			}
		}
	}
	return out
}

// formations refreshes the army group and moves idle members into their
// slots. Retreating members are left to the coordinator.
func (s *Scheduler) formations(gs *model.GameState, members []model.Unit) []Command {
	kind := s.recommend(gs, members)
	var enemies []model.Vec2
	for _, e := range gs.Enemies {
		if e.Alive() {
			enemies = append(enemies, e.Pos())
		}
	}
	g := s.org.Organize(s.player, members, model.Centroid(enemies), len(enemies) > 0, kind, gs.Tick)
	if g == nil {
		return nil
	}

	var out []Command
	for _, u := range members {
		if u.Activity != model.ActivityIdle && u.Activity != "" {
			continue
		}
		if st := s.coord.State(u.ID); st == tactics.Retreating || st == tactics.Regrouping {
			continue
		}
		slot, ok := g.SlotFor(u.ID)
		if !ok || slot.Pos.Dist(u.Pos()) < s.tuning.Formation.Spacing/2 {
			continue
		}
		out = append(out, Command{
			Kind:    Formation,
			Tick:    gs.Tick,
			Player:  s.player,
			UnitID:  u.ID,
			Pos:     slot.Pos,
			GroupID: g.ID,
		})
	}
	s.stats.Formations += len(out)
	return out
}

type composition map[model.Role]int

// recommend picks a formation from the cached enemy composition and threat
// gap: spread out against siege, box up when outgunned, arc otherwise.
func (s *Scheduler) recommend(gs *model.GameState, members []model.Unit) tactics.Kind {
	tick, ttl := gs.Tick, s.tuning.Scheduler.CacheTTL
	if k, ok := session.CachedAs[tactics.Kind](s.session, s.player, session.Recommendation, tick); ok {
		return k
	}

	comp, ok := session.CachedAs[composition](s.session, s.player, session.Composition, tick)
	if !ok {
		comp = make(composition)
		for _, e := range gs.Enemies {
			if e.Alive() {
				comp[model.ClassifyRole(e, s.tuning.Roles.ShortRange, s.tuning.Roles.LongRange)]++
			}
		}
		s.session.Store(s.player, session.Composition, tick, ttl, comp)
	}

	gap, ok := session.CachedAs[float64](s.session, s.player, session.ThreatGap, tick)
	if !ok {
		gap = totalDPS(members) - totalDPS(gs.Enemies)
		s.session.Store(s.player, session.ThreatGap, tick, ttl, gap)
	}

	total := 0
	for _, n := range comp {
		total += n
	}
	siege := 0.0
	if total > 0 {
		siege = float64(comp[model.RoleSiege]) / float64(total)
	}

	kind := tactics.Arc
	switch {
	case siege >= 0.3:
		kind = tactics.Spread
	case gap < 0:
		kind = tactics.Box
	}
	s.session.Store(s.player, session.Recommendation, tick, ttl, kind)

	bb := s.session.Faction(s.player)
	bb.Set(KeyThreatGap, gap)
	bb.Set(KeyFormation, string(kind))
	bb.Set(KeyEnemyCount, total)
	bb.Set(KeySiegeShare, siege)
	return kind
}

func totalDPS(units []model.Unit) float64 {
	sum := 0.0
	for _, u := range units {
		if u.Alive() {
			sum += u.DPS()
		}
	}
	return sum
}

func (s *Scheduler) microFor(u model.Unit, tick int) *MicroState {
	if m, ok := s.micro[u.ID]; ok {
		return m
	}
	role := model.ClassifyRole(u, s.tuning.Roles.ShortRange, s.tuning.Roles.LongRange)
	tree := s.library.For(role)
	if tree == nil {
		return nil
	}
	m := newMicro(u.ID, tree.NewInstance(s.session.Faction(s.player)), tick)
	s.micro[u.ID] = m
	slog.Debug("micro state created", "unit", u.ID, "role", role, "tree", tree.Name, "tick", tick)
	return m
}

// step evaluates one unit. When act is false the tree still runs for its own
// bookkeeping but its requests are left to the worker. A panic is contained
// to the unit.
func (s *Scheduler) step(gs *model.GameState, u model.Unit, act bool) (cmds []Command) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.Panics++
			slog.Error("unit micro step panicked", "unit", u.ID, "tick", gs.Tick, "panic", r)
			cmds = nil
		}
	}()

	tick := gs.Tick
	m := s.microFor(u, tick)
	if m == nil {
		return nil
	}
	if elapsed(tick, m.LastThreat, s.tuning.Scheduler.ThreatInterval) {
		m.Threat = s.field.QueryThreat(u.X, u.Y, s.player)
		m.ThreatScore = m.Threat.Danger
		m.LastThreat = tick
	}

	st := s.coord.State(u.ID)
	retreating := st == tactics.Retreating || st == tactics.Regrouping
	m.Retreating = st == tactics.Retreating
	if o, ok := s.coord.Order(u.ID); ok && m.Retreating {
		m.RetreatEnd = o.Start + s.tuning.Retreat.Duration
	}
	view := &behavior.View{
		Self:       u,
		State:      gs,
		Threat:     m.Threat,
		Role:       model.ClassifyRole(u, s.tuning.Roles.ShortRange, s.tuning.Roles.LongRange),
		Tuning:     &s.tuning,
		Retreating: retreating,
	}
	dt := float64(s.tuning.Scheduler.EvalInterval)
	if m.LastEval != never {
		dt = float64(tick - m.LastEval)
	}
	m.Tree.Tick(u.ID, view, tick, dt)
	m.LastEval = tick
	s.stats.Evaluations++

	if !act || retreating {
		return nil
	}

	req := behavior.ReadRequests(m.Tree.BB)
	if req.Retreat {
		if cmd, ok := s.retreat(u, gs); ok {
			cmds = append(cmds, cmd)
		}
		return cmds
	}
	if req.Kite {
		if threat, _ := nearestEnemy(gs.Enemies, u.Pos(), s.isMelee); threat != nil {
			cmds = append(cmds, s.kite(u, m, *threat, gs)...)
		}
	}
	if req.Transform {
		if cmd, ok := s.transform(u, m, "", tick); ok {
			cmds = append(cmds, cmd)
		}
	}
	if !req.Kite && req.Intent != behavior.IntentHold && engaged(u) && !s.queue.pending(u.ID) {
		if cmd, ok := s.focus(u, m, gs); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// engaged reports whether u is fighting rather than travelling. A unit
// stepping back from a kite reports moving until its re-engage comes due.
func engaged(u model.Unit) bool {
	return u.Activity == model.ActivityAttacking || u.Activity == model.ActivityAttackMoving
}

func (s *Scheduler) isMelee(e model.Unit) bool {
	return e.CanAttack() && !e.Flying && e.Range < s.tuning.Roles.ShortRange
}

// retreat hands u to the coordinator and issues the move only when the
// retreat is new.
func (s *Scheduler) retreat(u model.Unit, gs *model.GameState) (Command, bool) {
	prev := s.coord.State(u.ID)
	o := s.coord.EnterRetreat(u, gs, gs.Tick)
	if prev == tactics.Retreating || prev == tactics.Regrouping {
		return Command{}, false
	}
	if m, ok := s.micro[u.ID]; ok {
		m.Retreating = true
		m.RetreatEnd = o.Start + s.tuning.Retreat.Duration
	}
	s.stats.Retreats++
	return s.retreatMove(u, o.Rally, gs.Tick), true
}

func (s *Scheduler) retreatMove(u model.Unit, rally model.Vec2, tick int) Command {
	return Command{
		Kind:      Move,
		Tick:      tick,
		Player:    s.player,
		UnitID:    u.ID,
		Pos:       rally,
		Waypoints: s.field.FindThreatAwarePath(u.Pos(), rally, s.player, s.tuning.Retreat.Aversion),
	}
}

// kite steps u away from threat and queues a re-engage order on its current
// target, or on the threat when it has none.
func (s *Scheduler) kite(u model.Unit, m *MicroState, threat model.Unit, gs *model.GameState) []Command {
	tick := gs.Tick
	if !elapsed(tick, m.LastKite, s.tuning.Kite.Cooldown) {
		return nil
	}
	m.LastKite = tick
	s.stats.Kites++

	dest := awayFrom(u.Pos(), threat.Pos(), s.tuning.Kite.StepDistance, gs.MapWidth, gs.MapHeight)
	target := threat.ID
	if e, ok := enemyUnit(gs, m.Target); ok {
		target = e.ID
	}
	s.enqueue(Command{Kind: Attack, Player: s.player, UnitID: u.ID, TargetID: target}, tick+s.tuning.Kite.ReengageDelay)
	slog.Debug("kiting", "unit", u.ID, "threat", threat.ID, "reengage", target, "tick", tick)
	return []Command{{Kind: Move, Tick: tick, Player: s.player, UnitID: u.ID, Pos: dest}}
}

// transform switches u's mode; an empty mode toggles.
func (s *Scheduler) transform(u model.Unit, m *MicroState, mode string, tick int) (Command, bool) {
	if !u.Transformable || !elapsed(tick, m.LastTransform, s.tuning.Scheduler.TransformInterval) {
		return Command{}, false
	}
	if mode == "" {
		mode = toggleMode(u.Mode)
	}
	if mode == u.Mode {
		return Command{}, false
	}
	m.LastTransform = tick
	s.stats.Transforms++
	return Command{Kind: Transform, Tick: tick, Player: s.player, UnitID: u.ID, Mode: mode}, true
}

func (s *Scheduler) attack(u model.Unit, target model.Unit, tick int) Command {
	if m, ok := s.micro[u.ID]; ok {
		m.Target = target.ID
	}
	return Command{Kind: Attack, Tick: tick, Player: s.player, UnitID: u.ID, TargetID: target.ID}
}

// focus keeps u on its target unless a candidate in reach is weaker by at
// least SwitchMargin. A target already below CriticalHealth is never
// abandoned while it lives.
func (s *Scheduler) focus(u model.Unit, m *MicroState, gs *model.GameState) (Command, bool) {
	if !u.CanAttack() {
		return Command{}, false
	}
	cur := m.Target
	if cur == 0 {
		cur = u.TargetID
	}
	best, ok := weakestInReach(gs.Enemies, u, s.tuning.Focus.RangeSlack)
	current, alive := enemyUnit(gs, cur)

	switch {
	case !alive:
		m.Target = 0
		if !ok {
			return Command{}, false
		}
	case current.HealthFraction() < s.tuning.Focus.CriticalHealth:
		m.Target = current.ID
		return Command{}, false
	case !ok || best.ID == current.ID || best.HealthFraction() >= current.HealthFraction()-s.tuning.Focus.SwitchMargin:
		m.Target = current.ID
		return Command{}, false
	default:
		s.stats.FocusSwitches++
		slog.Debug("focus switch", "unit", u.ID, "from", current.ID, "to", best.ID, "tick", gs.Tick)
	}
	if best.ID == u.TargetID && u.Activity == model.ActivityAttacking {
		m.Target = best.ID
		return Command{}, false
	}
	return s.attack(u, best, gs.Tick), true
}

// poll exchanges snapshots and batches with the worker. A new batch is
// applied once if it is fresh enough and apply is set; a worker silent for
// Timeout ticks is abandoned until it answers again.
func (s *Scheduler) poll(gs *model.GameState, members []model.Unit, apply bool) []Command {
	tick := gs.Tick
	cfg := s.tuning.Worker
	if s.lastHeard == never {
		s.lastHeard = tick
	}

	var out []Command
	if b, ok := s.worker.Latest(); ok && b.SnapshotID != s.applied {
		s.applied = b.SnapshotID
		s.lastHeard = tick
		s.stats.WorkerBatches++
		if s.degraded {
			s.degraded = false
			slog.Info("decision worker recovered", "player", s.player, "tick", tick)
		}
		if tick-b.Tick > cfg.Staleness {
			s.stats.StaleBatches++
			slog.Warn("stale worker batch discarded", "batchTick", b.Tick, "tick", tick)
		} else if apply {
			out = s.applyBatch(gs, b)
		}
	}

	if !s.degraded && tick-s.lastHeard >= cfg.Timeout {
		s.degraded = true
		s.stats.Fallbacks++
		slog.Warn("decision worker unresponsive, deciding synchronously", "player", s.player, "silentTicks", tick-s.lastHeard)
	}

	var units []model.Unit
	for _, u := range members {
		if u.InCombat() {
			units = append(units, u)
		}
	}
	s.worker.Submit(NewSnapshot(gs, units))
	return out
}

// applyBatch turns worker decisions into commands through the same helpers
// the synchronous path uses. A none decision touches nothing.
func (s *Scheduler) applyBatch(gs *model.GameState, b Batch) []Command {
	tick := gs.Tick
	var out []Command
	for _, d := range b.Decisions {
		if d.Action == ActNone {
			continue
		}
		u, ok := ownUnit(gs, d.UnitID)
		if !ok {
			s.stats.Dropped++
			continue
		}
		if st := s.coord.State(u.ID); st == tactics.Retreating || st == tactics.Regrouping {
			continue
		}
		m := s.microFor(u, tick)
		if m == nil {
			continue
		}
		m.ThreatScore = d.Threat

		switch d.Action {
		case ActAttack:
			if e, ok := enemyUnit(gs, d.TargetID); ok && e.ID != m.Target && !s.queue.pending(u.ID) {
				out = append(out, s.attack(u, e, tick))
			}
		case ActKite:
			threat, ok := enemyUnit(gs, d.TargetID)
			if !ok {
				t, _ := nearestEnemy(gs.Enemies, u.Pos(), s.isMelee)
				if t == nil {
					continue
				}
				threat = *t
			}
			out = append(out, s.kite(u, m, threat, gs)...)
		case ActRetreat:
			if cmd, ok := s.retreat(u, gs); ok {
				out = append(out, cmd)
			}
		case ActTransform:
			if cmd, ok := s.transform(u, m, d.Mode, tick); ok {
				out = append(out, cmd)
			}
		}
	}
	slog.Debug("worker batch applied", "snapshot", b.SnapshotID, "batchTick", b.Tick, "tick", tick, "commands", len(out))
	return out
}

// logDiagnostics reports scheduler health every DiagnosticsInterval ticks.
func (s *Scheduler) logDiagnostics(tick int) {
	if tick-s.lastDiag < s.tuning.Scheduler.DiagnosticsInterval {
		return
	}
	s.lastDiag = tick

	hits, misses := s.session.CacheStats()
	slog.Info("tactical diagnostics",
		"player", s.player,
		"tick", tick,
		"microStates", len(s.micro),
		"queued", s.queue.Len(),
		"commands", s.stats.Commands,
		"kites", s.stats.Kites,
		"retreats", s.stats.Retreats,
		"focusSwitches", s.stats.FocusSwitches,
		"panics", s.stats.Panics,
		"cacheHits", hits,
		"cacheMisses", misses,
		"workerDegraded", s.degraded,
	)
}

func ownUnit(gs *model.GameState, id int) (model.Unit, bool) {
	for _, u := range gs.Units {
		if u.ID == id {
			return u, u.Alive()
		}
	}
	return model.Unit{}, false
}

func enemyUnit(gs *model.GameState, id int) (model.Unit, bool) {
	if id == 0 {
		return model.Unit{}, false
	}
	for _, e := range gs.Enemies {
		if e.ID == id {
			return e, e.Alive()
		}
	}
	return model.Unit{}, false
}
