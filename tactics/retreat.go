package tactics

import (
	"log/slog"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// State is a unit's place in the retreat cycle.
type State int

const (
	None State = iota
	Retreating
	Regrouping
	Reengaging
)

func (s State) String() string {
	switch s {
	case Retreating:
		return "retreating"
	case Regrouping:
		return "regrouping"
	case Reengaging:
		return "reengaging"
	}
	return "none"
}

// Order tracks one unit through retreat, regroup and re-engage. Orders are
// dropped when the unit dies or moves away from the rally point after
// re-engaging. A Personal rally was computed from the unit's own position
// and is not replaced by the group's.
type Order struct {
	UnitID           int        `json:"unitId"`
	Owner            string     `json:"owner"`
	State            State      `json:"state"`
	Rally            model.Vec2 `json:"rally"`
	Personal         bool       `json:"personal,omitempty"`
	Start            int        `json:"start"`
	EarliestReengage int        `json:"earliestReengage"`
	StartHealth      float64    `json:"startHealth"`
	Health           float64    `json:"health"`
}

// Transition records a state change made during an update.
type Transition struct {
	UnitID int
	From   State
	To     State
}

// RallySource says which fallback produced a rally point.
type RallySource int

const (
	RallyBase RallySource = iota
	RallySafeDir
	RallyAxis
)

func (s RallySource) String() string {
	switch s {
	case RallyBase:
		return "base"
	case RallySafeDir:
		return "safe_dir"
	}
	return "axis"
}

// GroupStatus summarises the retreat cycle across a player's combat units.
type GroupStatus struct {
	Members     int     `json:"members"`
	Retreating  int     `json:"retreating"`
	Regrouping  int     `json:"regrouping"`
	Reengaging  int     `json:"reengaging"`
	AvgHealth   float64 `json:"avgHealth"`
	CanReengage bool    `json:"canReengage"`
}

// Coordinator runs the retreat state machine for every player it is asked
// about. It is confined to the simulation goroutine.
type Coordinator struct {
	cfg       config.Retreat
	field     *influence.Field
	positions []StrategicPosition
	orders    map[int]*Order
	rally     map[string]model.Vec2
}

func NewCoordinator(cfg config.Retreat, field *influence.Field) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		field:  field,
		orders: make(map[int]*Order),
		rally:  make(map[string]model.Vec2),
	}
}

// SetPositions installs the strategic positions rally points may snap to.
func (c *Coordinator) SetPositions(ps []StrategicPosition) { c.positions = ps }

// Order returns a copy of the unit's order.
func (c *Coordinator) Order(id int) (Order, bool) {
	o, ok := c.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// State returns the unit's state, None when it has no order.
func (c *Coordinator) State(id int) State {
	if o, ok := c.orders[id]; ok {
		return o.State
	}
	return None
}

// Orders returns owner's orders sorted by unit id.
func (c *Coordinator) Orders(owner string) []Order {
	var out []Order
	for _, o := range c.orders {
		if o.Owner == owner {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return a.UnitID - b.UnitID })
	return out
}

// Remove drops the unit's order. Called when the unit dies.
func (c *Coordinator) Remove(id int) { delete(c.orders, id) }

// EnterRetreat puts u into Retreating. A unit already retreating or
// regrouping keeps its order; a re-engaging unit starts over. The rally
// point is computed from u's own position until the next Update.
func (c *Coordinator) EnterRetreat(u model.Unit, gs *model.GameState, tick int) Order {
	if o, ok := c.orders[u.ID]; ok && (o.State == Retreating || o.State == Regrouping) {
		return *o
	}
	rally, ok := c.rally[u.Owner]
	if !ok {
		rally, _ = c.RallyPoint(u.Owner, u.Pos(), gs)
	}
	return *c.enter(u, rally, gs, tick)
}

// rallyFor returns the group rally unless it would not bring u strictly
// closer to the home base, in which case u falls back from where it stands.
func (c *Coordinator) rallyFor(u model.Unit, rally model.Vec2, gs *model.GameState) (model.Vec2, bool) {
	if gs == nil {
		return rally, false
	}
	base, ok := gs.HomeBase()
	if !ok {
		return rally, false
	}
	if d := u.Pos().Dist(base); d <= c.cfg.RallyTolerance || rally.Dist(base) < d {
		return rally, false
	}
	p, _ := c.RallyPoint(u.Owner, u.Pos(), gs)
	return p, true
}

func (c *Coordinator) enter(u model.Unit, rally model.Vec2, gs *model.GameState, tick int) *Order {
	rally, personal := c.rallyFor(u, rally, gs)
	h := u.HealthFraction()
	o := &Order{
		UnitID:           u.ID,
		Owner:            u.Owner,
		State:            Retreating,
		Rally:            rally,
		Personal:         personal,
		Start:            tick,
		EarliestReengage: tick + c.cfg.MinTicks,
		StartHealth:      h,
		Health:           h,
	}
	c.orders[u.ID] = o
	slog.Info("retreat entered", "unit", u.ID, "owner", u.Owner, "health", h, "rally", rally, "personal", personal, "tick", tick)
	return o
}

// ForceGroupRetreat enrolls every living member that is not already
// retreating or regrouping.
func (c *Coordinator) ForceGroupRetreat(owner string, members []model.Unit, gs *model.GameState, tick int) int {
	rally := c.updateRally(owner, members, gs)
	n := 0
	for _, u := range members {
		if !u.Alive() {
			continue
		}
		if o, ok := c.orders[u.ID]; ok && (o.State == Retreating || o.State == Regrouping) {
			continue
		}
		c.enter(u, rally, gs, tick)
		n++
	}
	return n
}

// Update advances owner's orders. members are the player's current combat
// units; orders for units not among them are dropped. The rally point is
// recomputed first, then individual and group triggers are applied, then
// each order steps at most once.
func (c *Coordinator) Update(tick int, owner string, members []model.Unit, gs *model.GameState) []Transition {
	byID := make(map[int]model.Unit, len(members))
	for _, u := range members {
		if u.Alive() {
			byID[u.ID] = u
		}
	}
	for id, o := range c.orders {
		if _, ok := byID[id]; o.Owner == owner && !ok {
			delete(c.orders, id)
		}
	}
	if len(byID) == 0 {
		delete(c.rally, owner)
		return nil
	}

	rally := c.updateRally(owner, members, gs)
	var out []Transition

	// Individual trigger.
	for _, u := range members {
		if _, ok := byID[u.ID]; !ok || u.HealthFraction() >= c.cfg.HealthThreshold {
			continue
		}
		from := c.State(u.ID)
		if from == None || from == Reengaging {
			c.enter(u, rally, gs, tick)
			out = append(out, Transition{u.ID, from, Retreating})
		}
	}

	// Group trigger: enough of the army already falling back, or the army as
	// a whole too weak to fight.
	st := c.GroupStatus(owner, members)
	if float64(st.Retreating)/float64(st.Members) > c.cfg.GroupFraction || st.AvgHealth < c.cfg.GroupHealthThreshold {
		for _, u := range members {
			if _, ok := byID[u.ID]; !ok {
				continue
			}
			from := c.State(u.ID)
			if from == None || from == Reengaging {
				c.enter(u, rally, gs, tick)
				out = append(out, Transition{u.ID, from, Retreating})
			}
		}
	}

	stepped := make(map[int]bool, len(out))
	for _, t := range out {
		stepped[t.UnitID] = true
	}
	for _, u := range members {
		o, ok := c.orders[u.ID]
		if !ok || o.Owner != owner || stepped[u.ID] {
			continue
		}
		if !o.Personal {
			o.Rally = rally
		}
		o.Health = u.HealthFraction()
		from := o.State
		switch o.State {
		case Retreating:
			if u.Pos().Dist(o.Rally) <= c.cfg.RallyTolerance {
				o.State = Regrouping
			}
		case Regrouping:
			if c.recovered(o, tick) {
				o.State = Reengaging
			}
		case Reengaging:
			if u.Pos().Dist(o.Rally) > c.cfg.ReengageDistance {
				delete(c.orders, u.ID)
				out = append(out, Transition{u.ID, Reengaging, None})
				continue
			}
		}
		if o.State != from {
			out = append(out, Transition{u.ID, from, o.State})
		}
	}

	// Whole-group re-engage once most of the army has regrouped.
	if st := c.GroupStatus(owner, members); st.CanReengage {
		for _, u := range members {
			o, ok := c.orders[u.ID]
			if !ok || o.Owner != owner || o.State != Regrouping || tick < o.EarliestReengage {
				continue
			}
			o.State = Reengaging
			out = append(out, Transition{u.ID, Regrouping, Reengaging})
		}
	}

	for _, t := range out {
		slog.Debug("retreat transition", "unit", t.UnitID, "from", t.From, "to", t.To, "tick", tick)
	}
	return out
}

// recovered applies the re-engage rule: never before the tick floor, then
// either recovered by RecoveryDelta since the retreat began or above
// HighHealth outright.
func (c *Coordinator) recovered(o *Order, tick int) bool {
	if tick < o.EarliestReengage {
		return false
	}
	return o.Health >= o.StartHealth+c.cfg.RecoveryDelta || o.Health >= c.cfg.HighHealth
}

// Expire moves retreating orders whose timer has run out to Regrouping, so
// a unit that cannot reach its rally point still comes back. Orders are
// compared against the end tick rather than matched exactly, so skipped
// ticks are caught up.
func (c *Coordinator) Expire(tick int) []Transition {
	var out []Transition
	for id, o := range c.orders {
		if o.State == Retreating && tick >= o.Start+c.cfg.Duration {
			o.State = Regrouping
			out = append(out, Transition{id, Retreating, Regrouping})
		}
	}
	slices.SortFunc(out, func(a, b Transition) int { return a.UnitID - b.UnitID })
	return out
}

// GroupStatus counts owner's members per state. CanReengage requires a
// ReengageMajority of the members holding an order to have regrouped and the
// group's average health to reach ReengageHealth.
func (c *Coordinator) GroupStatus(owner string, members []model.Unit) GroupStatus {
	var st GroupStatus
	total := 0.0
	for _, u := range members {
		if !u.Alive() {
			continue
		}
		st.Members++
		total += u.HealthFraction()
		o, ok := c.orders[u.ID]
		if !ok || o.Owner != owner {
			continue
		}
		switch o.State {
		case Retreating:
			st.Retreating++
		case Regrouping:
			st.Regrouping++
		case Reengaging:
			st.Reengaging++
		}
	}
	if st.Members == 0 {
		return st
	}
	st.AvgHealth = total / float64(st.Members)
	involved := st.Retreating + st.Regrouping + st.Reengaging
	regrouped := st.Regrouping + st.Reengaging
	st.CanReengage = st.Regrouping > 0 &&
		float64(regrouped) >= c.cfg.ReengageMajority*float64(involved) &&
		st.AvgHealth >= c.cfg.ReengageHealth
	return st
}

// Rally returns the last rally point computed for owner.
func (c *Coordinator) Rally(owner string) (model.Vec2, bool) {
	p, ok := c.rally[owner]
	return p, ok
}

func (c *Coordinator) updateRally(owner string, members []model.Unit, gs *model.GameState) model.Vec2 {
	var pts []model.Vec2
	for _, u := range members {
		if u.Alive() {
			pts = append(pts, u.Pos())
		}
	}
	p, _ := c.RallyPoint(owner, model.Centroid(pts), gs)
	c.rally[owner] = p
	return p
}

// RallyPoint picks where owner's group at centroid should fall back to. The
// first available of: toward the home base (at most Distance away), along
// the field's safe direction, or along the -x axis. The result is clamped
// to the map and may be nudged to a safer cell or snapped to a nearby choke
// or defensible position.
func (c *Coordinator) RallyPoint(owner string, centroid model.Vec2, gs *model.GameState) (model.Vec2, RallySource) {
	var (
		p      model.Vec2
		src    = RallyAxis
		base   model.Vec2
		toBase bool
	)
	if gs != nil {
		base, toBase = gs.HomeBase()
		toBase = toBase && base != centroid
	}
	switch {
	case toBase:
		d := base.Sub(centroid)
		p = centroid.Add(d.Norm().Scale(min(d.Len(), c.cfg.Distance)))
		src = RallyBase
	case c.field != nil:
		if dir := c.field.QueryThreat(centroid.X, centroid.Y, owner).SafeDir; !dir.IsZero() {
			p = centroid.Add(dir.Scale(c.cfg.Distance))
			src = RallySafeDir
		}
	}

	size := model.Vec2{}
	if gs != nil {
		size = gs.MapSize()
	}
	clampMap := func(v model.Vec2) model.Vec2 {
		if size.X <= 0 || size.Y <= 0 {
			return v
		}
		return v.Clamp(size.X, size.Y)
	}

	if src == RallyAxis {
		p = clampMap(centroid.Add(model.Vec2{X: -c.cfg.Distance}))
		if p.Dist(centroid) <= c.cfg.RallyTolerance {
			p = centroid.Add(model.Vec2{X: c.cfg.Distance})
		}
	}
	p = clampMap(p)

	if src != RallyAxis && c.field != nil {
		if best, _, ok := c.field.FindBestArea(p, 2*c.cfg.RallyTolerance, owner, c.cfg.Area); ok {
			if src != RallyBase || best.Dist(base) < centroid.Dist(base) {
				p = best
			}
		}
	}

	if sp, ok := Nearest(c.positions, p, c.cfg.RallySnapRadius, Choke, Defensible); ok {
		if src != RallyBase || sp.Pos.Dist(base) < centroid.Dist(base) {
			p = sp.Pos
		}
	}
	return clampMap(p), src
}
