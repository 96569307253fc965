package behavior

import (
	"math"

	"github.com/nstehr/vimy/vimy-tactics/bt"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// View is the world a unit's tree sees on one evaluation. The scheduler
// builds one per unit per pass and passes it as bt.Context.World.
type View struct {
	Self       model.Unit
	State      *model.GameState
	Threat     influence.ThreatInfo
	Role       model.Role
	Tuning     *config.Tuning
	Retreating bool
}

// Env wraps a View and the instance blackboard and exposes the helper
// methods callable from expr expressions.
type Env struct {
	view *View
	bb   *bt.Blackboard
}

func envFor(ctx *bt.Context) Env {
	v, _ := ctx.World.(*View)
	return Env{view: v, bb: ctx.BB}
}

func (e Env) ok() bool { return e.view != nil }

func (e Env) HealthFraction() float64 {
	if !e.ok() {
		return 1
	}
	return e.view.Self.HealthFraction()
}

func (e Env) Danger() float64 {
	if !e.ok() {
		return 0
	}
	return e.view.Threat.Danger
}

// InDanger compares Danger to the configured threshold.
func (e Env) InDanger() bool {
	if !e.ok() || e.view.Tuning == nil {
		return false
	}
	return e.view.Threat.Danger >= e.view.Tuning.Scheduler.DangerThreshold
}

func (e Env) Contested() bool         { return e.ok() && e.view.Threat.Contested }
func (e Env) EnemyInfluence() float64 { return e.threat().Enemy }
func (e Env) OwnInfluence() float64   { return e.threat().Friendly }

func (e Env) threat() influence.ThreatInfo {
	if !e.ok() {
		return influence.ThreatInfo{}
	}
	return e.view.Threat
}

func (e Env) CanAttack() bool { return e.ok() && e.view.Self.CanAttack() }

func (e Env) Range() float64 {
	if !e.ok() {
		return 0
	}
	return e.view.Self.Range
}

func (e Env) Flying() bool        { return e.ok() && e.view.Self.Flying }
func (e Env) Transformable() bool { return e.ok() && e.view.Self.Transformable }

func (e Env) Mode() string {
	if !e.ok() {
		return ""
	}
	return e.view.Self.Mode
}

func (e Env) Retreating() bool { return e.ok() && e.view.Retreating }

func (e Env) IsRole(r string) bool { return e.ok() && string(e.view.Role) == r }

func (e Env) Tick() int {
	if !e.ok() || e.view.State == nil {
		return 0
	}
	return e.view.State.Tick
}

// EnemiesInRange counts living enemy units within r of the unit.
func (e Env) EnemiesInRange(r float64) int {
	if !e.ok() || e.view.State == nil {
		return 0
	}
	n := 0
	pos := e.view.Self.Pos()
	for _, en := range e.view.State.Enemies {
		if en.Alive() && en.Pos().Dist(pos) <= r {
			n++
		}
	}
	return n
}

// NearestEnemyDistance is +Inf when no enemy is visible.
func (e Env) NearestEnemyDistance() float64 {
	return e.nearest(func(model.Unit) bool { return true })
}

// NearestMeleeDistance is the distance to the closest armed enemy whose
// range is below the melee cutoff. +Inf when there is none.
func (e Env) NearestMeleeDistance() float64 {
	if !e.ok() || e.view.Tuning == nil {
		return math.Inf(1)
	}
	short := e.view.Tuning.Roles.ShortRange
	return e.nearest(func(u model.Unit) bool { return u.CanAttack() && !u.Flying && u.Range < short })
}

func (e Env) nearest(keep func(model.Unit) bool) float64 {
	best := math.Inf(1)
	if !e.ok() || e.view.State == nil {
		return best
	}
	pos := e.view.Self.Pos()
	for _, en := range e.view.State.Enemies {
		if !en.Alive() || !keep(en) {
			continue
		}
		best = math.Min(best, en.Pos().Dist(pos))
	}
	return best
}

// Flag reads a boolean blackboard entry through the scope chain.
func (e Env) Flag(key string) bool {
	return bt.ValueOr(e.bb, key, false)
}

// Number reads a numeric blackboard entry; ints are widened.
func (e Env) Number(key string) float64 {
	v, ok := e.bb.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// Text reads a string blackboard entry.
func (e Env) Text(key string) string {
	return bt.ValueOr(e.bb, key, "")
}
