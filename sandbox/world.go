// Package sandbox is a small headless battle simulation used to drive the
// tactical core without the game: entities live in an ark ECS world, move
// along the paths they are ordered on and trade fire when in range.
package sandbox

import (
	"cmp"
	"log/slog"
	"math"
	"slices"

	"github.com/mlange-42/ark/ecs"

	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
)

// TicksPerSecond converts attack speeds into reload ticks.
const TicksPerSecond = 25

// Deployed is the transform mode that trades mobility for range.
const Deployed = "deployed"

const deployedRangeBonus = 1.5

type identity struct {
	ID            int
	Owner         string
	Type          string
	Building      bool
	Base          bool
	Worker        bool
	Flying        bool
	Transformable bool
	Supply        int
	Mode          string
}

type position struct {
	X, Y float64
}

type health struct {
	HP, MaxHP int
}

type combat struct {
	Damage      float64
	AttackSpeed float64
	Range       float64
	Sight       float64
	Speed       float64 // world units per tick
	baseRange   float64
	baseSpeed   float64

	Activity string
	Target   int
	Dest     model.Vec2
	Path     []model.Vec2
	Reload   int
}

// entity is a resolved view of one entity's components, valid until the
// next structural change to the world.
type entity struct {
	e   ecs.Entity
	id  *identity
	pos *position
	hp  *health
	c   *combat
}

func (en entity) at() model.Vec2 { return model.V(en.pos.X, en.pos.Y) }

// World is a headless battle. Not safe for concurrent use.
type World struct {
	world   ecs.World
	mapper  *ecs.Map4[identity, position, health, combat]
	filter  *ecs.Filter4[identity, position, health, combat]
	byID    map[int]ecs.Entity
	terrain *model.TerrainGrid

	resources []model.Vec2
	width     int
	height    int
	tick      int
	nextID    int
}

// NewWorld creates an empty world. terrain may be nil for open ground.
func NewWorld(width, height int, terrain *model.TerrainGrid) *World {
	w := &World{
		world:   ecs.NewWorld(),
		byID:    make(map[int]ecs.Entity),
		terrain: terrain,
		width:   width,
		height:  height,
		nextID:  1,
	}
	w.mapper = ecs.NewMap4[identity, position, health, combat](&w.world)
	w.filter = ecs.NewFilter4[identity, position, health, combat](&w.world)
	return w
}

func (w *World) Tick() int { return w.tick }

func (w *World) Terrain() *model.TerrainGrid { return w.terrain }

func (w *World) SetResources(r []model.Vec2) { w.resources = slices.Clone(r) }

func (w *World) Resources() []model.Vec2 { return slices.Clone(w.resources) }

func (w *World) id(want int) int {
	if want == 0 {
		want = w.nextID
	}
	w.nextID = max(w.nextID, want+1)
	return want
}

// SpawnUnit adds a unit moving at speed world units per tick and returns its
// id. A zero u.ID is assigned one.
func (w *World) SpawnUnit(u model.Unit, speed float64) int {
	id := w.id(u.ID)
	if u.MaxHP <= 0 {
		u.MaxHP = max(u.HP, 1)
	}
	if u.HP <= 0 {
		u.HP = u.MaxHP
	}
	sight := u.SightRange
	if sight <= 0 {
		sight = u.Range + 4
	}
	e := w.mapper.NewEntity(
		&identity{ID: id, Owner: u.Owner, Type: u.Type, Worker: u.Worker, Flying: u.Flying,
			Transformable: u.Transformable, Supply: u.Supply, Mode: u.Mode},
		&position{X: u.X, Y: u.Y},
		&health{HP: u.HP, MaxHP: u.MaxHP},
		&combat{Damage: u.Damage, AttackSpeed: u.AttackSpeed, Range: u.Range, Sight: sight, Speed: speed,
			baseRange: u.Range, baseSpeed: speed, Activity: model.ActivityIdle},
	)
	w.byID[id] = e
	if u.Mode == Deployed {
		_, _, _, c := w.mapper.Get(e)
		deploy(c, true)
	}
	return id
}

// SpawnBuilding adds a building and returns its id.
func (w *World) SpawnBuilding(b model.Building) int {
	id := w.id(b.ID)
	if b.MaxHP <= 0 {
		b.MaxHP = max(b.HP, 1)
	}
	if b.HP <= 0 {
		b.HP = b.MaxHP
	}
	var atk float64
	if b.CanAttack {
		atk = 1
	}
	e := w.mapper.NewEntity(
		&identity{ID: id, Owner: b.Owner, Type: b.Type, Building: true, Base: b.Base},
		&position{X: b.X, Y: b.Y},
		&health{HP: b.HP, MaxHP: b.MaxHP},
		&combat{Damage: b.Damage, AttackSpeed: atk, Range: b.Range, Sight: b.Range,
			baseRange: b.Range, Activity: model.ActivityIdle},
	)
	w.byID[id] = e
	return id
}

// entities returns every entity sorted by id so a step is deterministic.
func (w *World) entities() []entity {
	var out []entity
	q := w.filter.Query()
	for q.Next() {
		id, pos, hp, c := q.Get()
		out = append(out, entity{e: q.Entity(), id: id, pos: pos, hp: hp, c: c})
	}
	slices.SortFunc(out, func(a, b entity) int { return cmp.Compare(a.id.ID, b.id.ID) })
	return out
}

func (w *World) lookup(id int) (entity, bool) {
	e, ok := w.byID[id]
	if !ok || !w.world.Alive(e) {
		return entity{}, false
	}
	ident, pos, hp, c := w.mapper.Get(e)
	return entity{e: e, id: ident, pos: pos, hp: hp, c: c}, true
}

// Snapshot is player's view of the battle. There is no fog of war: every
// enemy is visible.
func (w *World) Snapshot(player string) model.GameState {
	gs := model.GameState{
		Tick:      w.tick,
		Player:    player,
		Resources: slices.Clone(w.resources),
		MapWidth:  w.width,
		MapHeight: w.height,
	}
	for _, en := range w.entities() {
		if en.id.Building {
			b := model.Building{
				ID: en.id.ID, Owner: en.id.Owner, Type: en.id.Type, X: en.pos.X, Y: en.pos.Y,
				HP: en.hp.HP, MaxHP: en.hp.MaxHP, Completed: true, CanAttack: en.c.Damage > 0,
				Damage: en.c.Damage, Range: en.c.Range, Base: en.id.Base,
			}
			if en.id.Owner == player {
				gs.Buildings = append(gs.Buildings, b)
			} else {
				gs.EnemyBuildings = append(gs.EnemyBuildings, b)
			}
			continue
		}
		u := model.Unit{
			ID: en.id.ID, Owner: en.id.Owner, Type: en.id.Type, X: en.pos.X, Y: en.pos.Y,
			HP: en.hp.HP, MaxHP: en.hp.MaxHP, Activity: en.c.Activity, TargetID: en.c.Target,
			Damage: en.c.Damage, AttackSpeed: en.c.AttackSpeed, Range: en.c.Range, SightRange: en.c.Sight,
			Flying: en.id.Flying, Supply: en.id.Supply, Worker: en.id.Worker,
			Transformable: en.id.Transformable, Mode: en.id.Mode,
		}
		if en.id.Owner == player {
			gs.Units = append(gs.Units, u)
		} else {
			gs.Enemies = append(gs.Enemies, u)
		}
	}
	return gs
}

// Apply carries out commands. Commands for units that are gone or belong to
// another player are ignored; the number applied is returned.
func (w *World) Apply(cmds []scheduler.Command) int {
	n := 0
	for _, cmd := range cmds {
		en, ok := w.lookup(cmd.UnitID)
		if !ok || en.id.Building || en.id.Owner != cmd.Player {
			slog.Debug("sandbox command ignored", "kind", cmd.Kind, "unit", cmd.UnitID, "player", cmd.Player)
			continue
		}
		switch cmd.Kind {
		case scheduler.Move, scheduler.Formation:
			if en.c.Speed <= 0 {
				continue
			}
			en.c.Target = 0
			en.c.Dest = cmd.Pos
			en.c.Path = slices.Clone(cmd.Waypoints)
			en.c.Activity = model.ActivityMoving
		case scheduler.Attack:
			t, ok := w.lookup(cmd.TargetID)
			if !ok || t.id.Owner == en.id.Owner {
				continue
			}
			en.c.Target = cmd.TargetID
			en.c.Path = nil
			en.c.Activity = model.ActivityAttacking
		case scheduler.Transform:
			if !en.id.Transformable {
				continue
			}
			mode := cmd.Mode
			if mode == "" {
				mode = Deployed
				if en.id.Mode == Deployed {
					mode = "mobile"
				}
			}
			en.id.Mode = mode
			deploy(en.c, mode == Deployed)
		default:
			continue
		}
		n++
	}
	return n
}

func deploy(c *combat, on bool) {
	if on {
		c.Range = c.baseRange * deployedRangeBonus
		c.Speed = 0
		c.Path = nil
		if c.Activity == model.ActivityMoving {
			c.Activity = model.ActivityIdle
		}
		return
	}
	c.Range = c.baseRange
	c.Speed = c.baseSpeed
}

// Step advances the battle one tick and returns the ids of entities
// destroyed during it.
func (w *World) Step() []int {
	w.tick++
	all := w.entities()
	byID := make(map[int]entity, len(all))
	for _, en := range all {
		byID[en.id.ID] = en
	}

	for _, en := range all {
		if en.hp.HP <= 0 {
			continue
		}
		if en.c.Reload > 0 {
			en.c.Reload--
		}
		switch {
		case en.c.Target != 0:
			w.engage(en, byID)
		case en.c.Activity == model.ActivityMoving:
			w.advance(en)
		case en.c.Damage > 0:
			w.acquire(en, all)
		}
	}

	var dead []int
	for _, en := range all {
		if en.hp.HP > 0 {
			continue
		}
		dead = append(dead, en.id.ID)
		delete(w.byID, en.id.ID)
		w.world.RemoveEntity(en.e)
	}
	if len(dead) > 0 {
		slog.Debug("sandbox casualties", "tick", w.tick, "ids", dead)
	}
	return dead
}

func (w *World) engage(en entity, byID map[int]entity) {
	t, ok := byID[en.c.Target]
	if !ok || t.hp.HP <= 0 {
		en.c.Target = 0
		en.c.Activity = model.ActivityIdle
		return
	}
	en.c.Activity = model.ActivityAttacking
	if en.at().Dist(t.at()) > en.c.Range {
		if en.c.Speed <= 0 {
			en.c.Target = 0
			en.c.Activity = model.ActivityIdle
			return
		}
		w.moveToward(en, t.at())
		return
	}
	if en.c.Reload > 0 || en.c.Damage <= 0 {
		return
	}
	t.hp.HP -= max(int(math.Round(en.c.Damage)), 1)
	en.c.Reload = reloadTicks(en.c.AttackSpeed)
}

func reloadTicks(attackSpeed float64) int {
	if attackSpeed <= 0 {
		return TicksPerSecond
	}
	return max(int(math.Round(TicksPerSecond/attackSpeed)), 1)
}

// advance walks en along its path and then to its destination.
func (w *World) advance(en entity) {
	goal := en.c.Dest
	if len(en.c.Path) > 0 {
		goal = en.c.Path[0]
	}
	if w.moveToward(en, goal) {
		if len(en.c.Path) > 0 {
			en.c.Path = en.c.Path[1:]
			return
		}
		en.c.Activity = model.ActivityIdle
	}
}

// moveToward steps en toward goal and reports whether it arrived. Ground
// units stop when the next step is impassable.
func (w *World) moveToward(en entity, goal model.Vec2) bool {
	if en.c.Speed <= 0 {
		return false
	}
	here := en.at()
	d := goal.Sub(here)
	if d.Len() <= en.c.Speed {
		if !w.passable(en, goal) {
			w.stop(en)
			return false
		}
		en.pos.X, en.pos.Y = goal.X, goal.Y
		return true
	}
	next := here.Add(d.Norm().Scale(en.c.Speed)).Clamp(float64(w.width), float64(w.height))
	if !w.passable(en, next) {
		w.stop(en)
		return false
	}
	en.pos.X, en.pos.Y = next.X, next.Y
	return false
}

func (w *World) stop(en entity) {
	en.c.Path = nil
	if en.c.Activity == model.ActivityMoving {
		en.c.Activity = model.ActivityIdle
	}
}

func (w *World) passable(en entity, p model.Vec2) bool {
	return en.id.Flying || w.terrain == nil || w.terrain.PassableWorld(p.X, p.Y)
}

// acquire points an idle armed entity at the nearest enemy in sight.
func (w *World) acquire(en entity, all []entity) {
	best, bestDist := 0, math.Inf(1)
	for _, o := range all {
		if o.id.Owner == en.id.Owner || o.hp.HP <= 0 {
			continue
		}
		if d := en.at().Dist(o.at()); d <= en.c.Sight && d < bestDist {
			best, bestDist = o.id.ID, d
		}
	}
	if best != 0 {
		en.c.Target = best
		en.c.Activity = model.ActivityAttacking
	}
}

// Alive counts each owner's living units and buildings.
func (w *World) Alive() map[string]int {
	out := make(map[string]int)
	for _, en := range w.entities() {
		if en.hp.HP > 0 {
			out[en.id.Owner]++
		}
	}
	return out
}

// Winner returns the only owner with anything left standing.
func (w *World) Winner() (string, bool) {
	alive := w.Alive()
	if len(alive) != 1 {
		return "", false
	}
	for owner := range alive {
		return owner, true
	}
	return "", false
}
