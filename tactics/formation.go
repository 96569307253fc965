// Package tactics places army groups into formations, runs the per-unit
// retreat/regroup state machine and extracts strategic positions from the
// map.
package tactics

import (
	"cmp"
	"math"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Kind identifies a formation layout. Callers choose it; nothing here
// switches layouts on its own.
type Kind string

const (
	Arc    Kind = "arc"
	Box    Kind = "box"
	Spread Kind = "spread"
)

// Slot is one member's assigned position.
type Slot struct {
	UnitID int        `json:"unitId"`
	Role   model.Role `json:"role"`
	Pos    model.Vec2 `json:"pos"`
}

var defaultFacing = model.Vec2{X: 1, Y: 0}

// PlanFormation assigns each member a slot around centroid, with facing
// pointing at the enemy. Members are classified by role using roles.
func PlanFormation(members []model.Unit, centroid, facing model.Vec2, kind Kind, cfg config.Formation, roles config.Roles) []Slot {
	if len(members) == 0 {
		return nil
	}
	fwd := facing.Norm()
	if fwd.IsZero() {
		fwd = defaultFacing
	}
	right := fwd.Perp()

	if len(members) == 1 {
		u := members[0]
		r := model.ClassifyRole(u, roles.ShortRange, roles.LongRange)
		return []Slot{{UnitID: u.ID, Role: r, Pos: centroid.Add(fwd.Scale(cfg.SingleOffset))}}
	}

	byRole := make(map[model.Role][]model.Unit)
	for _, u := range members {
		r := model.ClassifyRole(u, roles.ShortRange, roles.LongRange)
		byRole[r] = append(byRole[r], u)
	}

	scale := 1.0
	if kind == Spread {
		scale = cfg.SpreadFactor
	}

	var slots []Slot
	switch kind {
	case Box:
		slots = boxSlots(byRole, centroid, fwd, right, cfg)
	default:
		slots = arcSlots(byRole, centroid, fwd, right, cfg, scale)
	}
	if kind == Spread {
		separate(slots, cfg.Spacing*cfg.SpreadFactor, cfg.SeparationIterations)
	}
	return slots
}

// arcSlots puts melee on an arc in front, ranged, support and siege in lines
// behind, and air in a ring at the centre.
func arcSlots(byRole map[model.Role][]model.Unit, c, fwd, right model.Vec2, cfg config.Formation, scale float64) []Slot {
	var out []Slot
	spacing := cfg.Spacing * scale

	if melee := byRole[model.RoleMelee]; len(melee) > 0 {
		n := len(melee)
		radius := (cfg.MeleeRadius + cfg.MeleeRadiusPerUnit*float64(n)) * scale
		span := 0.0
		if n > 1 {
			span = math.Min(cfg.MaxArc, float64(n-1)*spacing/radius)
		}
		pos := make([]model.Vec2, n)
		for i := range pos {
			theta := 0.0
			if n > 1 {
				theta = -span/2 + span*float64(i)/float64(n-1)
			}
			pos[i] = c.Add(fwd.Rotate(theta).Scale(radius))
		}
		out = append(out, assign(melee, pos, c, right, model.RoleMelee)...)
	}

	line := func(role model.Role, back float64) {
		units := byRole[role]
		if len(units) == 0 {
			return
		}
		base := c.Sub(fwd.Scale(back * scale))
		out = append(out, assign(units, lateral(base, right, len(units), spacing), c, right, role)...)
	}
	line(model.RoleRanged, cfg.RangedOffset)
	line(model.RoleSupport, cfg.SupportOffset)
	line(model.RoleSiege, cfg.SiegeOffset)

	if air := byRole[model.RoleAir]; len(air) > 0 {
		out = append(out, assign(air, ring(c, fwd, len(air), cfg.AirRadius*scale), c, right, model.RoleAir)...)
	}
	return out
}

// boxSlots rings melee around the centre and packs everyone else in a grid
// inside the ring.
func boxSlots(byRole map[model.Role][]model.Unit, c, fwd, right model.Vec2, cfg config.Formation) []Slot {
	var out []Slot
	if melee := byRole[model.RoleMelee]; len(melee) > 0 {
		radius := cfg.MeleeRadius + cfg.MeleeRadiusPerUnit*float64(len(melee))
		out = append(out, assign(melee, ring(c, fwd, len(melee), radius), c, right, model.RoleMelee)...)
	}

	type member struct {
		u    model.Unit
		role model.Role
	}
	var inner []member
	for _, r := range model.Roles {
		if r == model.RoleMelee {
			continue
		}
		for _, u := range byRole[r] {
			inner = append(inner, member{u, r})
		}
	}
	if len(inner) == 0 {
		return out
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(inner)))))
	rows := (len(inner) + cols - 1) / cols
	for i, m := range inner {
		row, col := i/cols, i%cols
		fo := (float64(rows-1)/2 - float64(row)) * cfg.Spacing
		ri := (float64(col) - float64(cols-1)/2) * cfg.Spacing
		out = append(out, Slot{
			UnitID: m.u.ID,
			Role:   m.role,
			Pos:    c.Add(fwd.Scale(fo)).Add(right.Scale(ri)),
		})
	}
	return out
}

// lateral spreads n points along right, centred on base.
func lateral(base, right model.Vec2, n int, spacing float64) []model.Vec2 {
	pos := make([]model.Vec2, n)
	for i := range pos {
		pos[i] = base.Add(right.Scale((float64(i) - float64(n-1)/2) * spacing))
	}
	return pos
}

// ring places n points evenly on a circle; a single point sits at the centre.
func ring(c, fwd model.Vec2, n int, radius float64) []model.Vec2 {
	if n == 1 {
		return []model.Vec2{c}
	}
	pos := make([]model.Vec2, n)
	for i := range pos {
		pos[i] = c.Add(fwd.Rotate(2 * math.Pi * float64(i) / float64(n)).Scale(radius))
	}
	return pos
}

// assign pairs units with positions by their lateral order so neighbours
// keep their relative sides and paths do not cross.
func assign(units []model.Unit, pos []model.Vec2, c, right model.Vec2, role model.Role) []Slot {
	side := func(p model.Vec2) float64 {
		d := p.Sub(c)
		return d.X*right.X + d.Y*right.Y
	}
	us := slices.Clone(units)
	slices.SortStableFunc(us, func(a, b model.Unit) int {
		return cmp.Or(cmp.Compare(side(a.Pos()), side(b.Pos())), cmp.Compare(a.ID, b.ID))
	})
	ps := slices.Clone(pos)
	slices.SortStableFunc(ps, func(a, b model.Vec2) int { return cmp.Compare(side(a), side(b)) })

	out := make([]Slot, len(us))
	for i, u := range us {
		out[i] = Slot{UnitID: u.ID, Role: role, Pos: ps[i]}
	}
	return out
}

// separate pushes slots closer than minDist apart, splitting the correction
// between both slots of each pair.
func separate(slots []Slot, minDist float64, iterations int) {
	for it := 0; it < iterations; it++ {
		moved := false
		for i := range slots {
			for j := i + 1; j < len(slots); j++ {
				d := slots[j].Pos.Sub(slots[i].Pos)
				dist := d.Len()
				if dist >= minDist {
					continue
				}
				dir := d.Norm()
				if dir.IsZero() {
					dir = defaultFacing.Rotate(float64(j))
				}
				push := dir.Scale((minDist - dist) / 2)
				slots[i].Pos = slots[i].Pos.Sub(push)
				slots[j].Pos = slots[j].Pos.Add(push)
				moved = true
			}
		}
		if !moved {
			return
		}
	}
}

// MinSpacing returns the smallest distance between any two slots, or +Inf
// for fewer than two.
func MinSpacing(slots []Slot) float64 {
	best := math.Inf(1)
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			best = math.Min(best, slots[i].Pos.Dist(slots[j].Pos))
		}
	}
	return best
}
