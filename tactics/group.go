package tactics

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Group gives a player's army a persistent identity across ticks so its
// formation and facing stay coherent.
type Group struct {
	ID       string     `json:"id"`
	Owner    string     `json:"owner"`
	Members  []int      `json:"members"`
	Centroid model.Vec2 `json:"centroid"`
	Facing   model.Vec2 `json:"facing"`
	Kind     Kind       `json:"kind"`
	Slots    []Slot     `json:"slots"`
	Formed   int        `json:"formed"`
}

// SlotFor returns the slot assigned to a unit.
func (g *Group) SlotFor(id int) (Slot, bool) {
	for _, s := range g.Slots {
		if s.UnitID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Organizer keeps one army group per player.
type Organizer struct {
	cfg    config.Formation
	roles  config.Roles
	groups map[string]*Group
	seq    int
}

func NewOrganizer(cfg config.Formation, roles config.Roles) *Organizer {
	return &Organizer{cfg: cfg, roles: roles, groups: make(map[string]*Group)}
}

// Organize refreshes owner's group from its current combat units: dead or
// missing members are pruned, new ones join, and slots are replanned facing
// the enemy. With no enemy in sight the previous facing is kept. A group
// left without members is dissolved and nil is returned.
func (o *Organizer) Organize(owner string, units []model.Unit, enemy model.Vec2, haveEnemy bool, kind Kind, tick int) *Group {
	var members []model.Unit
	for _, u := range units {
		if u.Alive() && !u.Worker {
			members = append(members, u)
		}
	}

	g, ok := o.groups[owner]
	if len(members) == 0 {
		if ok {
			slog.Info("group dissolved", "group", g.ID, "owner", owner)
			delete(o.groups, owner)
		}
		return nil
	}
	if !ok {
		o.seq++
		g = &Group{ID: fmt.Sprintf("%s/army-%d", owner, o.seq), Owner: owner, Facing: defaultFacing, Formed: tick}
		o.groups[owner] = g
		slog.Info("group formed", "group", g.ID, "members", len(members))
	}

	ids := make([]int, len(members))
	pos := make([]model.Vec2, len(members))
	for i, u := range members {
		ids[i] = u.ID
		pos[i] = u.Pos()
	}
	slices.Sort(ids)
	g.Members = ids
	g.Centroid = model.Centroid(pos)
	if haveEnemy {
		if f := enemy.Sub(g.Centroid).Norm(); !f.IsZero() {
			g.Facing = f
		}
	}
	g.Kind = kind
	g.Slots = PlanFormation(members, g.Centroid, g.Facing, kind, o.cfg, o.roles)
	return g
}

// Group returns owner's current group.
func (o *Organizer) Group(owner string) (*Group, bool) {
	g, ok := o.groups[owner]
	return g, ok
}

// Remove drops a unit from whichever group holds it.
func (o *Organizer) Remove(id int) {
	for owner, g := range o.groups {
		i := slices.Index(g.Members, id)
		if i < 0 {
			continue
		}
		g.Members = slices.Delete(g.Members, i, i+1)
		g.Slots = slices.DeleteFunc(g.Slots, func(s Slot) bool { return s.UnitID == id })
		if len(g.Members) == 0 {
			delete(o.groups, owner)
		}
	}
}
