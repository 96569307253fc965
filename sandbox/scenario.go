package sandbox

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Template describes a unit type the scenario spawns.
type Template struct {
	Type          string
	HP            int
	Damage        float64
	AttackSpeed   float64
	Range         float64
	Sight         float64
	Speed         float64
	Flying        bool
	Transformable bool
}

// Roster is the default mixed army: melee, rifles, rockets and artillery.
var Roster = []Template{
	{Type: "dog", HP: 60, Damage: 12, AttackSpeed: 1.5, Range: 1, Sight: 10, Speed: 0.6},
	{Type: "e1", HP: 50, Damage: 8, AttackSpeed: 1, Range: 5, Sight: 10, Speed: 0.3},
	{Type: "e3", HP: 45, Damage: 20, AttackSpeed: 0.5, Range: 7, Sight: 10, Speed: 0.3},
	{Type: "arty", HP: 75, Damage: 40, AttackSpeed: 0.25, Range: 12, Sight: 12, Speed: 0.25, Transformable: true},
}

// Scenario places two mirrored armies at opposite corners of a generated map.
type Scenario struct {
	Terrain TerrainConfig
	Players [2]string
	PerSide int // units per template per player
}

func DefaultScenario(seed int64) Scenario {
	return Scenario{Terrain: DefaultTerrain(seed), Players: [2]string{"Multi0", "Multi1"}, PerSide: 3}
}

// Build generates the map and spawns both sides. Each side gets a base
// building behind its army; the lane between the bases is always passable.
func (s Scenario) Build() (*World, error) {
	if s.Players[0] == "" || s.Players[0] == s.Players[1] {
		return nil, fmt.Errorf("scenario needs two distinct players, got %q and %q", s.Players[0], s.Players[1])
	}
	if s.Terrain.Cols <= 0 || s.Terrain.Rows <= 0 || s.Terrain.CellSize <= 0 {
		return nil, fmt.Errorf("invalid terrain size %dx%d@%d", s.Terrain.Cols, s.Terrain.Rows, s.Terrain.CellSize)
	}

	terrain := GenerateTerrain(s.Terrain)
	width, height := s.Terrain.Cols*s.Terrain.CellSize, s.Terrain.Rows*s.Terrain.CellSize
	size := model.V(float64(width), float64(height))
	margin := size.Scale(0.15)
	bases := [2]model.Vec2{margin, size.Sub(margin)}

	for _, b := range bases {
		ClearArea(terrain, b, 0.12*size.X)
	}
	CarveLane(terrain, bases[0], bases[1])

	w := NewWorld(width, height, terrain)
	w.SetResources(GenerateResources(terrain, s.Terrain))

	toward := bases[1].Sub(bases[0]).Norm()
	for side, player := range s.Players {
		dir := toward
		if side == 1 {
			dir = dir.Scale(-1)
		}
		base := bases[side]
		w.SpawnBuilding(model.Building{Owner: player, Type: "fact", X: base.X, Y: base.Y, HP: 1000, Base: true})

		front := base.Add(dir.Scale(12))
		right := dir.Perp()
		row := 0
		for _, tpl := range Roster {
			for i := range s.PerSide {
				offset := right.Scale(float64(i-(s.PerSide-1)/2) * 2.5)
				p := front.Sub(dir.Scale(float64(row) * 2.5)).Add(offset).Clamp(size.X, size.Y)
				var mode string
				if tpl.Transformable {
					mode = "mobile"
				}
				w.SpawnUnit(model.Unit{
					Owner: player, Type: tpl.Type, X: p.X, Y: p.Y, HP: tpl.HP,
					Damage: tpl.Damage, AttackSpeed: tpl.AttackSpeed, Range: tpl.Range, SightRange: tpl.Sight,
					Flying: tpl.Flying, Transformable: tpl.Transformable, Mode: mode,
				}, tpl.Speed)
			}
			row++
		}
	}
	return w, nil
}
