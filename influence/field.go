// Package influence maintains per-faction decayed influence grids over the
// map and answers danger, path and area queries against them.
package influence

import (
	"math"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Source is one entity's contribution to its faction's grid. Sources are
// rebuilt from live state on every update.
type Source struct {
	Pos       model.Vec2
	Magnitude float64
	// ReducedGroundThreat marks air units; their magnitude is scaled by the
	// configured flying factor when propagated.
	ReducedGroundThreat bool
}

// ThreatInfo is the result of a point query from one faction's perspective.
// The zero value is the neutral answer for positions off the grid.
type ThreatInfo struct {
	Friendly  float64    `json:"friendly"`
	Enemy     float64    `json:"enemy"`
	Net       float64    `json:"net"`
	Danger    float64    `json:"danger"`
	Contested bool       `json:"contested"`
	SafeDir   model.Vec2 `json:"safeDir"`
}

// Field is a set of dense influence grids, one per observed faction, plus the
// combined total and two-faction control arrays. Dimensions are fixed at
// construction. Not safe for concurrent use.
type Field struct {
	cfg        config.Field
	cols, rows int
	radius     int
	decay      []float64

	factions map[string][]float64
	order    []string
	total    []float64
	control  []float64

	terrain    *model.TerrainGrid
	blocked    []bool
	lastUpdate int
}

// New sizes the grid to cover mapW x mapH world units.
func New(mapW, mapH float64, cfg config.Field) *Field {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 1
	}
	cols := max(1, int(math.Ceil(mapW/cfg.CellSize)))
	rows := max(1, int(math.Ceil(mapH/cfg.CellSize)))
	radius := max(0, int(math.Ceil(cfg.MaxRadius/cfg.CellSize)))

	decay := make([]float64, radius+1)
	for d := range decay {
		decay[d] = math.Pow(cfg.DecayRate, float64(d))
	}

	return &Field{
		cfg:        cfg,
		cols:       cols,
		rows:       rows,
		radius:     radius,
		decay:      decay,
		factions:   make(map[string][]float64),
		total:      make([]float64, cols*rows),
		control:    make([]float64, cols*rows),
		lastUpdate: -1,
	}
}

// Dims returns the grid size in cells.
func (f *Field) Dims() (cols, rows int) { return f.cols, f.rows }

func (f *Field) CellSize() float64 { return f.cfg.CellSize }

// Radius is the propagation radius in cells.
func (f *Field) Radius() int { return f.radius }

// Decay returns the falloff factor for an integer cell distance, zero beyond
// the propagation radius.
func (f *Field) Decay(d int) float64 {
	if d < 0 || d > f.radius {
		return 0
	}
	return f.decay[d]
}

// LastUpdate is the tick of the most recent Update, or -1 before the first.
func (f *Field) LastUpdate() int { return f.lastUpdate }

// Factions lists the factions present in the last update, sorted.
func (f *Field) Factions() []string { return slices.Clone(f.order) }

// SetTerrain installs the passability grid used by path and area searches.
func (f *Field) SetTerrain(t *model.TerrainGrid) {
	f.terrain = t
	f.blocked = nil
	if t == nil {
		return
	}
	f.blocked = make([]bool, f.cols*f.rows)
	for r := 0; r < f.rows; r++ {
		for c := 0; c < f.cols; c++ {
			p := f.center(c, r)
			f.blocked[r*f.cols+c] = !t.PassableWorld(p.X, p.Y)
		}
	}
}

// Terrain returns the installed passability grid, possibly nil.
func (f *Field) Terrain() *model.TerrainGrid { return f.terrain }

// UnitInfluence derives a unit's source from its combat stats.
func (f *Field) UnitInfluence(u model.Unit) Source {
	return Source{
		Pos:                 u.Pos(),
		Magnitude:           u.DPS()*f.cfg.DPSWeight + float64(u.Supply)*f.cfg.SupplyWeight,
		ReducedGroundThreat: u.Flying,
	}
}

// BuildingInfluence derives a building's source. Completed buildings that
// deal damage are scaled by the defense multiplier.
func (f *Field) BuildingInfluence(b model.Building) Source {
	m := f.cfg.BuildingBase * f.cfg.BuildingMultiplier
	if b.CanAttack && b.Completed {
		m *= f.cfg.DefenseMultiplier
	}
	return Source{Pos: b.Pos(), Magnitude: m}
}

// Update rebuilds every faction grid from the living units and buildings.
// Factions with nothing alive are dropped.
func (f *Field) Update(units []model.Unit, buildings []model.Building, tick int) {
	sources := make(map[string][]Source)
	for _, u := range units {
		if !u.Alive() {
			continue
		}
		sources[u.Owner] = append(sources[u.Owner], f.UnitInfluence(u))
	}
	for _, b := range buildings {
		if !b.Alive() {
			continue
		}
		sources[b.Owner] = append(sources[b.Owner], f.BuildingInfluence(b))
	}
	f.UpdateSources(sources, tick)
}

// UpdateSources rebuilds the grids from prepared sources keyed by faction.
func (f *Field) UpdateSources(sources map[string][]Source, tick int) {
	clear(f.total)
	clear(f.control)

	f.order = f.order[:0]
	for faction := range sources {
		f.order = append(f.order, faction)
	}
	slices.Sort(f.order)

	for faction := range f.factions {
		if _, ok := sources[faction]; !ok {
			delete(f.factions, faction)
		}
	}

	for _, faction := range f.order {
		grid, ok := f.factions[faction]
		if !ok {
			grid = make([]float64, f.cols*f.rows)
			f.factions[faction] = grid
		} else {
			clear(grid)
		}
		for _, s := range sources[faction] {
			f.propagate(grid, s)
		}
		for i, v := range grid {
			f.total[i] += v
		}
	}

	if len(f.order) >= 2 {
		a, b := f.factions[f.order[0]], f.factions[f.order[1]]
		for i := range f.control {
			f.control[i] = a[i] - b[i]
		}
	}
	f.lastUpdate = tick
}

func (f *Field) propagate(grid []float64, s Source) {
	m := s.Magnitude
	if s.ReducedGroundThreat {
		m *= f.cfg.FlyingFactor
	}
	if m == 0 {
		return
	}
	cx, cy, ok := f.cellOf(s.Pos)
	if !ok {
		return
	}
	r := f.radius
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= f.rows {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			x := cx + dx
			if x < 0 || x >= f.cols {
				continue
			}
			d := int(math.Round(math.Hypot(float64(dx), float64(dy))))
			if d > r {
				continue
			}
			grid[y*f.cols+x] += m * f.decay[d]
		}
	}
}

// QueryThreat reads the grids at a world position from faction's perspective.
func (f *Field) QueryThreat(x, y float64, faction string) ThreatInfo {
	cx, cy, ok := f.cellOf(model.Vec2{X: x, Y: y})
	if !ok {
		return ThreatInfo{}
	}
	idx := cy*f.cols + cx
	own := f.own(idx, faction)
	enemy := f.enemy(idx, faction)

	info := ThreatInfo{
		Friendly:  own,
		Enemy:     enemy,
		Net:       own - enemy,
		Danger:    clamp(enemy/(own+enemy+f.cfg.DangerConstant), 0, 1),
		Contested: own > f.cfg.ContestedThreshold && enemy > f.cfg.ContestedThreshold,
	}

	// Negative gradient of enemy influence over the 8 neighbours.
	var g model.Vec2
	for _, d := range dirs {
		nx, ny := cx+d[0], cy+d[1]
		if !f.inBounds(nx, ny) {
			continue
		}
		diff := enemy - f.enemy(ny*f.cols+nx, faction)
		g = g.Add(model.Vec2{X: float64(d[0]), Y: float64(d[1])}.Norm().Scale(diff))
	}
	info.SafeDir = g.Norm()
	return info
}

// Influence returns one faction's own value at a world position.
func (f *Field) Influence(faction string, x, y float64) float64 {
	cx, cy, ok := f.cellOf(model.Vec2{X: x, Y: y})
	if !ok {
		return 0
	}
	return f.own(cy*f.cols+cx, faction)
}

// Total returns the aggregate influence of all factions at a world position.
func (f *Field) Total(x, y float64) float64 {
	cx, cy, ok := f.cellOf(model.Vec2{X: x, Y: y})
	if !ok {
		return 0
	}
	return f.total[cy*f.cols+cx]
}

// Control returns the signed difference between the first two factions in
// sorted order at a world position.
func (f *Field) Control(x, y float64) float64 {
	cx, cy, ok := f.cellOf(model.Vec2{X: x, Y: y})
	if !ok {
		return 0
	}
	return f.control[cy*f.cols+cx]
}

// Grid is a copy of the aggregate array for external consumers.
type Grid struct {
	Cols     int       `json:"cols"`
	Rows     int       `json:"rows"`
	CellSize float64   `json:"cellSize"`
	Tick     int       `json:"tick"`
	Total    []float64 `json:"total"`
}

func (f *Field) Snapshot() Grid {
	return Grid{
		Cols:     f.cols,
		Rows:     f.rows,
		CellSize: f.cfg.CellSize,
		Tick:     f.lastUpdate,
		Total:    slices.Clone(f.total),
	}
}

func (f *Field) own(idx int, faction string) float64 {
	if g, ok := f.factions[faction]; ok {
		return g[idx]
	}
	return 0
}

func (f *Field) enemy(idx int, faction string) float64 {
	var sum float64
	for _, name := range f.order {
		if name == faction {
			continue
		}
		sum += f.factions[name][idx]
	}
	return sum
}

func (f *Field) cellOf(p model.Vec2) (int, int, bool) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return 0, 0, false
	}
	cx := int(math.Floor(p.X / f.cfg.CellSize))
	cy := int(math.Floor(p.Y / f.cfg.CellSize))
	return cx, cy, f.inBounds(cx, cy)
}

func (f *Field) inBounds(cx, cy int) bool {
	return cx >= 0 && cx < f.cols && cy >= 0 && cy < f.rows
}

func (f *Field) center(cx, cy int) model.Vec2 {
	return model.Vec2{
		X: (float64(cx) + 0.5) * f.cfg.CellSize,
		Y: (float64(cy) + 0.5) * f.cfg.CellSize,
	}
}

func (f *Field) passable(cx, cy int) bool {
	if !f.inBounds(cx, cy) {
		return false
	}
	return f.blocked == nil || !f.blocked[cy*f.cols+cx]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
