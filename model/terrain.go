package model

// TerrainType classifies a coarse grid zone.
type TerrainType byte

const (
	Land   TerrainType = 0 // passable ground
	Water  TerrainType = 1 // naval only
	Cliff  TerrainType = 2 // impassable (rock, tree, wall)
	Bridge TerrainType = 3 // land corridor over water
)

func (t TerrainType) String() string {
	switch t {
	case Land:
		return "land"
	case Water:
		return "water"
	case Cliff:
		return "cliff"
	case Bridge:
		return "bridge"
	}
	return "unknown"
}

// TerrainGrid is the coarse passability grid sent by the mod at handshake.
// Each zone covers CellW x CellH map units and stores a single TerrainType.
type TerrainGrid struct {
	Cols  int           `json:"cols"`
	Rows  int           `json:"rows"`
	CellW int           `json:"cellW"`
	CellH int           `json:"cellH"`
	Grid  []TerrainType `json:"grid"` // row-major: Grid[row*Cols + col]
}

// At returns the terrain type at grid coordinates (col, row).
// Returns Land for out-of-bounds coordinates.
func (g *TerrainGrid) At(col, row int) TerrainType {
	if g == nil || col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return Land
	}
	return g.Grid[row*g.Cols+col]
}

// CellOf converts world coordinates to zone coordinates. ok is false for
// zero-sized zones.
func (g *TerrainGrid) CellOf(x, y float64) (col, row int, ok bool) {
	if g == nil || g.CellW <= 0 || g.CellH <= 0 {
		return 0, 0, false
	}
	return int(x) / g.CellW, int(y) / g.CellH, true
}

// AtWorld returns the terrain under a world position, Land when unknown.
func (g *TerrainGrid) AtWorld(x, y float64) TerrainType {
	col, row, ok := g.CellOf(x, y)
	if !ok {
		return Land
	}
	return g.At(col, row)
}

// Passable reports whether ground units can stand in the zone. Out-of-bounds
// zones are impassable so searches stay on the map.
func (g *TerrainGrid) Passable(col, row int) bool {
	if g == nil {
		return true
	}
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return false
	}
	t := g.Grid[row*g.Cols+col]
	return t == Land || t == Bridge
}

// PassableWorld is Passable for a world position.
func (g *TerrainGrid) PassableWorld(x, y float64) bool {
	col, row, ok := g.CellOf(x, y)
	if !ok {
		return true
	}
	return g.Passable(col, row)
}

// ZoneCenter returns the world coordinates of the center of zone (col, row).
func (g *TerrainGrid) ZoneCenter(col, row int) Vec2 {
	return Vec2{
		X: float64(col*g.CellW) + float64(g.CellW)/2,
		Y: float64(row*g.CellH) + float64(g.CellH)/2,
	}
}

// LineOfSight walks the zones between two cells (Bresenham) and reports
// whether none of them is a cliff.
func (g *TerrainGrid) LineOfSight(c0, r0, c1, r1 int) bool {
	dc := abs(c1 - c0)
	dr := -abs(r1 - r0)
	sc, sr := 1, 1
	if c0 > c1 {
		sc = -1
	}
	if r0 > r1 {
		sr = -1
	}
	err := dc + dr
	for {
		if g.At(c0, r0) == Cliff {
			return false
		}
		if c0 == c1 && r0 == r1 {
			return true
		}
		e2 := 2 * err
		if e2 >= dr {
			err += dr
			c0 += sc
		}
		if e2 <= dc {
			err += dc
			r0 += sr
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
