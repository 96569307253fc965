package model

import "testing"

func testGrid() *TerrainGrid {
	return &TerrainGrid{
		Cols:  4,
		Rows:  4,
		CellW: 8,
		CellH: 8,
		Grid: []TerrainType{
			Land, Land, Water, Water,
			Land, Land, Water, Water,
			Cliff, Bridge, Land, Land,
			Cliff, Land, Land, Land,
		},
	}
}

func TestTerrainGridAt(t *testing.T) {
	grid := testGrid()
	tests := []struct {
		col, row int
		want     TerrainType
	}{
		{0, 0, Land},
		{2, 0, Water},
		{0, 2, Cliff},
		{1, 2, Bridge},
		{3, 3, Land},
		{-1, 0, Land},
		{4, 4, Land},
	}
	for _, tc := range tests {
		if got := grid.At(tc.col, tc.row); got != tc.want {
			t.Errorf("At(%d, %d) = %s, want %s", tc.col, tc.row, got, tc.want)
		}
	}
}

func TestTerrainGridAtWorld(t *testing.T) {
	grid := testGrid()
	tests := []struct {
		x, y float64
		want TerrainType
	}{
		{0, 0, Land},
		{4.5, 0, Land},
		{16, 0, Water},
		{24, 16, Land},
		{0, 16, Cliff},
		{8, 16, Bridge},
	}
	for _, tc := range tests {
		if got := grid.AtWorld(tc.x, tc.y); got != tc.want {
			t.Errorf("AtWorld(%.1f, %.1f) = %s, want %s", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestTerrainGridZeroCells(t *testing.T) {
	grid := &TerrainGrid{Cols: 2, Rows: 2, Grid: []TerrainType{Water, Water, Water, Water}}
	if got := grid.AtWorld(5, 5); got != Land {
		t.Errorf("AtWorld with zero cells = %s, want land", got)
	}
	if !grid.PassableWorld(5, 5) {
		t.Error("PassableWorld with zero cells should be true")
	}
}

func TestTerrainGridPassable(t *testing.T) {
	grid := testGrid()
	if !grid.Passable(1, 2) {
		t.Error("bridge should be passable")
	}
	if grid.Passable(2, 0) {
		t.Error("water should not be passable")
	}
	if grid.Passable(0, 3) {
		t.Error("cliff should not be passable")
	}
	if grid.Passable(-1, 0) || grid.Passable(0, 4) {
		t.Error("out-of-bounds zones should not be passable")
	}

	var none *TerrainGrid
	if !none.Passable(3, 3) {
		t.Error("nil grid should treat everything as passable")
	}
}

func TestTerrainGridZoneCenter(t *testing.T) {
	grid := testGrid()
	if got := grid.ZoneCenter(0, 0); got != (Vec2{4, 4}) {
		t.Errorf("ZoneCenter(0,0) = %v, want (4,4)", got)
	}
	if got := grid.ZoneCenter(1, 2); got != (Vec2{12, 20}) {
		t.Errorf("ZoneCenter(1,2) = %v, want (12,20)", got)
	}
}

func TestTerrainGridLineOfSight(t *testing.T) {
	grid := testGrid()
	if !grid.LineOfSight(0, 0, 1, 1) {
		t.Error("expected clear line between two land zones")
	}
	// (0,1) -> (0,3) crosses the cliff at (0,2).
	if grid.LineOfSight(0, 1, 0, 3) {
		t.Error("expected cliff to block line of sight")
	}
	// Water does not block sight.
	if !grid.LineOfSight(1, 0, 3, 0) {
		t.Error("water should not block line of sight")
	}
}
