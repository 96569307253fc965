package sandbox

import (
	"slices"
	"testing"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

func TestGenerateTerrainDeterministic(t *testing.T) {
	cfg := DefaultTerrain(42)
	a, b := GenerateTerrain(cfg), GenerateTerrain(cfg)
	if !slices.Equal(a.Grid, b.Grid) {
		t.Error("same seed produced different maps")
	}
	if len(a.Grid) != cfg.Cols*cfg.Rows || a.CellW != cfg.CellSize {
		t.Errorf("grid %dx%d cell %d, %d cells", a.Cols, a.Rows, a.CellW, len(a.Grid))
	}

	other := DefaultTerrain(43)
	if slices.Equal(a.Grid, GenerateTerrain(other).Grid) {
		t.Error("different seeds produced the same map")
	}

	counts := make(map[model.TerrainType]int)
	for _, c := range a.Grid {
		counts[c]++
	}
	if counts[model.Land] == 0 {
		t.Errorf("no land generated: %v", counts)
	}
}

func TestGenerateResourcesOnLand(t *testing.T) {
	cfg := DefaultTerrain(7)
	cfg.Resources = 0.5
	terrain := GenerateTerrain(cfg)
	res := GenerateResources(terrain, cfg)
	if len(res) == 0 {
		t.Fatal("no resources at a low threshold")
	}
	for _, r := range res {
		if terrain.AtWorld(r.X, r.Y) != model.Land {
			t.Errorf("resource at %v is on %s", r, terrain.AtWorld(r.X, r.Y))
		}
	}
}

func TestCarveLane(t *testing.T) {
	terrain := &model.TerrainGrid{Cols: 5, Rows: 1, CellW: 4, CellH: 4, Grid: []model.TerrainType{
		model.Land, model.Water, model.Cliff, model.Water, model.Land,
	}}
	CarveLane(terrain, model.V(2, 2), model.V(18, 2))
	want := []model.TerrainType{model.Land, model.Bridge, model.Land, model.Bridge, model.Land}
	if !slices.Equal(terrain.Grid, want) {
		t.Errorf("grid = %v, want %v", terrain.Grid, want)
	}
}

func TestClearArea(t *testing.T) {
	terrain := &model.TerrainGrid{Cols: 3, Rows: 3, CellW: 4, CellH: 4, Grid: slices.Repeat([]model.TerrainType{model.Cliff}, 9)}
	ClearArea(terrain, model.V(6, 6), 4)
	for r := range 3 {
		for c := range 3 {
			want := model.Cliff
			if c == 1 || r == 1 {
				want = model.Land
			}
			if got := terrain.At(c, r); got != want {
				t.Errorf("cell (%d,%d) = %s, want %s", c, r, got, want)
			}
		}
	}
}

func TestScenarioBuild(t *testing.T) {
	w, err := DefaultScenario(1).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	alive := w.Alive()
	want := len(Roster)*3 + 1
	if alive["Multi0"] != want || alive["Multi1"] != want {
		t.Errorf("alive = %v, want %d each", alive, want)
	}
	if _, ok := w.Winner(); ok {
		t.Error("winner before the battle")
	}

	gs := w.Snapshot("Multi0")
	home, ok := gs.HomeBase()
	if !ok {
		t.Fatal("no home base")
	}
	if enemyBase := gs.EnemyBuildings[0].Pos(); home.Dist(enemyBase) < float64(gs.MapWidth)/2 {
		t.Errorf("bases too close: %v and %v", home, enemyBase)
	}
	if !w.Terrain().PassableWorld(home.X, home.Y) {
		t.Error("base sits on impassable ground")
	}

	if _, err := (Scenario{Terrain: DefaultTerrain(1), Players: [2]string{"A", "A"}}).Build(); err == nil {
		t.Error("expected error for duplicate players")
	}
}
