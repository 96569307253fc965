package sandbox

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

// TerrainConfig controls procedural map generation.
type TerrainConfig struct {
	Cols, Rows int
	CellSize   int
	Seed       int64
	Water      float64 // elevation below which a cell is water
	Cliff      float64 // elevation above which a cell is cliff
	Resources  float64 // richness above which a land cell holds a resource node
}

func DefaultTerrain(seed int64) TerrainConfig {
	return TerrainConfig{Cols: 48, Rows: 48, CellSize: 4, Seed: seed, Water: 0.3, Cliff: 0.72, Resources: 0.78}
}

// GenerateTerrain builds a terrain grid from layered simplex noise. The same
// config always yields the same map.
func GenerateTerrain(cfg TerrainConfig) *model.TerrainGrid {
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	t := &model.TerrainGrid{
		Cols:  cfg.Cols,
		Rows:  cfg.Rows,
		CellW: cfg.CellSize,
		CellH: cfg.CellSize,
		Grid:  make([]model.TerrainType, cfg.Cols*cfg.Rows),
	}
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			elev := octaveNoise(elevNoise, float64(c), float64(r), 4, 0.08, 0.5)
			tt := model.Land
			switch {
			case elev < cfg.Water:
				tt = model.Water
			case elev > cfg.Cliff:
				tt = model.Cliff
			}
			t.Grid[r*cfg.Cols+c] = tt
		}
	}
	return t
}

// GenerateResources places resource nodes on land cells where a second
// noise layer peaks, in world coordinates.
func GenerateResources(t *model.TerrainGrid, cfg TerrainConfig) []model.Vec2 {
	richNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	var out []model.Vec2
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			if t.At(c, r) != model.Land {
				continue
			}
			if octaveNoise(richNoise, float64(c), float64(r), 3, 0.15, 0.5) > cfg.Resources {
				out = append(out, t.ZoneCenter(c, r))
			}
		}
	}
	return out
}

// ClearArea turns every cell within radius world units of center into land.
func ClearArea(t *model.TerrainGrid, center model.Vec2, radius float64) {
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			if t.ZoneCenter(c, r).Dist(center) <= radius {
				t.Grid[r*t.Cols+c] = model.Land
			}
		}
	}
}

// CarveLane guarantees a ground route between a and b: water on the
// straight line becomes bridge, cliff becomes land.
func CarveLane(t *model.TerrainGrid, a, b model.Vec2) {
	steps := int(math.Ceil(a.Dist(b) / float64(min(t.CellW, t.CellH))))
	for i := 0; i <= steps; i++ {
		p := a.Add(b.Sub(a).Scale(float64(i) / float64(max(steps, 1))))
		c, r, ok := t.CellOf(p.X, p.Y)
		if !ok || c < 0 || c >= t.Cols || r < 0 || r >= t.Rows {
			continue
		}
		switch idx := r*t.Cols + c; t.Grid[idx] {
		case model.Water:
			t.Grid[idx] = model.Bridge
		case model.Cliff:
			t.Grid[idx] = model.Land
		}
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
