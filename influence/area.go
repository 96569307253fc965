package influence

import (
	"cmp"
	"math"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Area is a scored candidate cell centre.
type Area struct {
	Pos   model.Vec2 `json:"pos"`
	Score float64    `json:"score"`
}

// RankAreas scores every passable cell centre within radius of base and
// returns the n best, highest first. Score is
// -Enemy*enemy - Distance*dist/radius + Friendly*own.
func (f *Field) RankAreas(base model.Vec2, radius float64, faction string, w config.AreaWeights, n int) []Area {
	if radius <= 0 || n <= 0 {
		return nil
	}
	cs := f.cfg.CellSize
	minX := max(0, int(math.Floor((base.X-radius)/cs)))
	maxX := min(f.cols-1, int(math.Floor((base.X+radius)/cs)))
	minY := max(0, int(math.Floor((base.Y-radius)/cs)))
	maxY := min(f.rows-1, int(math.Floor((base.Y+radius)/cs)))

	var out []Area
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			if !f.passable(cx, cy) {
				continue
			}
			p := f.center(cx, cy)
			dist := p.Dist(base)
			if dist > radius {
				continue
			}
			idx := cy*f.cols + cx
			score := -w.Enemy*f.enemy(idx, faction) - w.Distance*dist/radius + w.Friendly*f.own(idx, faction)
			out = append(out, Area{Pos: p, Score: score})
		}
	}
	slices.SortStableFunc(out, func(a, b Area) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// FindBestArea returns the best cell centre within radius of base. ok is
// false when no passable cell lies in range.
func (f *Field) FindBestArea(base model.Vec2, radius float64, faction string, w config.AreaWeights) (model.Vec2, float64, bool) {
	best := f.RankAreas(base, radius, faction, w, 1)
	if len(best) == 0 {
		return model.Vec2{}, 0, false
	}
	return best[0].Pos, best[0].Score, true
}
