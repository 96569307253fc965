package tactics

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

type Category string

const (
	Choke      Category = "choke"
	Defensible Category = "defensible"
	Expansion  Category = "expansion"
	Ramp       Category = "ramp"
)

// StrategicPosition is a map feature worth holding or taking. Positions are
// computed once per map and treated as read-only afterwards.
type StrategicPosition struct {
	ID       int        `json:"id"`
	Pos      model.Vec2 `json:"pos"`
	Category Category   `json:"category"`
	Quality  float64    `json:"quality"` // 0..1
	Width    float64    `json:"width,omitempty"`
	Facing   model.Vec2 `json:"facing"`
	Adjacent []int      `json:"adjacent,omitempty"`
}

// AnalyzeMap extracts chokes, ramps, defensible pockets and expansion sites.
// Results are ordered by quality, capped at cfg.MaxPositions, and linked to
// each other when within cfg.AdjacencyRadius and in line of sight.
func AnalyzeMap(t *model.TerrainGrid, resources []model.Vec2, cfg config.Analysis) []StrategicPosition {
	var out []StrategicPosition
	if t != nil && t.Cols > 0 && t.Rows > 0 && len(t.Grid) == t.Cols*t.Rows {
		out = append(out, chokes(t, cfg.ChokeMaxWidth)...)
		out = append(out, ramps(t)...)
		out = append(out, pockets(t)...)
	}
	out = append(out, expansions(resources, cfg.ExpansionCluster)...)

	out = slices.DeleteFunc(out, func(p StrategicPosition) bool { return p.Quality < cfg.MinQuality })
	slices.SortStableFunc(out, func(a, b StrategicPosition) int { return cmp.Compare(b.Quality, a.Quality) })
	if len(out) > cfg.MaxPositions {
		out = out[:cfg.MaxPositions]
	}
	for i := range out {
		out[i].ID = i
	}
	link(out, t, cfg.AdjacencyRadius)

	slog.Info("map analyzed", "positions", len(out), "resources", len(resources))
	return out
}

// run counts passable cells stepping from (c, r) in direction (dc, dr),
// excluding the start. The map edge stops the run like a wall.
func run(t *model.TerrainGrid, c, r, dc, dr int) int {
	n := 0
	for {
		c, r = c+dc, r+dr
		if !t.Passable(c, r) {
			return n
		}
		n++
	}
}

type cell struct{ c, r int }

// chokes finds land cells sitting in the middle of a narrow crossing that
// opens up along the other axis. Neighbouring candidates are suppressed in
// favour of the narrowest.
func chokes(t *model.TerrainGrid, maxWidth int) []StrategicPosition {
	type candidate struct {
		cell
		across int
		facing model.Vec2
		unit   int
	}
	var cands []candidate
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			if t.At(c, r) != model.Land {
				continue
			}
			left, right := run(t, c, r, -1, 0), run(t, c, r, 1, 0)
			up, down := run(t, c, r, 0, -1), run(t, c, r, 0, 1)
			h, v := left+right+1, up+down+1

			switch {
			case v < h && v <= maxWidth && up == (v-1)/2 && left > 0 && right > 0:
				// Walls above and below, passage runs along x.
				cands = append(cands, candidate{cell{c, r}, v, model.Vec2{X: 1}, t.CellH})
			case h < v && h <= maxWidth && left == (h-1)/2 && up > 0 && down > 0:
				cands = append(cands, candidate{cell{c, r}, h, model.Vec2{Y: 1}, t.CellW})
			}
		}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int { return cmp.Compare(a.across, b.across) })

	var kept []candidate
	for _, cd := range cands {
		near := slices.ContainsFunc(kept, func(k candidate) bool {
			return abs(k.c-cd.c) <= maxWidth && abs(k.r-cd.r) <= maxWidth
		})
		if !near {
			kept = append(kept, cd)
		}
	}

	out := make([]StrategicPosition, len(kept))
	for i, k := range kept {
		out[i] = StrategicPosition{
			Pos:      t.ZoneCenter(k.c, k.r),
			Category: Choke,
			Quality:  1 - float64(k.across-1)/float64(maxWidth),
			Width:    float64(k.across * k.unit),
			Facing:   k.facing,
		}
	}
	return out
}

// ramps turns each connected run of bridge cells into one position at its
// centre. Narrow bridges score higher.
func ramps(t *model.TerrainGrid) []StrategicPosition {
	seen := make([]bool, len(t.Grid))
	var out []StrategicPosition
	for i, tt := range t.Grid {
		if tt != model.Bridge || seen[i] {
			continue
		}
		var cells []cell
		queue := []cell{{i % t.Cols, i / t.Cols}}
		seen[i] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			cells = append(cells, cur)
			for _, d := range [4]cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nc, nr := cur.c+d.c, cur.r+d.r
				if nc < 0 || nc >= t.Cols || nr < 0 || nr >= t.Rows {
					continue
				}
				j := nr*t.Cols + nc
				if seen[j] || t.Grid[j] != model.Bridge {
					continue
				}
				seen[j] = true
				queue = append(queue, cell{nc, nr})
			}
		}

		minC, maxC, minR, maxR := cells[0].c, cells[0].c, cells[0].r, cells[0].r
		pts := make([]model.Vec2, len(cells))
		for k, cl := range cells {
			minC, maxC = min(minC, cl.c), max(maxC, cl.c)
			minR, maxR = min(minR, cl.r), max(maxR, cl.r)
			pts[k] = t.ZoneCenter(cl.c, cl.r)
		}
		w, h := maxC-minC+1, maxR-minR+1
		p := StrategicPosition{Pos: model.Centroid(pts), Category: Ramp, Facing: model.Vec2{X: 1}}
		width, unit := h, t.CellH
		if h > w {
			width, unit = w, t.CellW
			p.Facing = model.Vec2{Y: 1}
		}
		p.Width = float64(width * unit)
		p.Quality = 1 / float64(width)
		out = append(out, p)
	}
	return out
}

// pockets finds dead ends: land cells with one open side and at least five
// blocked neighbours. Facing points out of the pocket.
func pockets(t *model.TerrainGrid) []StrategicPosition {
	var out []StrategicPosition
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			if t.At(c, r) != model.Land {
				continue
			}
			blocked := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					nc, nr := c+dc, r+dr
					if (dc == 0 && dr == 0) || nc < 0 || nc >= t.Cols || nr < 0 || nr >= t.Rows {
						continue
					}
					if !t.Passable(nc, nr) {
						blocked++
					}
				}
			}
			if blocked < 5 {
				continue
			}
			var open []cell
			for _, d := range [4]cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				if t.Passable(c+d.c, r+d.r) {
					open = append(open, d)
				}
			}
			if len(open) != 1 {
				continue
			}
			out = append(out, StrategicPosition{
				Pos:      t.ZoneCenter(c, r),
				Category: Defensible,
				Quality:  float64(blocked) / 8,
				Facing:   model.Vec2{X: float64(open[0].c), Y: float64(open[0].r)},
			})
		}
	}
	return out
}

// expansions clusters resource nodes greedily; each cluster becomes one site
// at its centroid. Richer clusters score higher.
func expansions(resources []model.Vec2, radius float64) []StrategicPosition {
	used := make([]bool, len(resources))
	var out []StrategicPosition
	for i, seed := range resources {
		if used[i] {
			continue
		}
		var members []model.Vec2
		for j := i; j < len(resources); j++ {
			if !used[j] && resources[j].Dist(seed) <= radius {
				used[j] = true
				members = append(members, resources[j])
			}
		}
		n := float64(len(members))
		out = append(out, StrategicPosition{
			Pos:      model.Centroid(members),
			Category: Expansion,
			Quality:  n / (n + 2),
		})
	}
	return out
}

func link(ps []StrategicPosition, t *model.TerrainGrid, radius float64) {
	for i := range ps {
		for j := i + 1; j < len(ps); j++ {
			if ps[i].Pos.Dist(ps[j].Pos) > radius || !visible(t, ps[i].Pos, ps[j].Pos) {
				continue
			}
			ps[i].Adjacent = append(ps[i].Adjacent, ps[j].ID)
			ps[j].Adjacent = append(ps[j].Adjacent, ps[i].ID)
		}
	}
}

func visible(t *model.TerrainGrid, a, b model.Vec2) bool {
	c0, r0, ok := t.CellOf(a.X, a.Y)
	if !ok {
		return true
	}
	c1, r1, _ := t.CellOf(b.X, b.Y)
	return t.LineOfSight(c0, r0, c1, r1)
}

// Nearest returns the highest-quality position of one of the categories
// within radius of p, preferring the closer one on ties. An empty category
// list matches everything.
func Nearest(ps []StrategicPosition, p model.Vec2, radius float64, cats ...Category) (StrategicPosition, bool) {
	var best StrategicPosition
	found := false
	for _, sp := range ps {
		if len(cats) > 0 && !slices.Contains(cats, sp.Category) {
			continue
		}
		d := sp.Pos.Dist(p)
		if d > radius {
			continue
		}
		if !found || sp.Quality > best.Quality || (sp.Quality == best.Quality && d < best.Pos.Dist(p)) {
			best, found = sp, true
		}
	}
	return best, found
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
