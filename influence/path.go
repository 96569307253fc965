package influence

import (
	"container/heap"
	"math"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

var dirs = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

type pathNode struct {
	idx    int
	g, h   float64
	parent *pathNode
	index  int // heap index, -1 once popped
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].h < ol[j].h
}
func (ol openList) Swap(i, j int) { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x any)   { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*ol = old[:len(old)-1]
	return n
}

// octile is the exact unobstructed 8-direction distance in cells.
func octile(ax, ay, bx, by int) float64 {
	dx := math.Abs(float64(ax - bx))
	dy := math.Abs(float64(ay - by))
	return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
}

// FindThreatAwarePath searches the grid from start to end. Each step costs
// its length in cells plus aversion times the enemy influence at the
// destination cell. Waypoints are cell centres, start cell excluded. When no
// path exists the result is the single waypoint end.
func (f *Field) FindThreatAwarePath(start, end model.Vec2, faction string, aversion float64) []model.Vec2 {
	direct := []model.Vec2{end}
	sx, sy, ok := f.cellOf(start)
	if !ok {
		return direct
	}
	gx, gy, ok := f.cellOf(end)
	if !ok || (sx == gx && sy == gy) || !f.passable(gx, gy) {
		return direct
	}
	aversion = clamp(aversion, 0, 1)
	threatScale := aversion * f.cfg.PathThreatScale

	startNode := &pathNode{idx: sy*f.cols + sx, h: octile(sx, sy, gx, gy)}
	ol := &openList{}
	heap.Push(ol, startNode)

	best := map[int]*pathNode{startNode.idx: startNode}
	closed := make(map[int]bool)
	goal := gy*f.cols + gx

	for expanded := 0; ol.Len() > 0; expanded++ {
		if expanded >= f.cfg.MaxPathNodes && f.cfg.MaxPathNodes > 0 {
			return direct
		}
		cur := heap.Pop(ol).(*pathNode)
		if cur.idx == goal {
			return f.buildPath(cur)
		}
		closed[cur.idx] = true
		cx, cy := cur.idx%f.cols, cur.idx/f.cols

		for _, d := range dirs {
			nx, ny := cx+d[0], cy+d[1]
			if !f.passable(nx, ny) {
				continue
			}
			diagonal := d[0] != 0 && d[1] != 0
			if diagonal && (!f.passable(cx+d[0], cy) || !f.passable(cx, cy+d[1])) {
				continue
			}
			nidx := ny*f.cols + nx
			if closed[nidx] {
				continue
			}
			step := 1.0
			if diagonal {
				step = math.Sqrt2
			}
			if threatScale > 0 {
				step += threatScale * f.enemy(nidx, faction)
			}
			g := cur.g + step

			if n, ok := best[nidx]; ok {
				if g >= n.g {
					continue
				}
				n.g = g
				n.parent = cur
				if n.index >= 0 {
					heap.Fix(ol, n.index)
				} else {
					heap.Push(ol, n)
				}
				continue
			}
			n := &pathNode{idx: nidx, g: g, h: octile(nx, ny, gx, gy), parent: cur}
			best[nidx] = n
			heap.Push(ol, n)
		}
	}
	return direct
}

func (f *Field) buildPath(end *pathNode) []model.Vec2 {
	var cells []int
	for n := end; n.parent != nil; n = n.parent {
		cells = append(cells, n.idx)
	}
	path := make([]model.Vec2, len(cells))
	for i, idx := range cells {
		path[len(cells)-1-i] = f.center(idx%f.cols, idx/f.cols)
	}
	return path
}

// PathCost sums the movement cost, in cells, of walking from start through
// the waypoints.
func (f *Field) PathCost(start model.Vec2, path []model.Vec2) float64 {
	px, py, _ := f.cellOf(start)
	var cost float64
	for _, p := range path {
		x, y, _ := f.cellOf(p)
		cost += octile(px, py, x, y)
		px, py = x, y
	}
	return cost
}
