package ipc

import "github.com/nstehr/vimy/vimy-tactics/model"

// These constants must stay in sync with the mod's MessageType enum.
const (
	TypeHello          = "hello"
	TypeAck            = "ack"
	TypeGameState      = "game_state"
	TypeCommands       = "commands"
	TypeWorkerSnapshot = "worker_snapshot"
	TypeWorkerBatch    = "worker_batch"
)

type HelloMessage struct {
	Player    string       `json:"player"`
	Faction   string       `json:"faction"`
	MapWidth  int          `json:"mapWidth"`
	MapHeight int          `json:"mapHeight"`
	Terrain   *TerrainData `json:"terrain,omitempty"`
	Resources []model.Vec2 `json:"resources,omitempty"`
}

// TerrainData carries the coarse terrain grid from the mod. Optional: without
// it the sidecar treats every cell as passable and skips choke analysis.
type TerrainData struct {
	Cols  int   `json:"cols"`
	Rows  int   `json:"rows"`
	CellW int   `json:"cellW"`
	CellH int   `json:"cellH"`
	Grid  []int `json:"grid"`
}

// TerrainGrid converts the wire form. It returns nil when the payload is empty or
// its size does not match the declared dimensions.
func (t *TerrainData) TerrainGrid() *model.TerrainGrid {
	if t == nil || t.Cols <= 0 || t.Rows <= 0 || len(t.Grid) != t.Cols*t.Rows {
		return nil
	}
	g := &model.TerrainGrid{Cols: t.Cols, Rows: t.Rows, CellW: t.CellW, CellH: t.CellH, Grid: make([]model.TerrainType, len(t.Grid))}
	for i, v := range t.Grid {
		g.Grid[i] = model.TerrainType(v)
	}
	return g
}

type AckMessage struct {
	Status string `json:"status"`
}

// NewTerrainData converts a terrain grid to its wire form.
func NewTerrainData(g *model.TerrainGrid) *TerrainData {
	if g == nil {
		return nil
	}
	t := &TerrainData{Cols: g.Cols, Rows: g.Rows, CellW: g.CellW, CellH: g.CellH, Grid: make([]int, len(g.Grid))}
	for i, v := range g.Grid {
		t.Grid[i] = int(v)
	}
	return t
}
