// Package journal records every command the tactical core emits, keyed by
// session and tick, so a match can be audited or replayed. It also caches
// per-map strategic analysis so a map is only analysed once.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
	"github.com/nstehr/vimy/vimy-tactics/tactics"
)

// Journal wraps a SQLite connection.
type Journal struct {
	conn *sqlx.DB
}

// Open opens or creates the journal at path. Use ":memory:" only for
// throwaway runs; WAL needs a file.
func Open(path string) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer at a time; the simulation goroutine is the only caller.
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		tick INTEGER NOT NULL,
		player TEXT NOT NULL,
		kind TEXT NOT NULL,
		unit_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		mode TEXT NOT NULL,
		group_id TEXT NOT NULL,
		waypoints_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis (
		map_key TEXT PRIMARY KEY,
		positions_json TEXT NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commands_session_tick ON commands(session, tick);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// Record appends one tick's commands for a session in emission order.
func (j *Journal) Record(session string, tick int, cmds []scheduler.Command) error {
	if len(cmds) == 0 {
		return nil
	}

	tx, err := j.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO commands
		(session, tick, player, kind, unit_id, target_id, x, y, mode, group_id, waypoints_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cmds {
		wp, err := json.Marshal(c.Waypoints)
		if err != nil {
			return fmt.Errorf("encode waypoints for unit %d: %w", c.UnitID, err)
		}
		_, err = stmt.Exec(session, tick, c.Player, string(c.Kind), c.UnitID, c.TargetID,
			c.Pos.X, c.Pos.Y, c.Mode, c.GroupID, string(wp))
		if err != nil {
			return fmt.Errorf("insert %s command for unit %d: %w", c.Kind, c.UnitID, err)
		}
	}
	return tx.Commit()
}

type commandRow struct {
	Tick      int     `db:"tick"`
	Player    string  `db:"player"`
	Kind      string  `db:"kind"`
	UnitID    int     `db:"unit_id"`
	TargetID  int     `db:"target_id"`
	X         float64 `db:"x"`
	Y         float64 `db:"y"`
	Mode      string  `db:"mode"`
	GroupID   string  `db:"group_id"`
	Waypoints string  `db:"waypoints_json"`
}

// Commands returns a session's commands with from <= tick <= to, in the
// order they were recorded.
func (j *Journal) Commands(session string, from, to int) ([]scheduler.Command, error) {
	var rows []commandRow
	err := j.conn.Select(&rows, `SELECT tick, player, kind, unit_id, target_id, x, y, mode, group_id, waypoints_json
		FROM commands WHERE session = ? AND tick BETWEEN ? AND ? ORDER BY id`, session, from, to)
	if err != nil {
		return nil, fmt.Errorf("select commands: %w", err)
	}

	out := make([]scheduler.Command, 0, len(rows))
	for _, r := range rows {
		c := scheduler.Command{
			Kind:     scheduler.Kind(r.Kind),
			Tick:     r.Tick,
			Player:   r.Player,
			UnitID:   r.UnitID,
			TargetID: r.TargetID,
			Pos:      model.V(r.X, r.Y),
			Mode:     r.Mode,
			GroupID:  r.GroupID,
		}
		if err := json.Unmarshal([]byte(r.Waypoints), &c.Waypoints); err != nil {
			return nil, fmt.Errorf("decode waypoints at tick %d: %w", r.Tick, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CommandCounts tallies a session's recorded commands by kind.
func (j *Journal) CommandCounts(session string) (map[scheduler.Kind]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	if err := j.conn.Select(&rows, "SELECT kind, COUNT(*) AS n FROM commands WHERE session = ? GROUP BY kind", session); err != nil {
		return nil, fmt.Errorf("count commands: %w", err)
	}
	out := make(map[scheduler.Kind]int, len(rows))
	for _, r := range rows {
		out[scheduler.Kind(r.Kind)] = r.Count
	}
	return out, nil
}

// Sessions lists every session with recorded commands, oldest first.
func (j *Journal) Sessions() ([]string, error) {
	var out []string
	if err := j.conn.Select(&out, "SELECT session FROM commands GROUP BY session ORDER BY MIN(id)"); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// SaveAnalysis stores the strategic positions computed for a map.
func (j *Journal) SaveAnalysis(mapKey string, ps []tactics.StrategicPosition) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = j.conn.Exec("INSERT OR REPLACE INTO analysis (map_key, positions_json, count) VALUES (?, ?, ?)",
		mapKey, string(data), len(ps))
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", mapKey, err)
	}
	slog.Debug("map analysis cached", "map", mapKey, "positions", len(ps))
	return nil
}

// LoadAnalysis returns the cached positions for a map. ok is false when the
// map has not been analysed yet.
func (j *Journal) LoadAnalysis(mapKey string) (ps []tactics.StrategicPosition, ok bool, err error) {
	var data string
	err = j.conn.Get(&data, "SELECT positions_json FROM analysis WHERE map_key = ?", mapKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load analysis %s: %w", mapKey, err)
	}
	if err := json.Unmarshal([]byte(data), &ps); err != nil {
		return nil, false, fmt.Errorf("decode analysis %s: %w", mapKey, err)
	}
	return ps, true, nil
}

var mapNamespace = uuid.MustParse("6f1b5a4e-2c0d-4d53-9a57-3c1e8f0b7a21")

// MapKey derives a stable key from a map's terrain and resource layout.
// Maps with identical terrain and resources share a key.
func MapKey(t *model.TerrainGrid, resources []model.Vec2) string {
	var buf []byte
	if t != nil {
		buf = fmt.Appendf(buf, "%dx%d@%dx%d;", t.Cols, t.Rows, t.CellW, t.CellH)
		for _, c := range t.Grid {
			buf = append(buf, byte('0'+c))
		}
	}
	for _, r := range resources {
		buf = fmt.Appendf(buf, ";%.1f,%.1f", r.X, r.Y)
	}
	return uuid.NewSHA1(mapNamespace, buf).String()
}
