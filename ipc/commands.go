package ipc

import (
	"fmt"
	"math"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

// Command type constants. Must stay in sync with the mod's CommandExecutor.
const (
	TypeMove      = "move"
	TypeAttack    = "attack"
	TypeFormation = "formation"
	TypeTransform = "transform"
)

// Point is a cell position in mod coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointOf rounds a world position to mod coordinates.
func PointOf(v model.Vec2) Point {
	return Point{X: int(math.Round(v.X)), Y: int(math.Round(v.Y))}
}

// Every command carries the tick it was issued for and the issuing player so
// the simulation can apply it deterministically.

type MoveCommand struct {
	Tick      int     `json:"tick"`
	Player    string  `json:"player"`
	ActorID   uint32  `json:"actor_id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Waypoints []Point `json:"waypoints,omitempty"`
}

type AttackCommand struct {
	Tick     int    `json:"tick"`
	Player   string `json:"player"`
	ActorID  uint32 `json:"actor_id"`
	TargetID uint32 `json:"target_id"`
}

type FormationCommand struct {
	Tick    int    `json:"tick"`
	Player  string `json:"player"`
	ActorID uint32 `json:"actor_id"`
	Group   string `json:"group"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

type TransformCommand struct {
	Tick    int    `json:"tick"`
	Player  string `json:"player"`
	ActorID uint32 `json:"actor_id"`
	Mode    string `json:"mode"`
}

// CommandBatch is everything issued for one player on one tick, in emission
// order.
type CommandBatch struct {
	Tick     int        `json:"tick"`
	Player   string     `json:"player"`
	Commands []Envelope `json:"commands"`
}

// Add appends a typed command.
func (b *CommandBatch) Add(cmdType string, cmd any) error {
	env, err := NewEnvelope(cmdType, cmd)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", cmdType, err)
	}
	b.Commands = append(b.Commands, env)
	return nil
}
