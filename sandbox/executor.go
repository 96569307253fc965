package sandbox

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
)

// ApplyBatch decodes a wire command batch the way the mod's executor does
// and applies it. Commands of unknown type are skipped.
func (w *World) ApplyBatch(b ipc.CommandBatch) (int, error) {
	cmds := make([]scheduler.Command, 0, len(b.Commands))
	for _, env := range b.Commands {
		var cmd scheduler.Command
		switch env.Type {
		case ipc.TypeMove:
			var mv ipc.MoveCommand
			if err := env.Decode(&mv); err != nil {
				return 0, err
			}
			cmd = scheduler.Command{Kind: scheduler.Move, Tick: mv.Tick, Player: mv.Player, UnitID: int(mv.ActorID),
				Pos: model.V(float64(mv.X), float64(mv.Y))}
			for _, p := range mv.Waypoints {
				cmd.Waypoints = append(cmd.Waypoints, model.V(float64(p.X), float64(p.Y)))
			}
		case ipc.TypeAttack:
			var at ipc.AttackCommand
			if err := env.Decode(&at); err != nil {
				return 0, err
			}
			cmd = scheduler.Command{Kind: scheduler.Attack, Tick: at.Tick, Player: at.Player, UnitID: int(at.ActorID),
				TargetID: int(at.TargetID)}
		case ipc.TypeFormation:
			var fc ipc.FormationCommand
			if err := env.Decode(&fc); err != nil {
				return 0, err
			}
			cmd = scheduler.Command{Kind: scheduler.Formation, Tick: fc.Tick, Player: fc.Player, UnitID: int(fc.ActorID),
				Pos: model.V(float64(fc.X), float64(fc.Y)), GroupID: fc.Group}
		case ipc.TypeTransform:
			var tc ipc.TransformCommand
			if err := env.Decode(&tc); err != nil {
				return 0, err
			}
			cmd = scheduler.Command{Kind: scheduler.Transform, Tick: tc.Tick, Player: tc.Player, UnitID: int(tc.ActorID),
				Mode: tc.Mode}
		default:
			continue
		}
		if cmd.Player != b.Player {
			return 0, fmt.Errorf("%s command for unit %d from %q in %q's batch", env.Type, cmd.UnitID, cmd.Player, b.Player)
		}
		cmds = append(cmds, cmd)
	}
	return w.Apply(cmds), nil
}
