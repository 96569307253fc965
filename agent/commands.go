package agent

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
)

// toBatch converts scheduler commands to the mod's wire commands, keeping
// emission order.
func toBatch(tick int, player string, cmds []scheduler.Command) (ipc.CommandBatch, error) {
	batch := ipc.CommandBatch{Tick: tick, Player: player}
	for _, c := range cmds {
		var err error
		switch c.Kind {
		case scheduler.Move:
			mv := ipc.MoveCommand{Tick: c.Tick, Player: c.Player, ActorID: uint32(c.UnitID)}
			p := ipc.PointOf(c.Pos)
			mv.X, mv.Y = p.X, p.Y
			for _, w := range c.Waypoints {
				mv.Waypoints = append(mv.Waypoints, ipc.PointOf(w))
			}
			err = batch.Add(ipc.TypeMove, mv)
		case scheduler.Attack:
			err = batch.Add(ipc.TypeAttack, ipc.AttackCommand{
				Tick: c.Tick, Player: c.Player, ActorID: uint32(c.UnitID), TargetID: uint32(c.TargetID),
			})
		case scheduler.Formation:
			p := ipc.PointOf(c.Pos)
			err = batch.Add(ipc.TypeFormation, ipc.FormationCommand{
				Tick: c.Tick, Player: c.Player, ActorID: uint32(c.UnitID), Group: c.GroupID, X: p.X, Y: p.Y,
			})
		case scheduler.Transform:
			err = batch.Add(ipc.TypeTransform, ipc.TransformCommand{
				Tick: c.Tick, Player: c.Player, ActorID: uint32(c.UnitID), Mode: c.Mode,
			})
		default:
			err = fmt.Errorf("unknown command kind %q for unit %d", c.Kind, c.UnitID)
		}
		if err != nil {
			return ipc.CommandBatch{}, err
		}
	}
	return batch, nil
}
