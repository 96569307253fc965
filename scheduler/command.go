package scheduler

import (
	"container/heap"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

type Kind string

const (
	Move      Kind = "move"
	Attack    Kind = "attack"
	Formation Kind = "formation"
	Transform Kind = "transform"
)

// Command is an order for the authoritative simulation to apply. The core
// never mutates game state itself.
type Command struct {
	Kind      Kind         `json:"kind"`
	Tick      int          `json:"tick"`
	Player    string       `json:"player"`
	UnitID    int          `json:"unitId"`
	TargetID  int          `json:"targetId,omitempty"`
	Pos       model.Vec2   `json:"pos"`
	Waypoints []model.Vec2 `json:"waypoints,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	GroupID   string       `json:"groupId,omitempty"`
}

type delayed struct {
	cmd Command
	due int
	seq int
}

// delayQueue orders commands by due tick, then by enqueue order.
type delayQueue []delayed

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}
func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)   { *q = append(*q, x.(delayed)) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	d := old[n-1]
	*q = old[:n-1]
	return d
}

// popDue removes and returns every entry due at or before tick, in order.
func (q *delayQueue) popDue(tick int) []delayed {
	var out []delayed
	for q.Len() > 0 && (*q)[0].due <= tick {
		out = append(out, heap.Pop(q).(delayed))
	}
	return out
}

// pending reports whether a command for unit is still waiting in the queue.
func (q delayQueue) pending(unit int) bool {
	for _, d := range q {
		if d.cmd.UnitID == unit {
			return true
		}
	}
	return false
}
