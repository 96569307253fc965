package scheduler

import (
	"math"

	"github.com/nstehr/vimy/vimy-tactics/bt"
	"github.com/nstehr/vimy/vimy-tactics/influence"
)

// never marks a timer that has not fired yet.
const never = math.MinInt32

// MicroState is the scheduler's per-unit runtime state. It is created the
// first time a unit qualifies for evaluation and destroyed when the unit
// dies or drops out of the snapshot.
type MicroState struct {
	UnitID        int
	Tree          *bt.Instance
	Created       int
	LastEval      int
	LastKite      int
	LastThreat    int
	LastTransform int
	Threat        influence.ThreatInfo
	ThreatScore   float64
	Target        int
	Retreating    bool
	RetreatEnd    int
}

func newMicro(id int, tree *bt.Instance, tick int) *MicroState {
	return &MicroState{
		UnitID:        id,
		Tree:          tree,
		Created:       tick,
		LastEval:      never,
		LastKite:      never,
		LastThreat:    never,
		LastTransform: never,
		RetreatEnd:    never,
	}
}

func elapsed(tick, last, interval int) bool { return tick-last >= interval }
