package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

// EventKind identifies a lifecycle change the agent reacts to between two
// consecutive game states.
type EventKind string

const (
	EventUnitLost             EventKind = "unit_lost"
	EventBuildingLost         EventKind = "building_lost"
	EventCriticalBuildingLost EventKind = "critical_building_lost"
	EventArmyDevastated       EventKind = "army_devastated"
	EventFirstContact         EventKind = "first_contact"
	EventEnemyBaseDiscovered  EventKind = "enemy_base_discovered"
)

// Event is a significant change detected by diffing consecutive game states.
// IDs lists the units or buildings involved, sorted.
type Event struct {
	Kind   EventKind
	Tick   int
	IDs    []int
	Detail string
}

func (e Event) String() string {
	return fmt.Sprintf("[tick %d] %s: %s", e.Tick, e.Kind, e.Detail)
}

// stateSnapshot captures the diffable fields from a game state tick.
type stateSnapshot struct {
	unitIDs       map[int]bool
	buildingIDs   map[int]string // id → type for owned buildings
	critical      map[int]bool
	combatCount   int
	enemiesSeen   bool
	enemyBaseSeen bool
}

// devastationFloor keeps early skirmishes between a handful of units from
// counting as a lost army.
const devastationFloor = 6

// criticalBuildingTypes are buildings whose loss changes what the army can
// fall back on.
var criticalBuildingTypes = map[string]bool{
	"fact": true, // Construction Yard
	"weap": true, // War Factory
	"barr": true,
	"tent": true,
	"proc": true, // Refinery
}

// baseType strips faction variants (e.g. "fact.england" → "fact") and lowercases.
func baseType(t string) string {
	base := strings.ToLower(t)
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return base
}

func isCriticalBuilding(b model.Building) bool {
	return b.Base || criticalBuildingTypes[baseType(b.Type)]
}

func isCombatUnit(u model.Unit) bool {
	return !u.Worker && u.CanAttack()
}

func takeSnapshot(gs model.GameState) stateSnapshot {
	snap := stateSnapshot{
		unitIDs:     make(map[int]bool, len(gs.Units)),
		buildingIDs: make(map[int]string, len(gs.Buildings)),
		critical:    make(map[int]bool),
	}
	for _, u := range gs.Units {
		if !u.Alive() {
			continue
		}
		snap.unitIDs[u.ID] = true
		if isCombatUnit(u) {
			snap.combatCount++
		}
	}
	for _, b := range gs.Buildings {
		if !b.Alive() {
			continue
		}
		snap.buildingIDs[b.ID] = b.Type
		if isCriticalBuilding(b) {
			snap.critical[b.ID] = true
		}
	}
	for _, e := range gs.Enemies {
		if e.Alive() {
			snap.enemiesSeen = true
			break
		}
	}
	for _, b := range gs.EnemyBuildings {
		if b.Alive() {
			snap.enemyBaseSeen = true
			break
		}
	}
	return snap
}

// detectEvents compares gs against the previous snapshot and returns the
// events it implies. Returns nil if prev is nil (first tick).
func detectEvents(gs model.GameState, prev *stateSnapshot) []Event {
	if prev == nil {
		return nil
	}

	var events []Event
	cur := takeSnapshot(gs)

	if lost := missing(prev.unitIDs, cur.unitIDs); len(lost) > 0 {
		events = append(events, Event{
			Kind:   EventUnitLost,
			Tick:   gs.Tick,
			IDs:    lost,
			Detail: fmt.Sprintf("%d units lost", len(lost)),
		})
	}

	var lostBuildings, lostCritical []int
	for id := range prev.buildingIDs {
		if _, ok := cur.buildingIDs[id]; ok {
			continue
		}
		if prev.critical[id] {
			lostCritical = append(lostCritical, id)
		} else {
			lostBuildings = append(lostBuildings, id)
		}
	}
	if len(lostCritical) > 0 {
		slices.Sort(lostCritical)
		types := make([]string, len(lostCritical))
		for i, id := range lostCritical {
			types[i] = prev.buildingIDs[id]
		}
		events = append(events, Event{
			Kind:   EventCriticalBuildingLost,
			Tick:   gs.Tick,
			IDs:    lostCritical,
			Detail: "lost " + strings.Join(types, ", "),
		})
	}
	if len(lostBuildings) > 0 {
		slices.Sort(lostBuildings)
		events = append(events, Event{
			Kind:   EventBuildingLost,
			Tick:   gs.Tick,
			IDs:    lostBuildings,
			Detail: fmt.Sprintf("%d buildings lost", len(lostBuildings)),
		})
	}

	// >50% of combat units gone since last tick, with a floor to avoid early noise.
	if prev.combatCount >= devastationFloor && cur.combatCount > 0 {
		lost := prev.combatCount - cur.combatCount
		if lost > 0 && float64(lost)/float64(prev.combatCount) > 0.5 {
			events = append(events, Event{
				Kind:   EventArmyDevastated,
				Tick:   gs.Tick,
				Detail: fmt.Sprintf("%d→%d combat units (lost %d%%)", prev.combatCount, cur.combatCount, 100*lost/prev.combatCount),
			})
		}
	}

	if !prev.enemiesSeen && cur.enemiesSeen {
		events = append(events, Event{
			Kind:   EventFirstContact,
			Tick:   gs.Tick,
			Detail: fmt.Sprintf("%d enemies now visible", len(gs.Enemies)),
		})
	}

	if !prev.enemyBaseSeen && cur.enemyBaseSeen {
		events = append(events, Event{
			Kind:   EventEnemyBaseDiscovered,
			Tick:   gs.Tick,
			Detail: fmt.Sprintf("%d enemy buildings sighted", len(gs.EnemyBuildings)),
		})
	}

	return events
}

// missing returns the sorted IDs in prev that are absent from cur.
func missing(prev, cur map[int]bool) []int {
	var out []int
	for id := range prev {
		if !cur[id] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
