package model

// Unit activity values reported by the mod.
const (
	ActivityIdle         = "idle"
	ActivityMoving       = "moving"
	ActivityAttacking    = "attacking"
	ActivityAttackMoving = "attack_moving"
)

// GameState is one player's view of the simulation at a tick. Own units and
// buildings are split from visible enemy ones the same way the mod reports them.
type GameState struct {
	Tick           int        `json:"tick"`
	Player         string     `json:"player"`
	Units          []Unit     `json:"units"`
	Buildings      []Building `json:"buildings"`
	Enemies        []Unit     `json:"enemies"`
	EnemyBuildings []Building `json:"enemyBuildings"`
	Resources      []Vec2     `json:"resources,omitempty"`
	MapWidth       int        `json:"mapWidth"`
	MapHeight      int        `json:"mapHeight"`
}

type Unit struct {
	ID            int     `json:"id"`
	Owner         string  `json:"owner"`
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	HP            int     `json:"hp"`
	MaxHP         int     `json:"maxHp"`
	Activity      string  `json:"activity"`
	TargetID      int     `json:"targetId,omitempty"`
	Damage        float64 `json:"damage"`
	AttackSpeed   float64 `json:"attackSpeed"` // attacks per second
	Range         float64 `json:"range"`
	SightRange    float64 `json:"sightRange"`
	Flying        bool    `json:"flying"`
	Supply        int     `json:"supply"`
	Worker        bool    `json:"worker"`
	Transformable bool    `json:"transformable,omitempty"`
	Mode          string  `json:"mode,omitempty"`
}

func (u Unit) TypeName() string { return u.Type }

func (u Unit) Pos() Vec2 { return Vec2{X: u.X, Y: u.Y} }

func (u Unit) Alive() bool { return u.HP > 0 }

// HealthFraction returns HP/MaxHP, or 1 when MaxHP is unknown.
func (u Unit) HealthFraction() float64 {
	if u.MaxHP <= 0 {
		return 1
	}
	return float64(u.HP) / float64(u.MaxHP)
}

func (u Unit) DPS() float64 { return u.Damage * u.AttackSpeed }

func (u Unit) CanAttack() bool { return u.Damage > 0 }

// InCombat reports whether the unit is in a state the micro layer should act on.
func (u Unit) InCombat() bool {
	switch u.Activity {
	case ActivityAttacking, ActivityMoving, ActivityAttackMoving:
		return true
	case ActivityIdle, "":
		return u.CanAttack()
	}
	return false
}

type Building struct {
	ID        int     `json:"id"`
	Owner     string  `json:"owner"`
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	HP        int     `json:"hp"`
	MaxHP     int     `json:"maxHp"`
	Completed bool    `json:"completed"`
	CanAttack bool    `json:"canAttack"`
	Damage    float64 `json:"damage,omitempty"`
	Range     float64 `json:"range,omitempty"`
	Base      bool    `json:"base,omitempty"` // construction yard / HQ
}

func (b Building) TypeName() string { return b.Type }

func (b Building) Pos() Vec2 { return Vec2{X: b.X, Y: b.Y} }

func (b Building) Alive() bool { return b.HP > 0 }

// AllUnits returns own and enemy units in one slice.
func (gs *GameState) AllUnits() []Unit {
	out := make([]Unit, 0, len(gs.Units)+len(gs.Enemies))
	out = append(out, gs.Units...)
	return append(out, gs.Enemies...)
}

// AllBuildings returns own and enemy buildings in one slice.
func (gs *GameState) AllBuildings() []Building {
	out := make([]Building, 0, len(gs.Buildings)+len(gs.EnemyBuildings))
	out = append(out, gs.Buildings...)
	return append(out, gs.EnemyBuildings...)
}

// Unit finds a living unit (own or enemy) by id.
func (gs *GameState) Unit(id int) (Unit, bool) {
	for _, u := range gs.Units {
		if u.ID == id {
			return u, u.Alive()
		}
	}
	for _, u := range gs.Enemies {
		if u.ID == id {
			return u, u.Alive()
		}
	}
	return Unit{}, false
}

// Exists reports whether a living unit or building with the id is present.
func (gs *GameState) Exists(id int) bool {
	if _, ok := gs.Unit(id); ok {
		return true
	}
	for _, b := range gs.Buildings {
		if b.ID == id {
			return b.Alive()
		}
	}
	for _, b := range gs.EnemyBuildings {
		if b.ID == id {
			return b.Alive()
		}
	}
	return false
}

// HomeBase returns the position of the player's base building, falling back
// to the first completed building. ok is false when the player has none.
func (gs *GameState) HomeBase() (Vec2, bool) {
	for _, b := range gs.Buildings {
		if b.Base && b.Alive() {
			return b.Pos(), true
		}
	}
	for _, b := range gs.Buildings {
		if b.Completed && b.Alive() {
			return b.Pos(), true
		}
	}
	return Vec2{}, false
}

// MapSize returns the map dimensions as a vector.
func (gs *GameState) MapSize() Vec2 {
	return Vec2{X: float64(gs.MapWidth), Y: float64(gs.MapHeight)}
}
