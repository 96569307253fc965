package model

// Role is the tactical function of a combat unit within a group.
type Role string

const (
	RoleMelee   Role = "melee"
	RoleRanged  Role = "ranged"
	RoleSiege   Role = "siege"
	RoleSupport Role = "support"
	RoleAir     Role = "air"
)

// Roles lists every role in formation order (front to back).
var Roles = []Role{RoleMelee, RoleRanged, RoleSupport, RoleSiege, RoleAir}

// ClassifyRole assigns a role from combat stats. Flying wins over range,
// units without offense are support.
func ClassifyRole(u Unit, shortRange, longRange float64) Role {
	switch {
	case u.Flying:
		return RoleAir
	case !u.CanAttack():
		return RoleSupport
	case u.Range < shortRange:
		return RoleMelee
	case u.Range > longRange:
		return RoleSiege
	default:
		return RoleRanged
	}
}

// typed is a generic constraint for any model type with a TypeName accessor.
type typed interface {
	TypeName() string
}

// CountByType tallies items by their type name.
func CountByType[T typed](items []T) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item.TypeName()]++
	}
	return counts
}
