package behavior

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-tactics/bt"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// DefaultLibrary generates one tree per role from the tuning. Conditions are
// built with fmt.Sprintf from validated numbers, so compilation cannot fail.
func DefaultLibrary(t config.Tuning) *Library {
	t.Validate()
	lib := NewLibrary()

	retreat := retreatBranch(t)
	kite := bt.Tag("kite", bt.NewSequence(
		bt.NewCheck("melee-close", mustCondition(fmt.Sprintf(
			`CanAttack() && Range() > %.3f && NearestMeleeDistance() < %.3f`,
			t.Roles.ShortRange, t.Kite.TriggerDistance))),
		bt.NewCooldownTicks(t.Kite.Cooldown, action("request_kite")),
	))
	transform := bt.Tag("transform", bt.NewSequence(
		bt.NewCheck("mode-mismatch", mustCondition(fmt.Sprintf(
			`Transformable() && ((Mode() == "deployed") != (EnemiesInRange(%.3f) > 0))`,
			t.Roles.LongRange+t.Focus.RangeSlack))),
		bt.NewCooldownTicks(t.Scheduler.TransformInterval, action("transform")),
	))
	engage := bt.Tag("engage", action("engage"))
	hold := bt.Tag("hold", action("hold"))

	lib.Add(string(model.RoleRanged), root(model.RoleRanged, retreat, kite, engage))
	lib.Add(string(model.RoleSiege), root(model.RoleSiege, retreat, transform, kite, engage))

	// Melee weighs pressing the attack against holding under heavy fire.
	lib.Add(string(model.RoleMelee), root(model.RoleMelee, retreat, bt.NewUtilitySelector(
		bt.Choice(engage, mustScore(`1 - Danger() * 0.5`)),
		bt.Option{Node: hold, Score: mustScore(`Danger()`), Min: 0.9},
	)))

	lib.Add(string(model.RoleAir), root(model.RoleAir, retreat, engage))

	lib.Add(string(model.RoleSupport), root(model.RoleSupport,
		bt.Tag("evade", bt.NewSequence(
			bt.NewCheck("threatened", mustCondition(`!Retreating() && InDanger()`)),
			action("request_retreat"),
		)),
		hold,
	))

	lib.Add(DefaultTree, root(DefaultTree, retreat, engage))
	return lib
}

// retreatBranch requests a retreat when health is below the threshold, or
// somewhat above it while the unit stands in danger.
func retreatBranch(t config.Tuning) bt.Node {
	low := t.Retreat.HealthThreshold
	pressed := config.Lerp(low, 1, 0.25)
	return bt.Tag("retreat", bt.NewSequence(
		bt.NewCheck("wounded", mustCondition(fmt.Sprintf(
			`!Retreating() && (HealthFraction() < %.3f || (InDanger() && HealthFraction() < %.3f))`,
			low, pressed))),
		action("request_retreat"),
	))
}

func root[R ~string](name R, branches ...bt.Node) *bt.Tree {
	return bt.NewTree(string(name), bt.NewSequence(
		action("clear_intents"),
		bt.NewSelector(branches...),
	))
}

func action(name string) bt.Node {
	return bt.NewAction(name, defaultActions[name])
}
