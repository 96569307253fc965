package behavior

import (
	"maps"

	"github.com/nstehr/vimy/vimy-tactics/bt"
)

// Blackboard keys the trees write and the scheduler reads back.
const (
	KeyShouldKite      = "should_kite"
	KeyShouldRetreat   = "should_retreat"
	KeyShouldTransform = "should_transform"
	KeyIntent          = "intent"
)

// Intents written under KeyIntent.
const (
	IntentEngage = "engage"
	IntentHold   = "hold"
)

// ActionFunc is a leaf body. Actions only write the blackboard; commands are
// produced by the scheduler from what they wrote.
type ActionFunc func(ctx *bt.Context) bt.Status

func setFlag(key string) ActionFunc {
	return func(ctx *bt.Context) bt.Status {
		ctx.BB.Set(key, true)
		return bt.Success
	}
}

func setIntent(intent string) ActionFunc {
	return func(ctx *bt.Context) bt.Status {
		ctx.BB.Set(KeyIntent, intent)
		return bt.Success
	}
}

// ClearIntents drops last pass's requests so flags reflect only the current
// evaluation.
func ClearIntents(ctx *bt.Context) bt.Status {
	ctx.BB.Delete(KeyShouldKite)
	ctx.BB.Delete(KeyShouldRetreat)
	ctx.BB.Delete(KeyShouldTransform)
	ctx.BB.Delete(KeyIntent)
	return bt.Success
}

var defaultActions = map[string]ActionFunc{
	"request_kite":    setFlag(KeyShouldKite),
	"request_retreat": setFlag(KeyShouldRetreat),
	"transform":       setFlag(KeyShouldTransform),
	"engage":          setIntent(IntentEngage),
	"hold":            setIntent(IntentHold),
	"clear_intents":   ClearIntents,
}

// DefaultActions returns a fresh copy of the built-in action registry.
func DefaultActions() map[string]ActionFunc {
	return maps.Clone(defaultActions)
}

// Requests is what a tree asked for on its last evaluation.
type Requests struct {
	Kite      bool
	Retreat   bool
	Transform bool
	Intent    string
}

// ReadRequests collects the request flags from an instance blackboard.
func ReadRequests(bb *bt.Blackboard) Requests {
	return Requests{
		Kite:      bt.ValueOr(bb, KeyShouldKite, false),
		Retreat:   bt.ValueOr(bb, KeyShouldRetreat, false),
		Transform: bt.ValueOr(bb, KeyShouldTransform, false),
		Intent:    bt.ValueOr(bb, KeyIntent, ""),
	}
}
