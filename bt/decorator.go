package bt

import "time"

// Predicate is a side-effect free check against the context.
type Predicate func(ctx *Context) bool

// Inverter swaps Success and Failure. Running passes through.
type Inverter struct{ Child Node }

func Invert(child Node) *Inverter { return &Inverter{Child: child} }

func (n *Inverter) Evaluate(ctx *Context) Status {
	switch st := n.Child.Evaluate(ctx); st {
	case Success:
		return Failure
	case Failure:
		return Success
	default:
		return st
	}
}

func (n *Inverter) Reset(bb *Blackboard) { reset(n.Child, bb) }

// Succeeder runs its child and reports Success whatever the child returned.
type Succeeder struct{ Child Node }

func Succeed(child Node) *Succeeder { return &Succeeder{Child: child} }

func (n *Succeeder) Evaluate(ctx *Context) Status {
	n.Child.Evaluate(ctx)
	return Success
}

func (n *Succeeder) Reset(bb *Blackboard) { reset(n.Child, bb) }

// Guard runs Child only while Pred holds and returns Otherwise when it does
// not.
type Guard struct {
	Pred      Predicate
	Child     Node
	Otherwise Status
}

func NewGuard(pred Predicate, child Node, otherwise Status) *Guard {
	return &Guard{Pred: pred, Child: child, Otherwise: otherwise}
}

// Condition is a Guard that fails when the predicate does not hold.
func Condition(pred Predicate, child Node) *Guard {
	return NewGuard(pred, child, Failure)
}

func (n *Guard) Evaluate(ctx *Context) Status {
	if !n.Pred(ctx) {
		reset(n.Child, ctx.BB)
		return n.Otherwise
	}
	return n.Child.Evaluate(ctx)
}

func (n *Guard) Reset(bb *Blackboard) { reset(n.Child, bb) }

// Reactive re-checks Pred on every evaluation, including while the child is
// running, and interrupts the child when it stops holding.
type Reactive struct {
	Pred  Predicate
	Child Node
}

func NewReactive(pred Predicate, child Node) *Reactive {
	return &Reactive{Pred: pred, Child: child}
}

func (n *Reactive) Evaluate(ctx *Context) Status {
	if !n.Pred(ctx) {
		reset(n.Child, ctx.BB)
		return Failure
	}
	return n.Child.Evaluate(ctx)
}

func (n *Reactive) Reset(bb *Blackboard) { reset(n.Child, bb) }

// CooldownTicks refuses to run its child for Ticks ticks after the child
// last succeeded. It is deterministic under replay.
type CooldownTicks struct {
	Child Node
	Ticks int
	key   string
}

func NewCooldownTicks(ticks int, child Node) *CooldownTicks {
	return &CooldownTicks{Child: child, Ticks: ticks, key: memoryKey("cooldown_ticks")}
}

func (n *CooldownTicks) Evaluate(ctx *Context) Status {
	if last, ok := localInt(ctx.BB, n.key); ok && ctx.Tick-last < n.Ticks {
		return Failure
	}
	st := n.Child.Evaluate(ctx)
	if st == Success {
		ctx.BB.Set(n.key, ctx.Tick)
	}
	return st
}

func (n *CooldownTicks) Reset(bb *Blackboard) {
	bb.Delete(n.key)
	reset(n.Child, bb)
}

// Cooldown is the wall-clock variant of CooldownTicks. It is not replay
// deterministic; use it only for presentation-side trees.
type Cooldown struct {
	Child  Node
	Period time.Duration
	Now    func() time.Time
	key    string
}

func NewCooldown(period time.Duration, child Node) *Cooldown {
	return &Cooldown{Child: child, Period: period, Now: time.Now, key: memoryKey("cooldown")}
}

func (n *Cooldown) Evaluate(ctx *Context) Status {
	now := n.Now()
	if v, ok := ctx.BB.Local(n.key); ok {
		if last, ok := v.(time.Time); ok && now.Sub(last) < n.Period {
			return Failure
		}
	}
	st := n.Child.Evaluate(ctx)
	if st == Success {
		ctx.BB.Set(n.key, now)
	}
	return st
}

func (n *Cooldown) Reset(bb *Blackboard) {
	bb.Delete(n.key)
	reset(n.Child, bb)
}

// Timeout fails its child once it has been Running for Ticks ticks since it
// first returned Running.
type Timeout struct {
	Child Node
	Ticks int
	key   string
}

func NewTimeout(ticks int, child Node) *Timeout {
	return &Timeout{Child: child, Ticks: ticks, key: memoryKey("timeout")}
}

func (n *Timeout) Evaluate(ctx *Context) Status {
	st := n.Child.Evaluate(ctx)
	if st != Running {
		ctx.BB.Delete(n.key)
		return st
	}
	start, ok := localInt(ctx.BB, n.key)
	if !ok {
		start = ctx.Tick
		ctx.BB.Set(n.key, start)
	}
	if ctx.Tick-start >= n.Ticks {
		n.Reset(ctx.BB)
		return Failure
	}
	return Running
}

func (n *Timeout) Reset(bb *Blackboard) {
	bb.Delete(n.key)
	reset(n.Child, bb)
}
