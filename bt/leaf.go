package bt

// Action is a leaf wrapping a status-returning function.
type Action struct {
	Name string
	Fn   func(ctx *Context) Status
}

func NewAction(name string, fn func(ctx *Context) Status) *Action {
	return &Action{Name: name, Fn: fn}
}

func (a *Action) Evaluate(ctx *Context) Status { return a.Fn(ctx) }

// Check is a leaf wrapping a predicate: Success when it holds.
type Check struct {
	Name string
	Pred Predicate
}

func NewCheck(name string, pred Predicate) *Check { return &Check{Name: name, Pred: pred} }

func (c *Check) Evaluate(ctx *Context) Status {
	if c.Pred(ctx) {
		return Success
	}
	return Failure
}

// Wait is Running until Ticks ticks have passed since its first evaluation.
type Wait struct {
	Ticks int
	key   string
}

func NewWait(ticks int) *Wait { return &Wait{Ticks: ticks, key: memoryKey("wait")} }

func (w *Wait) Evaluate(ctx *Context) Status {
	start, ok := localInt(ctx.BB, w.key)
	if !ok {
		start = ctx.Tick
		ctx.BB.Set(w.key, start)
	}
	if ctx.Tick-start >= w.Ticks {
		ctx.BB.Delete(w.key)
		return Success
	}
	return Running
}

func (w *Wait) Reset(bb *Blackboard) { bb.Delete(w.key) }
