package bt

import "math"

// Selector succeeds on the first child that does not fail.
type Selector struct {
	Children []Node
}

func NewSelector(children ...Node) *Selector { return &Selector{Children: children} }

func (s *Selector) Evaluate(ctx *Context) Status {
	for i, c := range s.Children {
		if st := c.Evaluate(ctx); st != Failure {
			resetAll(s.Children[i+1:], ctx.BB)
			return st
		}
	}
	return Failure
}

func (s *Selector) Reset(bb *Blackboard) { resetAll(s.Children, bb) }

// Sequence fails on the first child that does not succeed.
type Sequence struct {
	Children []Node
}

func NewSequence(children ...Node) *Sequence { return &Sequence{Children: children} }

func (s *Sequence) Evaluate(ctx *Context) Status {
	for i, c := range s.Children {
		if st := c.Evaluate(ctx); st != Success {
			resetAll(s.Children[i+1:], ctx.BB)
			return st
		}
	}
	return Success
}

func (s *Sequence) Reset(bb *Blackboard) { resetAll(s.Children, bb) }

// MemSelector is a Selector that resumes at the child that last returned
// Running instead of starting over.
type MemSelector struct {
	Children []Node
	key      string
}

func NewMemSelector(children ...Node) *MemSelector {
	return &MemSelector{Children: children, key: memoryKey("memsel")}
}

func (s *MemSelector) Evaluate(ctx *Context) Status {
	start, _ := localInt(ctx.BB, s.key)
	for i := start; i < len(s.Children); i++ {
		switch st := s.Children[i].Evaluate(ctx); st {
		case Running:
			ctx.BB.Set(s.key, i)
			return Running
		case Success:
			ctx.BB.Delete(s.key)
			return Success
		}
	}
	ctx.BB.Delete(s.key)
	return Failure
}

func (s *MemSelector) Reset(bb *Blackboard) {
	bb.Delete(s.key)
	resetAll(s.Children, bb)
}

// MemSequence is a Sequence that resumes at the child that last returned
// Running. Children before it are not re-evaluated.
type MemSequence struct {
	Children []Node
	key      string
}

func NewMemSequence(children ...Node) *MemSequence {
	return &MemSequence{Children: children, key: memoryKey("memseq")}
}

func (s *MemSequence) Evaluate(ctx *Context) Status {
	start, _ := localInt(ctx.BB, s.key)
	for i := start; i < len(s.Children); i++ {
		switch st := s.Children[i].Evaluate(ctx); st {
		case Running:
			ctx.BB.Set(s.key, i)
			return Running
		case Failure:
			ctx.BB.Delete(s.key)
			return Failure
		}
	}
	ctx.BB.Delete(s.key)
	return Success
}

func (s *MemSequence) Reset(bb *Blackboard) {
	bb.Delete(s.key)
	resetAll(s.Children, bb)
}

// Parallel evaluates every child on every call. It succeeds once Threshold
// children succeeded and fails once the threshold can no longer be reached.
type Parallel struct {
	Children  []Node
	Threshold int
}

func NewParallel(threshold int, children ...Node) *Parallel {
	return &Parallel{Children: children, Threshold: threshold}
}

func (p *Parallel) Evaluate(ctx *Context) Status {
	need := min(max(p.Threshold, 0), len(p.Children))
	var ok, failed int
	for _, c := range p.Children {
		switch c.Evaluate(ctx) {
		case Success:
			ok++
		case Failure:
			failed++
		}
	}
	switch {
	case ok >= need:
		p.Reset(ctx.BB)
		return Success
	case failed > len(p.Children)-need:
		p.Reset(ctx.BB)
		return Failure
	}
	return Running
}

func (p *Parallel) Reset(bb *Blackboard) { resetAll(p.Children, bb) }

// Option is one candidate of a UtilitySelector. Options scoring below Min
// are never chosen.
type Option struct {
	Node  Node
	Score func(ctx *Context) float64
	Min   float64
}

// Choice is an Option without a minimum score.
func Choice(n Node, score func(ctx *Context) float64) Option {
	return Option{Node: n, Score: score, Min: math.Inf(-1)}
}

// UtilitySelector scores every option and evaluates only the best one. The
// first option wins ties.
type UtilitySelector struct {
	Options []Option
	key     string
}

func NewUtilitySelector(options ...Option) *UtilitySelector {
	return &UtilitySelector{Options: options, key: memoryKey("utility")}
}

func (u *UtilitySelector) Evaluate(ctx *Context) Status {
	best := -1
	bestScore := math.Inf(-1)
	for i, o := range u.Options {
		s := o.Score(ctx)
		if math.IsNaN(s) || s < o.Min {
			continue
		}
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}

	if prev, ok := localInt(ctx.BB, u.key); ok && prev != best && prev < len(u.Options) {
		reset(u.Options[prev].Node, ctx.BB)
	}
	if best < 0 {
		ctx.BB.Delete(u.key)
		return Failure
	}
	st := u.Options[best].Node.Evaluate(ctx)
	if st == Running {
		ctx.BB.Set(u.key, best)
	} else {
		ctx.BB.Delete(u.key)
	}
	return st
}

func (u *UtilitySelector) Reset(bb *Blackboard) {
	bb.Delete(u.key)
	for _, o := range u.Options {
		reset(o.Node, bb)
	}
}
