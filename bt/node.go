// Package bt is a resumable behavior-tree runtime. Trees are immutable and
// shared by every unit running the same behavior; all per-instance state,
// including where a composite should resume, lives in the instance
// blackboard.
package bt

import (
	"fmt"
	"sync/atomic"
)

// Status is the outcome of evaluating a node.
type Status int

const (
	Failure Status = iota
	Success
	Running
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Running:
		return "running"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Context is everything a node sees during one evaluation.
type Context struct {
	EntityID int
	World    any
	Tick     int
	Delta    float64
	BB       *Blackboard
	Trace    func(name string, s Status)
}

// Node is the single capability every tree element implements.
type Node interface {
	Evaluate(ctx *Context) Status
}

// Resetter is implemented by nodes that keep memory in the blackboard or
// wrap nodes that might. Reset clears that memory for one instance.
type Resetter interface {
	Reset(bb *Blackboard)
}

func reset(n Node, bb *Blackboard) {
	if r, ok := n.(Resetter); ok {
		r.Reset(bb)
	}
}

func resetAll(nodes []Node, bb *Blackboard) {
	for _, n := range nodes {
		reset(n, bb)
	}
}

var nodeSeq atomic.Uint64

// memoryKey returns a blackboard key unique to one node. Keys are generated
// when the node is built, never during evaluation.
func memoryKey(kind string) string {
	return fmt.Sprintf("_bt.%s.%d", kind, nodeSeq.Add(1))
}

// Func adapts a plain function to Node.
type Func func(ctx *Context) Status

func (f Func) Evaluate(ctx *Context) Status { return f(ctx) }

// Tagged names a subtree for tracing. Meta is free-form and ignored by the
// runtime.
type Tagged struct {
	Name  string
	Meta  map[string]string
	Child Node
}

func Tag(name string, child Node) *Tagged { return &Tagged{Name: name, Child: child} }

func (t *Tagged) Evaluate(ctx *Context) Status {
	s := t.Child.Evaluate(ctx)
	if ctx.Trace != nil {
		ctx.Trace(t.Name, s)
	}
	return s
}

func (t *Tagged) Reset(bb *Blackboard) { reset(t.Child, bb) }
