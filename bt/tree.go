package bt

// Tree is a named, immutable root node shared by every instance.
type Tree struct {
	Name string
	Root Node
}

func NewTree(name string, root Node) *Tree { return &Tree{Name: name, Root: root} }

// NewInstance binds the tree to a fresh blackboard scoped under parent.
func (t *Tree) NewInstance(parent *Blackboard) *Instance {
	return &Instance{Tree: t, BB: NewBlackboard(parent)}
}

// Instance is one entity's run of a tree. Its blackboard holds all of the
// entity's tree state.
type Instance struct {
	Tree  *Tree
	BB    *Blackboard
	Trace func(name string, s Status)

	ticks int
	last  Status
}

// Tick evaluates the root once.
func (in *Instance) Tick(entityID int, world any, tick int, dt float64) Status {
	ctx := Context{
		EntityID: entityID,
		World:    world,
		Tick:     tick,
		Delta:    dt,
		BB:       in.BB,
		Trace:    in.Trace,
	}
	in.last = in.Tree.Root.Evaluate(&ctx)
	in.ticks++
	return in.last
}

// Reset interrupts whatever the tree was running and clears the local scope.
func (in *Instance) Reset() {
	reset(in.Tree.Root, in.BB)
	in.BB.Clear()
}

// Ticks is how many times the instance has been evaluated.
func (in *Instance) Ticks() int { return in.ticks }

// LastStatus is the status returned by the most recent Tick.
func (in *Instance) LastStatus() Status { return in.last }
