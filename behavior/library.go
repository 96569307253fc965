package behavior

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nstehr/vimy/vimy-tactics/bt"
	"github.com/nstehr/vimy/vimy-tactics/model"
)

// DefaultTree is the library key used for roles without their own tree.
const DefaultTree = "default"

// Library maps roles to shared, immutable trees.
type Library struct {
	trees map[string]*bt.Tree
}

func NewLibrary() *Library { return &Library{trees: make(map[string]*bt.Tree)} }

// Add registers a tree under name (a role or DefaultTree).
func (l *Library) Add(name string, t *bt.Tree) { l.trees[name] = t }

// For returns the tree for a role, falling back to the default tree. It
// returns nil when neither exists.
func (l *Library) For(role model.Role) *bt.Tree {
	if t, ok := l.trees[string(role)]; ok {
		return t
	}
	return l.trees[DefaultTree]
}

// Names lists the registered tree names, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.trees))
	for n := range l.trees {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Merge copies every tree of o into l, replacing same-named trees.
func (l *Library) Merge(o *Library) {
	for n, t := range o.trees {
		l.trees[n] = t
	}
}

// NodeDef is the YAML form of a tree node.
type NodeDef struct {
	Type      string    `yaml:"type"`
	Name      string    `yaml:"name,omitempty"`
	If        string    `yaml:"if,omitempty"`
	Score     string    `yaml:"score,omitempty"`
	Min       *float64  `yaml:"min,omitempty"`
	Threshold int       `yaml:"threshold,omitempty"`
	Ticks     int       `yaml:"ticks,omitempty"`
	Millis    int       `yaml:"millis,omitempty"`
	Otherwise string    `yaml:"otherwise,omitempty"`
	Action    string    `yaml:"action,omitempty"`
	Child     *NodeDef  `yaml:"child,omitempty"`
	Children  []NodeDef `yaml:"children,omitempty"`
}

type libraryFile struct {
	Trees map[string]NodeDef `yaml:"trees"`
}

// LoadLibrary reads tree definitions from a YAML file.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trees: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary builds trees from YAML using the built-in actions.
func ParseLibrary(data []byte) (*Library, error) {
	return ParseLibraryWith(data, DefaultActions())
}

// ParseLibraryWith builds trees from YAML, resolving action leaves in actions.
func ParseLibraryWith(data []byte, actions map[string]ActionFunc) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse trees: %w", err)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("parse trees: no trees defined")
	}
	b := builder{actions: actions}
	lib := NewLibrary()
	for name, def := range f.Trees {
		root, err := b.build(def, name)
		if err != nil {
			return nil, fmt.Errorf("tree %q: %w", name, err)
		}
		lib.Add(name, bt.NewTree(name, root))
	}
	return lib, nil
}

type builder struct {
	actions map[string]ActionFunc
}

func (b builder) build(d NodeDef, path string) (bt.Node, error) {
	n, err := b.buildNode(d, path)
	if err != nil {
		return nil, err
	}
	if d.Name != "" {
		return bt.Tag(d.Name, n), nil
	}
	return n, nil
}

func (b builder) buildNode(d NodeDef, path string) (bt.Node, error) {
	kind := strings.ToLower(d.Type)
	path = path + "/" + kind

	switch kind {
	case "selector", "sequence", "mem_selector", "mem_sequence", "parallel":
		kids, err := b.children(d, path)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "selector":
			return bt.NewSelector(kids...), nil
		case "sequence":
			return bt.NewSequence(kids...), nil
		case "mem_selector":
			return bt.NewMemSelector(kids...), nil
		case "mem_sequence":
			return bt.NewMemSequence(kids...), nil
		default:
			return bt.NewParallel(d.Threshold, kids...), nil
		}

	case "utility":
		if len(d.Children) == 0 {
			return nil, fmt.Errorf("%s: no options", path)
		}
		opts := make([]bt.Option, 0, len(d.Children))
		for i, c := range d.Children {
			if c.Score == "" {
				return nil, fmt.Errorf("%s[%d]: missing score", path, i)
			}
			score, err := CompileScore(c.Score)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
			}
			n, err := b.build(c, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			opt := bt.Choice(n, score)
			if c.Min != nil {
				opt.Min = *c.Min
			}
			opts = append(opts, opt)
		}
		return bt.NewUtilitySelector(opts...), nil

	case "inverter", "succeeder", "condition", "guard", "reactive", "cooldown", "cooldown_ticks", "timeout":
		if d.Child == nil {
			return nil, fmt.Errorf("%s: missing child", path)
		}
		child, err := b.build(*d.Child, path)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "inverter":
			return bt.Invert(child), nil
		case "succeeder":
			return bt.Succeed(child), nil
		case "cooldown":
			return bt.NewCooldown(time.Duration(d.Millis)*time.Millisecond, child), nil
		case "cooldown_ticks":
			return bt.NewCooldownTicks(d.Ticks, child), nil
		case "timeout":
			return bt.NewTimeout(d.Ticks, child), nil
		}
		pred, err := b.predicate(d, path)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "condition":
			return bt.Condition(pred, child), nil
		case "reactive":
			return bt.NewReactive(pred, child), nil
		}
		otherwise, err := parseStatus(d.Otherwise)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return bt.NewGuard(pred, child, otherwise), nil

	case "check":
		pred, err := b.predicate(d, path)
		if err != nil {
			return nil, err
		}
		return bt.NewCheck(d.If, pred), nil

	case "action":
		fn, ok := b.actions[d.Action]
		if !ok {
			return nil, fmt.Errorf("%s: unknown action %q", path, d.Action)
		}
		return bt.NewAction(d.Action, fn), nil

	case "wait":
		return bt.NewWait(d.Ticks), nil
	}
	return nil, fmt.Errorf("%s: unknown node type %q", path, d.Type)
}

func (b builder) children(d NodeDef, path string) ([]bt.Node, error) {
	if len(d.Children) == 0 {
		return nil, fmt.Errorf("%s: no children", path)
	}
	kids := make([]bt.Node, 0, len(d.Children))
	for i, c := range d.Children {
		n, err := b.build(c, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		kids = append(kids, n)
	}
	return kids, nil
}

func (b builder) predicate(d NodeDef, path string) (bt.Predicate, error) {
	if d.If == "" {
		return nil, fmt.Errorf("%s: missing if", path)
	}
	p, err := CompileCondition(d.If)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func parseStatus(s string) (bt.Status, error) {
	switch strings.ToLower(s) {
	case "", "failure":
		return bt.Failure, nil
	case "success":
		return bt.Success, nil
	case "running":
		return bt.Running, nil
	}
	return bt.Failure, fmt.Errorf("unknown status %q", s)
}
