package statechart

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Element is a declaration applied while building a machine. Elements nest:
// State contains Entry, On, Invoke and After; On contains Target, Guard and
// Do. The stack carries the enclosing *Node, *Transition or *Invocation.
type Element func(b *Builder, stack []any) error

// Builder accumulates a machine definition plus deferred validations that
// run once the whole namespace is known.
type Builder struct {
	machine *Machine
	pending []func() error
}

func (b *Builder) defer_(fn func() error) { b.pending = append(b.pending, fn) }

// Define builds and validates a machine definition.
//
//	machine, err := statechart.Define("toggle",
//		statechart.State("inactive",
//			statechart.On("TOGGLE", statechart.Target("active")),
//		),
//		statechart.State("active",
//			statechart.On("TOGGLE", statechart.Target("inactive")),
//		),
//	)
func Define(id string, elements ...Element) (*Machine, error) {
	machine, err := define(id, elements...)
	if err != nil {
		slog.Error("statechart: invalid machine definition", "machine", id, "error", err)
		return nil, err
	}
	return machine, nil
}

// MustDefine is Define but panics on an invalid definition.
func MustDefine(id string, elements ...Element) *Machine {
	machine, err := define(id, elements...)
	if err != nil {
		panic(err)
	}
	return machine
}

func define(id string, elements ...Element) (*Machine, error) {
	if id == "" {
		return nil, fmt.Errorf("machine id must not be empty")
	}
	root := &Node{kind: KindCompound, qualifiedName: "/"}
	machine := &Machine{
		id:        id,
		root:      root,
		namespace: map[string]*Node{"/": root},
	}
	b := &Builder{machine: machine}
	if err := apply(b, []any{root}, elements...); err != nil {
		return nil, err
	}
	for len(b.pending) > 0 {
		pending := b.pending
		b.pending = nil
		for _, fn := range pending {
			if err := fn(); err != nil {
				return nil, err
			}
		}
	}
	if err := finalize(machine); err != nil {
		return nil, err
	}
	return machine, nil
}

func apply(b *Builder, stack []any, elements ...Element) error {
	for _, element := range elements {
		if err := element(b, stack); err != nil {
			return err
		}
	}
	return nil
}

func findNode(stack []any) *Node {
	for i := len(stack) - 1; i >= 0; i-- {
		if n, ok := stack[i].(*Node); ok {
			return n
		}
	}
	return nil
}

func findTransition(stack []any) *Transition {
	for i := len(stack) - 1; i >= 0; i-- {
		if t, ok := stack[i].(*Transition); ok {
			return t
		}
	}
	return nil
}

func findInvocation(stack []any) *Invocation {
	for i := len(stack) - 1; i >= 0; i-- {
		if inv, ok := stack[i].(*Invocation); ok {
			return inv
		}
	}
	return nil
}

// State declares a child state. With no nested State declarations it stays
// atomic; with children it becomes compound.
func State(name string, elements ...Element) Element {
	return node(name, KindAtomic, elements...)
}

// Parallel declares a state whose children are independent regions that are
// all active whenever the parallel state is active.
func Parallel(name string, elements ...Element) Element {
	return node(name, KindParallel, elements...)
}

// Final declares a terminal state. A machine whose top-level configuration
// reaches a final state (or, for a parallel root, all regions reach final)
// is done.
func Final(name string, elements ...Element) Element {
	return node(name, KindFinal, elements...)
}

func node(name string, kind Kind, elements ...Element) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("state %q must be declared within a machine or state", name)
		}
		if owner.kind == KindFinal {
			return fmt.Errorf("final state %q cannot contain %q", owner.qualifiedName, name)
		}
		if name == "" || strings.ContainsAny(name, "/*") {
			return fmt.Errorf("invalid state name %q", name)
		}
		qualifiedName := path.Join(owner.qualifiedName, name)
		if _, exists := b.machine.namespace[qualifiedName]; exists {
			return fmt.Errorf("duplicate state %q", qualifiedName)
		}
		child := &Node{kind: kind, qualifiedName: qualifiedName, parent: owner}
		owner.children = append(owner.children, child)
		b.machine.namespace[qualifiedName] = child
		return apply(b, append(stack, child), elements...)
	}
}

// Initial designates the child entered by default. Without it the first
// declared child is the initial one.
func Initial(name string) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("initial must be declared within a machine or state")
		}
		if owner.initial != "" {
			return fmt.Errorf("state %q already has initial %q", owner.qualifiedName, owner.initial)
		}
		qualifiedName := path.Join(owner.qualifiedName, name)
		owner.initial = qualifiedName
		b.defer_(func() error {
			child, ok := b.machine.namespace[qualifiedName]
			if !ok || child.parent != owner {
				return fmt.Errorf("initial %q is not a child of %q", qualifiedName, owner.qualifiedName)
			}
			return nil
		})
		return nil
	}
}

// Entry attaches actions that run when the state is entered,
// in declaration order.
func Entry(actions ...*Action) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("entry must be declared within a state")
		}
		owner.entry = append(owner.entry, actions...)
		return nil
	}
}

// Exit attaches actions that run when the state is exited,
// in declaration order.
func Exit(actions ...*Action) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("exit must be declared within a state")
		}
		owner.exit = append(owner.exit, actions...)
		return nil
	}
}

// Assign constructs an action that replaces the interpreter context with the
// function's result. Assigns in the same step are folded sequentially, so a
// later action observes an earlier assign's result.
func Assign[C any](fn func(c C, event Event) C, maybeName ...string) *Action {
	name := "assign"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return &Action{kind: ActionAssign, name: name, fn: fn}
}

// Effect constructs a side-effect action that cannot change the context.
func Effect[C any](fn func(c C, event Event), maybeName ...string) *Action {
	name := "effect"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return &Action{kind: ActionEffect, name: name, fn: fn}
}

// On declares a transition triggered by the given event type. The Wildcard
// type matches any event, after exact matches have been tried. A transition
// without Target is internal: actions run, nothing is exited or entered.
func On(eventType string, elements ...Element) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("transition must be declared within a state")
		}
		if eventType == "" {
			return fmt.Errorf("transition on %q must have an event type", owner.qualifiedName)
		}
		t := &Transition{eventType: eventType, source: owner}
		owner.transitions = append(owner.transitions, t)
		return apply(b, append(stack, t), elements...)
	}
}

// Target sets the transition target. Absolute names ("/a/b") address any
// state; a leading "." resolves against the source state ("./child"); bare
// names resolve against the source's parent, so siblings read naturally.
func Target(name string) Element {
	return func(b *Builder, stack []any) error {
		t := findTransition(stack)
		if t == nil {
			return fmt.Errorf("target %q must be declared within a transition", name)
		}
		if t.target != "" {
			return fmt.Errorf("transition on %q already has target %q", t.source.qualifiedName, t.target)
		}
		qualifiedName := name
		switch {
		case path.IsAbs(qualifiedName):
			qualifiedName = path.Clean(qualifiedName)
		case strings.HasPrefix(qualifiedName, "."):
			qualifiedName = path.Join(t.source.qualifiedName, qualifiedName)
		default:
			qualifiedName = path.Join(path.Dir(t.source.qualifiedName), qualifiedName)
		}
		t.target = qualifiedName
		b.defer_(func() error {
			if _, ok := b.machine.namespace[qualifiedName]; !ok {
				return fmt.Errorf("missing target %q for transition on %q", qualifiedName, t.source.qualifiedName)
			}
			return nil
		})
		return nil
	}
}

// Guard attaches a predicate gating the transition. Guards must be pure;
// a guard that panics is fatal to the interpreter.
func Guard[C any](fn func(c C, event Event) bool, maybeName ...string) Element {
	name := "guard"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(b *Builder, stack []any) error {
		t := findTransition(stack)
		if t == nil {
			return fmt.Errorf("guard must be declared within a transition")
		}
		if t.guard != nil {
			return fmt.Errorf("transition on %q already has a guard", t.source.qualifiedName)
		}
		t.guard = fn
		t.guardName = name
		return nil
	}
}

// Do attaches actions that run between the exit and entry phases of the
// transition, in declaration order.
func Do(actions ...*Action) Element {
	return func(b *Builder, stack []any) error {
		t := findTransition(stack)
		if t == nil {
			return fmt.Errorf("do must be declared within a transition")
		}
		t.actions = append(t.actions, actions...)
		return nil
	}
}

// After declares a delayed transition: a timer started on entry to the
// owning state and canceled on exit. Firing behaves like a normal event.
func After(d time.Duration, elements ...Element) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("after must be declared within a state")
		}
		if d <= 0 {
			return fmt.Errorf("after on %q must have a positive delay", owner.qualifiedName)
		}
		t := &Transition{
			eventType: afterEventType(d, owner.qualifiedName),
			source:    owner,
			delay:     d,
		}
		owner.transitions = append(owner.transitions, t)
		return apply(b, append(stack, t), elements...)
	}
}

// Invoke binds an asynchronous service to the owning state. The service
// starts when the state is entered; its context is canceled when the state
// is exited, and a late result is discarded. OnDone and OnError declare the
// transitions taken on fulfillment and rejection.
func Invoke[C any](id string, src func(ctx context.Context, c C, event Event) (any, error), elements ...Element) Element {
	return func(b *Builder, stack []any) error {
		owner := findNode(stack)
		if owner == nil {
			return fmt.Errorf("invoke %q must be declared within a state", id)
		}
		if id == "" {
			return fmt.Errorf("invoke on %q must have an id", owner.qualifiedName)
		}
		for _, existing := range owner.invocations {
			if existing.id == id {
				return fmt.Errorf("duplicate invoke %q on %q", id, owner.qualifiedName)
			}
		}
		inv := &Invocation{id: id, owner: owner, src: src}
		owner.invocations = append(owner.invocations, inv)
		return apply(b, append(stack, inv), elements...)
	}
}

// OnDone declares the transition taken when the enclosing invocation
// fulfills. The event's Data carries the service result.
func OnDone(elements ...Element) Element {
	return invocationTransition(DoneInvokeEvent, "OnDone", elements...)
}

// OnError declares the transition taken when the enclosing invocation
// rejects. The event's Data carries the error.
func OnError(elements ...Element) Element {
	return invocationTransition(ErrorInvokeEvent, "OnError", elements...)
}

func invocationTransition(eventOf func(string) string, label string, elements ...Element) Element {
	return func(b *Builder, stack []any) error {
		inv := findInvocation(stack)
		if inv == nil {
			return fmt.Errorf("%s must be declared within an invoke", label)
		}
		t := &Transition{eventType: eventOf(inv.id), source: inv.owner}
		inv.owner.transitions = append(inv.owner.transitions, t)
		return apply(b, append(stack, t), elements...)
	}
}

func finalize(m *Machine) error {
	if len(m.root.children) == 0 {
		return fmt.Errorf("machine %q has no states", m.id)
	}
	order := 0
	var walk func(n *Node) error
	walk = func(n *Node) error {
		n.docOrder = order
		order++
		if len(n.children) > 0 {
			if n.kind == KindAtomic {
				n.kind = KindCompound
			}
			switch n.kind {
			case KindCompound:
				if n.initial == "" {
					n.initial = n.children[0].qualifiedName
				}
			case KindParallel:
				if n.initial != "" {
					return fmt.Errorf("parallel state %q cannot designate an initial child", n.qualifiedName)
				}
			}
		} else {
			if n.kind == KindCompound || n.kind == KindParallel {
				return fmt.Errorf("%s state %q has no children", n.kind, n.qualifiedName)
			}
			if n.initial != "" {
				return fmt.Errorf("%s state %q cannot designate an initial child", n.kind, n.qualifiedName)
			}
		}
		for _, child := range n.children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(m.root)
}
