// Package statechart implements a hierarchical, parallel statechart
// interpreter: an event-driven state machine runtime with compound and
// parallel states, guarded transitions, entry/exit actions, invoked
// asynchronous services, and delayed transitions.
//
// A Machine is an immutable description built with Define and friends.
// An Interpreter owns one mutable context value and one active
// configuration, processes events through a serialized mailbox, and
// publishes snapshots to subscribers after every processed event.
package statechart

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Kind classifies a state node.
type Kind int

const (
	// KindAtomic is a leaf state with no children.
	KindAtomic Kind = iota
	// KindCompound has children, exactly one of which is active at a time.
	KindCompound
	// KindParallel has children that are all active simultaneously.
	KindParallel
	// KindFinal is a terminal state.
	KindFinal
)

func (k Kind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindCompound:
		return "compound"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// ActionKind is the closed tag of an Action variant.
type ActionKind int

const (
	// ActionAssign replaces the interpreter context with the function's result.
	ActionAssign ActionKind = iota
	// ActionEffect runs a side effect and leaves the context untouched.
	ActionEffect
)

// Wildcard matches any event type when used as a transition trigger.
const Wildcard = "*"

// Event is a runtime event with an optional payload.
type Event struct {
	Type string
	Data any
}

// DoneInvokeEvent is the internal event type enqueued when the invocation
// with the given id fulfills.
func DoneInvokeEvent(id string) string { return "done.invoke." + id }

// ErrorInvokeEvent is the internal event type enqueued when the invocation
// with the given id rejects.
func ErrorInvokeEvent(id string) string { return "error.platform." + id }

func afterEventType(d time.Duration, owner string) string {
	return fmt.Sprintf("after.%d%s", d.Milliseconds(), owner)
}

// Action is a tagged variant of assign | effect. The wrapped function is
// type-erased in the model; New revalidates it against the interpreter's
// context type.
type Action struct {
	kind ActionKind
	name string
	fn   any // func(C, Event) C for assign, func(C, Event) for effect
}

// Kind returns the variant tag.
func (a *Action) Kind() ActionKind { return a.kind }

// Name returns the label given at construction, used in exports and logs.
func (a *Action) Name() string { return a.name }

// Transition connects a source state to a target on an event type.
// A transition with an empty target is internal: its actions run without
// exiting or entering any state.
type Transition struct {
	eventType string
	source    *Node
	target    string // absolute qualified name, "" for internal
	guard     any    // func(C, Event) bool
	guardName string
	actions   []*Action
	delay     time.Duration // non-zero for delayed transitions
}

// EventType returns the triggering event type, possibly Wildcard.
func (t *Transition) EventType() string { return t.eventType }

// Source returns the owning state node.
func (t *Transition) Source() *Node { return t.source }

// Target returns the absolute qualified name of the target state,
// or "" for an internal transition.
func (t *Transition) Target() string { return t.target }

// IsInternal reports whether the transition has no target.
func (t *Transition) IsInternal() bool { return t.target == "" }

// Delay returns the trigger delay for delayed transitions, zero otherwise.
func (t *Transition) Delay() time.Duration { return t.delay }

// Actions returns the transition's own actions in declaration order.
func (t *Transition) Actions() []*Action { return t.actions }

// GuardName returns the guard's label, "" when unguarded.
func (t *Transition) GuardName() string { return t.guardName }

// Guarded reports whether the transition has a guard.
func (t *Transition) Guarded() bool { return t.guard != nil }

// Invocation binds an asynchronous service to a state's active lifetime.
// The service starts when the state is entered and is canceled when it is
// exited. Fulfillment and rejection are delivered as internal events.
type Invocation struct {
	id    string
	owner *Node
	src   any // func(context.Context, C, Event) (any, error)
}

// ID returns the invocation id used in done.invoke / error.platform events.
func (inv *Invocation) ID() string { return inv.id }

// Owner returns the state whose lifetime bounds the service.
func (inv *Invocation) Owner() *Node { return inv.owner }

// Node is one state in the tree. Nodes are immutable after Define returns.
type Node struct {
	kind          Kind
	qualifiedName string
	initial       string // qualified name of the designated initial child
	parent        *Node
	children      []*Node // document order
	entry         []*Action
	exit          []*Action
	transitions   []*Transition // declaration order
	invocations   []*Invocation
	docOrder      int
}

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.kind }

// QualifiedName returns the absolute path-style id, e.g. "/player/paused".
func (n *Node) QualifiedName() string { return n.qualifiedName }

// Name returns the last path segment of the qualified name.
func (n *Node) Name() string { return path.Base(n.qualifiedName) }

// Parent returns the owning node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in document order.
func (n *Node) Children() []*Node { return n.children }

// Transitions returns the node's transitions in declaration order.
func (n *Node) Transitions() []*Transition { return n.transitions }

// EntryActions returns the actions run when the node is entered.
func (n *Node) EntryActions() []*Action { return n.entry }

// ExitActions returns the actions run when the node is exited.
func (n *Node) ExitActions() []*Action { return n.exit }

// Invocations returns the services bound to the node.
func (n *Node) Invocations() []*Invocation { return n.invocations }

// Initial returns the qualified name of the designated initial child,
// or "" for leaves.
func (n *Node) Initial() string { return n.initial }

func (n *Node) depth() int {
	if n.qualifiedName == "/" {
		return 0
	}
	return strings.Count(n.qualifiedName, "/")
}

// Machine is the immutable definition of a statechart: the state tree plus
// a namespace of qualified names. It carries no runtime state and may be
// shared by any number of interpreters.
type Machine struct {
	id        string
	root      *Node
	namespace map[string]*Node
}

// ID returns the machine id given to Define.
func (m *Machine) ID() string { return m.id }

// Root returns the root node.
func (m *Machine) Root() *Node { return m.root }

// Node looks up a node by qualified name, nil if absent.
func (m *Machine) Node(qualifiedName string) *Node { return m.namespace[qualifiedName] }

// LCA returns the least common ancestor of two qualified names.
// For identical names it returns the parent, which gives self transitions
// external exit/re-enter semantics.
func LCA(a, b string) string {
	if a == b {
		return path.Dir(a)
	}
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if path.Dir(a) == path.Dir(b) {
		return path.Dir(a)
	}
	if IsAncestor(a, b) {
		return a
	}
	if IsAncestor(b, a) {
		return b
	}
	return LCA(path.Dir(a), path.Dir(b))
}

// IsAncestor reports whether current is a proper ancestor of target.
func IsAncestor(current, target string) bool {
	current = path.Clean(current)
	target = path.Clean(target)
	if current == target || current == "." || target == "." {
		return false
	}
	if current == "/" {
		return target != "/"
	}
	return strings.HasPrefix(target, current+"/")
}
