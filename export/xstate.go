package export

import (
	"encoding/json"
	"path"
	"strconv"

	statechart "github.com/statecraft/go-statechart"
)

// Machine is an XState v5 compatible machine configuration, usable with the
// Stately visualizer and inspector.
type Machine struct {
	ID      string          `json:"id"`
	Initial string          `json:"initial,omitempty"`
	States  map[string]Node `json:"states,omitempty"`
}

// Node is one state in XState format.
type Node struct {
	Type    string                  `json:"type,omitempty"` // "parallel" or "final"
	Initial string                  `json:"initial,omitempty"`
	Entry   []string                `json:"entry,omitempty"`
	Exit    []string                `json:"exit,omitempty"`
	On      map[string][]Transition `json:"on,omitempty"`
	After   map[string][]Transition `json:"after,omitempty"`
	Invoke  []Invoke                `json:"invoke,omitempty"`
	States  map[string]Node         `json:"states,omitempty"`
}

// Transition is one transition in XState format.
type Transition struct {
	Target  string   `json:"target,omitempty"`
	Guard   string   `json:"guard,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// Invoke is one invoked service in XState format.
type Invoke struct {
	Src     string       `json:"src"`
	OnDone  []Transition `json:"onDone,omitempty"`
	OnError []Transition `json:"onError,omitempty"`
}

// XState converts the machine definition to XState form.
func XState(m *statechart.Machine) Machine {
	out := Machine{ID: m.ID()}
	root := m.Root()
	if initial := root.Initial(); initial != "" {
		out.Initial = path.Base(initial)
	}
	out.States = childStates(root)
	return out
}

// XStateJSON renders the machine definition as indented XState JSON.
func XStateJSON(m *statechart.Machine) ([]byte, error) {
	return json.MarshalIndent(XState(m), "", "  ")
}

func childStates(n *statechart.Node) map[string]Node {
	if len(n.Children()) == 0 {
		return nil
	}
	out := make(map[string]Node, len(n.Children()))
	for _, child := range n.Children() {
		out[child.Name()] = exportNode(child)
	}
	return out
}

func exportNode(n *statechart.Node) Node {
	out := Node{States: childStates(n)}
	switch n.Kind() {
	case statechart.KindParallel:
		out.Type = "parallel"
	case statechart.KindFinal:
		out.Type = "final"
	}
	if initial := n.Initial(); initial != "" {
		out.Initial = path.Base(initial)
	}
	for _, action := range n.EntryActions() {
		out.Entry = append(out.Entry, action.Name())
	}
	for _, action := range n.ExitActions() {
		out.Exit = append(out.Exit, action.Name())
	}

	invokes := make(map[string]*Invoke, len(n.Invocations()))
	for _, inv := range n.Invocations() {
		invokes[inv.ID()] = &Invoke{Src: inv.ID()}
	}
	for _, t := range n.Transitions() {
		converted := exportTransition(t)
		switch {
		case t.Delay() > 0:
			if out.After == nil {
				out.After = make(map[string][]Transition)
			}
			key := strconv.FormatInt(t.Delay().Milliseconds(), 10)
			out.After[key] = append(out.After[key], converted)
		case invocationTransition(invokes, t, converted):
		default:
			if out.On == nil {
				out.On = make(map[string][]Transition)
			}
			out.On[t.EventType()] = append(out.On[t.EventType()], converted)
		}
	}
	for _, inv := range n.Invocations() {
		out.Invoke = append(out.Invoke, *invokes[inv.ID()])
	}
	return out
}

// invocationTransition folds done.invoke / error.platform transitions into
// the invoke entry they belong to, reporting whether it matched one.
func invocationTransition(invokes map[string]*Invoke, t *statechart.Transition, converted Transition) bool {
	for id, inv := range invokes {
		switch t.EventType() {
		case statechart.DoneInvokeEvent(id):
			inv.OnDone = append(inv.OnDone, converted)
			return true
		case statechart.ErrorInvokeEvent(id):
			inv.OnError = append(inv.OnError, converted)
			return true
		}
	}
	return false
}

func exportTransition(t *statechart.Transition) Transition {
	out := Transition{}
	if !t.IsInternal() {
		out.Target = targetName(t.Source(), t.Target())
	}
	if t.Guarded() {
		out.Guard = t.GuardName()
	}
	for _, action := range t.Actions() {
		out.Actions = append(out.Actions, action.Name())
	}
	return out
}
