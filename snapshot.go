package statechart

import "strings"

// Snapshot is the read-only view published to subscribers after every
// processed event. Value renders the active configuration as nested state
// names: a plain string for a flat machine ("inactive"), a map for nested
// states ({"playing": "buffering"}), and a map keyed by region name for
// parallel states. Context is a copy of the interpreter context; mutating
// reference-typed fields inside it still aliases interpreter state, so
// contexts should hold values.
type Snapshot[C any] struct {
	Value   any
	Context C
	Status  Status

	active []string
}

// ActiveStates returns the qualified names of every active state, sorted.
func (s Snapshot[C]) ActiveStates() []string {
	out := make([]string, len(s.active))
	copy(out, s.active)
	return out
}

// Matches reports whether a state with the given name is active. Absolute
// qualified names ("/player/paused") match exactly; bare names ("paused")
// match any active state with that final segment.
func (s Snapshot[C]) Matches(name string) bool {
	for _, qualifiedName := range s.active {
		if qualifiedName == name || strings.HasSuffix(qualifiedName, "/"+name) {
			return true
		}
	}
	return false
}

// configValue renders the nested-name view of an active configuration.
// A machine whose whole body is a single parallel state renders as the
// region map directly, so a parallel machine's value reads
// {"network": "offline", "theme": "dark"} without a wrapper level.
func configValue(m *Machine, c Configuration) any {
	root := m.root
	if len(root.children) == 1 && root.children[0].kind == KindParallel {
		return nodeValue(root.children[0], c)
	}
	return nodeValue(root, c)
}

func nodeValue(n *Node, c Configuration) any {
	switch n.kind {
	case KindParallel:
		out := make(map[string]any, len(n.children))
		for _, region := range n.children {
			out[region.Name()] = nodeValue(region, c)
		}
		return out
	case KindCompound:
		var active *Node
		for _, child := range n.children {
			if c.Contains(child.qualifiedName) {
				active = child
				break
			}
		}
		if active == nil {
			return n.Name()
		}
		if len(active.children) == 0 {
			return active.Name()
		}
		return map[string]any{active.Name(): nodeValue(active, c)}
	default:
		return n.Name()
	}
}
