package statechart

import (
	"fmt"
	"sort"

	"github.com/statecraft/go-statechart/pkg/set"
)

// Configuration is the full set of simultaneously active states: one
// ancestor chain per parallel region, down to atomic or final leaves.
// The zero value is not useful; configurations are produced by the
// interpreter and are always structurally valid against their machine.
type Configuration struct {
	active set.Set[string]
}

func newConfiguration() Configuration {
	return Configuration{active: set.New[string]()}
}

// Contains reports whether the state with the given qualified name is active.
func (c Configuration) Contains(qualifiedName string) bool {
	return c.active.Contains(qualifiedName)
}

// Active returns the active qualified names sorted lexicographically.
func (c Configuration) Active() []string {
	out := make([]string, 0, c.active.Size())
	for qualifiedName := range c.active.Items() {
		out = append(out, qualifiedName)
	}
	sort.Strings(out)
	return out
}

func (c Configuration) clone() Configuration {
	clone := newConfiguration()
	for qualifiedName := range c.active.Items() {
		clone.active.Add(qualifiedName)
	}
	return clone
}

// leaves returns the active leaf nodes in document order, one per region.
func (c Configuration) leaves(m *Machine) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		descended := false
		for _, child := range n.children {
			if c.active.Contains(child.qualifiedName) {
				descended = true
				walk(child)
			}
		}
		if !descended {
			out = append(out, n)
		}
	}
	if c.active.Contains(m.root.qualifiedName) {
		walk(m.root)
	}
	return out
}

// validate checks the structural invariant: every active compound node has
// exactly one active child and every active parallel node has all of its
// regions active.
func (c Configuration) validate(m *Machine) error {
	for qualifiedName := range c.active.Items() {
		n := m.namespace[qualifiedName]
		if n == nil {
			return fmt.Errorf("active state %q is not in the machine", qualifiedName)
		}
		switch n.kind {
		case KindCompound:
			activeChildren := 0
			for _, child := range n.children {
				if c.active.Contains(child.qualifiedName) {
					activeChildren++
				}
			}
			if activeChildren != 1 {
				return fmt.Errorf("compound state %q has %d active children", qualifiedName, activeChildren)
			}
		case KindParallel:
			for _, child := range n.children {
				if !c.active.Contains(child.qualifiedName) {
					return fmt.Errorf("parallel state %q is missing region %q", qualifiedName, child.qualifiedName)
				}
			}
		}
	}
	return nil
}

// resolveInitial returns the nodes entered when n is entered with no more
// specific target, shallowest first: n itself, then the designated initial
// descent for compound nodes, or every region for parallel nodes.
func resolveInitial(n *Node) []*Node {
	out := []*Node{n}
	switch n.kind {
	case KindCompound:
		for _, child := range n.children {
			if child.qualifiedName == n.initial {
				out = append(out, resolveInitial(child)...)
			}
		}
	case KindParallel:
		for _, child := range n.children {
			out = append(out, resolveInitial(child)...)
		}
	}
	return out
}

// transitionDomain returns the domain of a transition: the LCA of source
// and target, lifted past parallel nodes. A region cannot be exited on its
// own, so a transition crossing a region boundary exits and re-enters the
// parallel state whole; entrySet then restores the sibling regions through
// their default descent.
func transitionDomain(m *Machine, source, target string) string {
	domain := LCA(source, target)
	for n := m.namespace[domain]; n != nil && n.kind == KindParallel; n = m.namespace[domain] {
		domain = n.parent.qualifiedName
	}
	return domain
}

// exitSet returns the active states strictly below the transition domain,
// ordered deepest child before parent.
func exitSet(m *Machine, c Configuration, domain string) []*Node {
	var out []*Node
	for qualifiedName := range c.active.Items() {
		if IsAncestor(domain, qualifiedName) {
			if n := m.namespace[qualifiedName]; n != nil {
				out = append(out, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if d1, d2 := out[i].depth(), out[j].depth(); d1 != d2 {
			return d1 > d2
		}
		return out[i].docOrder > out[j].docOrder
	})
	return out
}

// entrySet returns the states entered on the way from the transition domain
// down to target, shallowest parent before child. Compound and parallel
// nodes entered without a more specific descendant are expanded through
// resolveInitial; regions of a parallel node crossed on the way are entered
// alongside the chain.
func entrySet(domain string, target *Node) []*Node {
	if target.qualifiedName == domain {
		// Transition to an ancestor of its source: the domain stays active,
		// its default descent is re-entered.
		return resolveInitial(target)[1:]
	}
	var chain []*Node
	for n := target; n != nil && n.qualifiedName != domain; n = n.parent {
		chain = append([]*Node{n}, chain...)
	}
	var out []*Node
	for i, n := range chain {
		if i == len(chain)-1 {
			out = append(out, resolveInitial(n)...)
			continue
		}
		out = append(out, n)
		if n.kind == KindParallel {
			next := chain[i+1]
			for _, region := range n.children {
				if region != next {
					out = append(out, resolveInitial(region)...)
				}
			}
		}
	}
	return out
}
