package statechart

import "sort"

// step processes one event to completion: selects transitions, runs the
// exit phase (deepest first, canceling invocations and timers owned by
// exited states), the transition actions (assigns folded sequentially),
// the entry phase (shallowest first, starting invocations and timers), and
// finally checks for completion. It reports whether anything changed.
func (i *Interpreter[C]) step(event Event) (bool, error) {
	picked, err := i.selectTransitions(event)
	if err != nil {
		return false, err
	}
	if len(picked) == 0 {
		i.logger.Debug("statechart: unmatched event", "machine", i.machine.id, "event", event.Type)
		return false, nil
	}

	exits, entries := i.transitionSets(picked)

	for _, n := range exits {
		i.cancelOwned(n)
		if err := i.runActions(n.exit, event, "exit", n.qualifiedName); err != nil {
			return false, err
		}
		i.config.active.Remove(n.qualifiedName)
	}

	for _, t := range picked {
		if err := i.runActions(t.actions, event, "action", t.source.qualifiedName); err != nil {
			return false, err
		}
	}

	for _, n := range entries {
		i.config.active.Add(n.qualifiedName)
		if err := i.runActions(n.entry, event, "entry", n.qualifiedName); err != nil {
			return false, err
		}
	}
	for _, n := range entries {
		i.startInvocations(n, event)
		i.startTimers(n)
	}

	if i.inFinal(i.machine.root) {
		i.finish()
	}
	return true, nil
}

// transitionSets computes the combined exit and entry sets for the selected
// transitions. Exit order is deepest child before parent; entry order is
// shallowest parent before child. Internal transitions contribute nothing.
func (i *Interpreter[C]) transitionSets(picked []*Transition) (exits, entries []*Node) {
	exitSeen := make(map[*Node]bool)
	entrySeen := make(map[*Node]bool)
	for _, t := range picked {
		if t.IsInternal() {
			continue
		}
		target := i.machine.namespace[t.target]
		domain := transitionDomain(i.machine, t.source.qualifiedName, t.target)
		for _, n := range exitSet(i.machine, i.config, domain) {
			if !exitSeen[n] {
				exitSeen[n] = true
				exits = append(exits, n)
			}
		}
		for _, n := range entrySet(domain, target) {
			if !entrySeen[n] {
				entrySeen[n] = true
				entries = append(entries, n)
			}
		}
	}
	sort.Slice(exits, func(a, b int) bool {
		if d1, d2 := exits[a].depth(), exits[b].depth(); d1 != d2 {
			return d1 > d2
		}
		return exits[a].docOrder > exits[b].docOrder
	})
	sort.Slice(entries, func(a, b int) bool {
		if d1, d2 := entries[a].depth(), entries[b].depth(); d1 != d2 {
			return d1 < d2
		}
		return entries[a].docOrder < entries[b].docOrder
	})
	return exits, entries
}

// runActions executes actions in declaration order. Assign results replace
// the context immediately, so later actions in the same step observe them.
// A panicking action is fatal: partial side effects may already have
// applied and resuming would break the exit/entry ordering invariant.
func (i *Interpreter[C]) runActions(actions []*Action, event Event, stage, state string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{
				Machine:   i.machine.id,
				Stage:     stage,
				State:     state,
				Recovered: r,
			}
		}
	}()
	for _, action := range actions {
		switch action.kind {
		case ActionAssign:
			i.context = action.fn.(func(C, Event) C)(i.context, event)
		case ActionEffect:
			action.fn.(func(C, Event))(i.context, event)
		}
	}
	return nil
}

// inFinal reports completion: a compound state is complete when its active
// child is final; a parallel state when every region is complete.
func (i *Interpreter[C]) inFinal(n *Node) bool {
	switch n.kind {
	case KindFinal:
		return true
	case KindParallel:
		for _, region := range n.children {
			if !i.inFinal(region) {
				return false
			}
		}
		return true
	case KindCompound:
		active := i.activeChild(n)
		if active == nil {
			return false
		}
		switch active.kind {
		case KindFinal:
			return true
		case KindParallel:
			return i.inFinal(active)
		default:
			return false
		}
	default:
		return false
	}
}

func (i *Interpreter[C]) activeChild(n *Node) *Node {
	for _, child := range n.children {
		if i.config.Contains(child.qualifiedName) {
			return child
		}
	}
	return nil
}
