package statechart

// selectTransitions picks at most one transition per active region for the
// event: for each active atomic leaf (document order) it walks up through
// ancestors and stops at the first level with a matching, guard-passing
// transition. Exact event types are tried before the wildcard at each
// level. A transition reachable from several leaves, above a parallel
// boundary, is selected once.
func (i *Interpreter[C]) selectTransitions(event Event) ([]*Transition, error) {
	leaves := i.config.leaves(i.machine)
	var picked []*Transition
	seen := make(map[*Transition]bool)
	for _, leaf := range leaves {
		for n := leaf; n != nil; n = n.parent {
			t, err := i.match(n, event)
			if err != nil {
				return nil, err
			}
			if t == nil {
				continue
			}
			if !seen[t] {
				seen[t] = true
				picked = append(picked, t)
			}
			break
		}
	}
	return picked, nil
}

func (i *Interpreter[C]) match(n *Node, event Event) (*Transition, error) {
	for _, t := range n.transitions {
		if t.eventType != event.Type {
			continue
		}
		pass, err := i.evaluateGuard(t, event)
		if err != nil {
			return nil, err
		}
		if pass {
			return t, nil
		}
	}
	for _, t := range n.transitions {
		if t.eventType != Wildcard {
			continue
		}
		pass, err := i.evaluateGuard(t, event)
		if err != nil {
			return nil, err
		}
		if pass {
			return t, nil
		}
	}
	return nil, nil
}

// evaluateGuard runs the transition's guard with the current context.
// A panicking guard is fatal: guard semantics are undefined once a
// predicate cannot be evaluated.
func (i *Interpreter[C]) evaluateGuard(t *Transition, event Event) (pass bool, err error) {
	if t.guard == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			pass = false
			err = &FatalError{
				Machine:   i.machine.id,
				Stage:     "guard",
				State:     t.source.qualifiedName,
				Recovered: r,
			}
		}
	}()
	return t.guard.(func(C, Event) bool)(i.context, event), nil
}
