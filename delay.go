package statechart

// startTimers schedules every delayed transition declared on a newly
// entered state. The timer fires through the injected Scheduler and lands
// in the mailbox as an internal pseudo-event carrying the liveness token,
// so a timer that outraces its own cancellation is still discarded before
// it can be processed.
func (i *Interpreter[C]) startTimers(n *Node) {
	for _, t := range n.transitions {
		if t.delay <= 0 {
			continue
		}
		transition := t
		token := newLiveness()
		cancel := i.scheduler.Schedule(t.delay, func() {
			if !token.ok() {
				return
			}
			i.deliver(Event{Type: transition.eventType}, token)
		})
		qualifiedName := n.qualifiedName
		i.actMu.Lock()
		i.timers[qualifiedName] = append(i.timers[qualifiedName], &activeTimer{
			transition: transition,
			token:      token,
			cancel:     cancel,
		})
		i.actMu.Unlock()
	}
}
