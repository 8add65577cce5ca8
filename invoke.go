package statechart

import (
	"context"

	"github.com/google/uuid"
)

// liveness is the cancellation flag shared between a state's activation and
// the internal events it produces. It is flipped dead synchronously while
// the owning state exits, before the mailbox can be re-entered, and checked
// again when the event is popped — so a stale completion can never reach
// the step executor, no matter how the flip races the delivery.
type liveness struct {
	dead chan struct{}
}

func newLiveness() *liveness {
	return &liveness{dead: make(chan struct{})}
}

func (l *liveness) kill() {
	select {
	case <-l.dead:
	default:
		close(l.dead)
	}
}

func (l *liveness) ok() bool {
	select {
	case <-l.dead:
		return false
	default:
		return true
	}
}

type activeInvocation struct {
	def    *Invocation
	id     string // activation id, unique per entry
	token  *liveness
	cancel context.CancelFunc
}

type activeTimer struct {
	transition *Transition
	token      *liveness
	cancel     func()
}

// startInvocations launches every service declared on a newly entered state.
func (i *Interpreter[C]) startInvocations(n *Node, cause Event) {
	for _, inv := range n.invocations {
		i.startInvocation(inv, cause)
	}
}

func (i *Interpreter[C]) startInvocation(inv *Invocation, cause Event) {
	src := inv.src.(func(context.Context, C, Event) (any, error))
	serviceCtx, cancel := context.WithCancel(context.Background())
	act := &activeInvocation{
		def:    inv,
		id:     uuid.NewString(),
		token:  newLiveness(),
		cancel: cancel,
	}
	owner := inv.owner.qualifiedName
	i.actMu.Lock()
	i.invocations[owner] = append(i.invocations[owner], act)
	i.actMu.Unlock()

	// The service sees the context value as of its start; later assigns do
	// not leak into an in-flight service.
	snapshot := i.context
	go func() {
		result, err := src(serviceCtx, snapshot, cause)
		cancel()
		if !act.token.ok() {
			i.logger.Debug("statechart: discarding stale invocation result",
				"machine", i.machine.id, "invoke", inv.id, "activation", act.id)
			return
		}
		if err != nil {
			i.deliver(Event{Type: ErrorInvokeEvent(inv.id), Data: err}, act.token)
			return
		}
		i.deliver(Event{Type: DoneInvokeEvent(inv.id), Data: result}, act.token)
	}()
}

// cancelOwned kills every invocation and timer owned by an exited state.
// Runs synchronously inside the exit phase of a step.
func (i *Interpreter[C]) cancelOwned(n *Node) {
	qualifiedName := n.qualifiedName
	i.actMu.Lock()
	for _, act := range i.invocations[qualifiedName] {
		act.token.kill()
		act.cancel()
	}
	delete(i.invocations, qualifiedName)
	for _, timer := range i.timers[qualifiedName] {
		timer.token.kill()
		timer.cancel()
	}
	delete(i.timers, qualifiedName)
	i.actMu.Unlock()
}

// cancelAll kills every outstanding invocation and timer; used when the
// interpreter reaches a terminal status.
func (i *Interpreter[C]) cancelAll() {
	i.actMu.Lock()
	for _, acts := range i.invocations {
		for _, act := range acts {
			act.token.kill()
			act.cancel()
		}
	}
	i.invocations = make(map[string][]*activeInvocation)
	for _, timers := range i.timers {
		for _, timer := range timers {
			timer.token.kill()
			timer.cancel()
		}
	}
	i.timers = make(map[string][]*activeTimer)
	i.actMu.Unlock()
}
