package statechart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/statecraft/go-statechart/clock"
	"github.com/statecraft/go-statechart/pkg/metrics"
	"github.com/statecraft/go-statechart/pkg/telemetry"
	"github.com/statecraft/go-statechart/queue"
)

// envelope is one mailbox entry. Internal events carry the liveness token
// of the invocation or timer that produced them.
type envelope struct {
	event Event
	token *liveness
}

// Interpreter runs one machine: it owns a mutable context value, the active
// configuration, and a FIFO mailbox, and processes events one at a time.
// The interpreter is a mailbox-driven actor: Send and the internal
// deliveries may come from any goroutine, but only one event is ever
// processed at a time, and a send issued from inside an action or a
// subscriber callback is queued behind the current step, never nested.
type Interpreter[C any] struct {
	id      string
	machine *Machine
	context C
	config  Configuration

	mailbox  *queue.Queue[envelope]
	status   atomic.Int32
	stepping atomic.Bool

	actMu       sync.Mutex
	invocations map[string][]*activeInvocation
	timers      map[string][]*activeTimer

	subMu       sync.Mutex
	nextSub     int
	subscribers map[int]func(Snapshot[C])

	snapshot atomic.Pointer[Snapshot[C]]
	initial  C

	scheduler clock.Scheduler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an interpreter at construction.
type Option[C any] func(*Interpreter[C])

// WithScheduler injects the timer capability used for delayed transitions.
// Defaults to clock.System; tests use clock.NewManual.
func WithScheduler[C any](s clock.Scheduler) Option[C] {
	return func(i *Interpreter[C]) { i.scheduler = s }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger[C any](logger *slog.Logger) Option[C] {
	return func(i *Interpreter[C]) { i.logger = logger }
}

// WithTracerProvider sets the OpenTelemetry provider used to trace steps.
// Defaults to the no-op provider in pkg/telemetry.
func WithTracerProvider[C any](tp trace.TracerProvider) Option[C] {
	return func(i *Interpreter[C]) {
		i.tracer = tp.Tracer("github.com/statecraft/go-statechart")
	}
}

// New creates an idle interpreter for the machine with the given initial
// context value. The machine's guards, actions and services are validated
// against the context type C up front, so a mismatched closure fails here
// rather than mid-step.
func New[C any](machine *Machine, initial C, options ...Option[C]) (*Interpreter[C], error) {
	if machine == nil {
		return nil, fmt.Errorf("statechart: machine must not be nil")
	}
	if err := validateBehaviors[C](machine); err != nil {
		return nil, err
	}
	i := &Interpreter[C]{
		id:          machine.id + "-" + uuid.NewString(),
		machine:     machine,
		context:     initial,
		initial:     initial,
		config:      newConfiguration(),
		mailbox:     queue.New[envelope](),
		invocations: make(map[string][]*activeInvocation),
		timers:      make(map[string][]*activeTimer),
		subscribers: make(map[int]func(Snapshot[C])),
		scheduler:   clock.System(),
		logger:      slog.Default(),
		tracer:      telemetry.NewProvider().Tracer("github.com/statecraft/go-statechart"),
	}
	for _, option := range options {
		option(i)
	}
	return i, nil
}

// ID returns the unique id of this interpreter instance.
func (i *Interpreter[C]) ID() string { return i.id }

// Machine returns the shared, read-only definition.
func (i *Interpreter[C]) Machine() *Machine { return i.machine }

// Status returns the current lifecycle phase.
func (i *Interpreter[C]) Status() Status {
	s := Status(i.status.Load())
	if s == statusStarting {
		return StatusRunning
	}
	return s
}

// Start enters the initial configuration, runs its entry actions, starts
// invocations and timers for the entered states, and publishes the first
// snapshot. Starting an already-started interpreter is a no-op.
func (i *Interpreter[C]) Start() error {
	if !i.status.CompareAndSwap(int32(StatusIdle), int32(statusStarting)) {
		return nil
	}
	metrics.InterpreterStarted(i.machine.id)
	i.stepping.Store(true)
	err := i.enterInitial()
	if err != nil {
		i.fail(err)
		i.stepping.Store(false)
		return err
	}
	i.status.Store(int32(StatusRunning))
	i.publish()
	i.stepping.Store(false)
	// Services started during entry may already have delivered.
	return i.drain()
}

func (i *Interpreter[C]) enterInitial() error {
	entered := resolveInitial(i.machine.root)
	for _, n := range entered {
		i.config.active.Add(n.qualifiedName)
		if err := i.runActions(n.entry, Event{}, "entry", n.qualifiedName); err != nil {
			return err
		}
	}
	for _, n := range entered {
		i.startInvocations(n, Event{})
		i.startTimers(n)
	}
	if i.inFinal(i.machine.root) {
		i.finish()
	}
	return nil
}

// Send queues an event and, unless a step is already running, drains the
// mailbox to completion before returning. Sends on an interpreter that is
// not running are no-ops. A fatal guard or action failure inside any event
// drained by this call is returned here, after the interpreter has moved
// to StatusErrored.
func (i *Interpreter[C]) Send(event Event) error {
	if Status(i.status.Load()) != StatusRunning {
		i.logger.Debug("statechart: dropping send, interpreter not running",
			"machine", i.machine.id, "event", event.Type, "status", i.Status().String())
		return nil
	}
	i.mailbox.Push(envelope{event: event})
	return i.drain()
}

// deliver is the internal-event path used by invocation completions and
// timer firings. Internal events are accepted during startup too, so a
// service that completes while Start is still entering states is queued
// rather than lost.
func (i *Interpreter[C]) deliver(event Event, token *liveness) {
	switch Status(i.status.Load()) {
	case StatusRunning, statusStarting:
	default:
		return
	}
	i.mailbox.Push(envelope{event: event, token: token})
	// A fatal failure on the async path has no caller to return to; drain
	// has already latched StatusErrored and logged it.
	_ = i.drain()
}

// drain claims the run-to-completion loop and processes mailbox events one
// at a time until the mailbox is empty or the interpreter leaves
// StatusRunning. If another goroutine (or an enclosing step on this one)
// holds the loop, the pushed events are left for it: queued, not nested.
func (i *Interpreter[C]) drain() error {
	if !i.stepping.CompareAndSwap(false, true) {
		return nil
	}
	for {
		for {
			if Status(i.status.Load()) != StatusRunning {
				i.stepping.Store(false)
				return nil
			}
			env, ok := i.mailbox.Pop()
			if !ok {
				break
			}
			if env.token != nil && !env.token.ok() {
				i.logger.Debug("statechart: discarding canceled internal event",
					"machine", i.machine.id, "event", env.event.Type)
				metrics.ObserveStep(i.machine.id, env.event.Type, metrics.OutcomeDiscarded, 0)
				continue
			}
			if err := i.process(env.event); err != nil {
				i.fail(err)
				i.stepping.Store(false)
				return err
			}
		}
		i.stepping.Store(false)
		// Re-check: a producer may have pushed between the final Pop and
		// releasing the loop.
		if i.mailbox.Len() == 0 || Status(i.status.Load()) != StatusRunning {
			return nil
		}
		if !i.stepping.CompareAndSwap(false, true) {
			return nil
		}
	}
}

// process runs one event through the step executor with tracing and
// metrics around it, and publishes a snapshot when anything changed.
func (i *Interpreter[C]) process(event Event) error {
	started := time.Now()
	_, span := i.tracer.Start(context.Background(), "statechart.step",
		trace.WithAttributes(
			attribute.String("statechart.machine", i.machine.id),
			attribute.String("statechart.interpreter", i.id),
			attribute.String("statechart.event", event.Type),
		))
	changed, err := i.step(event)
	outcome := metrics.OutcomeUnmatched
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case changed:
		outcome = metrics.OutcomeTransitioned
	}
	span.SetAttributes(attribute.Bool("statechart.transitioned", changed))
	span.End()
	metrics.ObserveStep(i.machine.id, event.Type, outcome, time.Since(started))
	if err != nil {
		return err
	}
	if changed {
		i.publish()
	}
	return nil
}

// finish latches StatusDone after the configuration reached a top-level
// final state, canceling whatever is still outstanding.
func (i *Interpreter[C]) finish() {
	i.status.Store(int32(StatusDone))
	i.cancelAll()
	i.mailbox.Clear()
	metrics.InterpreterStopped(i.machine.id)
	i.logger.Debug("statechart: machine done", "machine", i.machine.id, "interpreter", i.id)
}

// fail latches StatusErrored. The failing step is not committed: the last
// successfully published snapshot keeps its value and context, and only
// the status changes in the terminal snapshot published to subscribers.
func (i *Interpreter[C]) fail(err error) {
	i.status.Store(int32(StatusErrored))
	i.cancelAll()
	i.mailbox.Clear()
	metrics.InterpreterStopped(i.machine.id)
	i.logger.Error("statechart: fatal error", "machine", i.machine.id, "interpreter", i.id, "error", err)
	i.publishTerminal(StatusErrored)
}

// Stop cancels all invocations and timers, clears the mailbox and moves the
// interpreter to StatusStopped. Safe to call at any time, from any
// goroutine, repeatedly.
func (i *Interpreter[C]) Stop() {
	for {
		current := Status(i.status.Load())
		switch current {
		case StatusDone, StatusStopped, StatusErrored:
			return
		}
		if i.status.CompareAndSwap(int32(current), int32(StatusStopped)) {
			if current == StatusRunning || current == statusStarting {
				metrics.InterpreterStopped(i.machine.id)
			}
			break
		}
	}
	i.cancelAll()
	i.mailbox.Clear()
	i.publishTerminal(StatusStopped)
}

// Subscribe registers a listener that receives a snapshot after every
// processed event that changed state, context or status. Listeners run
// synchronously on the processing goroutine; a listener that calls Send is
// queued behind the current step. The returned function unsubscribes.
func (i *Interpreter[C]) Subscribe(listener func(Snapshot[C])) (unsubscribe func()) {
	i.subMu.Lock()
	id := i.nextSub
	i.nextSub++
	i.subscribers[id] = listener
	i.subMu.Unlock()
	return func() {
		i.subMu.Lock()
		delete(i.subscribers, id)
		i.subMu.Unlock()
	}
}

// GetSnapshot returns the last committed snapshot with the current status.
// Safe to call from any goroutine.
func (i *Interpreter[C]) GetSnapshot() Snapshot[C] {
	if snap := i.snapshot.Load(); snap != nil {
		out := *snap
		out.Status = i.Status()
		return out
	}
	return Snapshot[C]{Context: i.initial, Status: i.Status()}
}

func (i *Interpreter[C]) publish() {
	snap := Snapshot[C]{
		Value:   configValue(i.machine, i.config),
		Context: i.context,
		Status:  i.Status(),
		active:  i.config.Active(),
	}
	i.snapshot.Store(&snap)
	i.notify(snap)
}

// publishTerminal re-publishes the last committed snapshot with a terminal
// status, so subscribers observe the status change without any
// half-applied configuration.
func (i *Interpreter[C]) publishTerminal(status Status) {
	snap := Snapshot[C]{Context: i.initial, Status: status}
	if last := i.snapshot.Load(); last != nil {
		snap = *last
		snap.Status = status
	}
	i.snapshot.Store(&snap)
	i.notify(snap)
}

func (i *Interpreter[C]) notify(snap Snapshot[C]) {
	i.subMu.Lock()
	listeners := make([]func(Snapshot[C]), 0, len(i.subscribers))
	for _, listener := range i.subscribers {
		listeners = append(listeners, listener)
	}
	i.subMu.Unlock()
	for _, listener := range listeners {
		listener(snap)
	}
}

// validateBehaviors checks every type-erased guard, action and service in
// the machine against the interpreter's context type.
func validateBehaviors[C any](m *Machine) error {
	for qualifiedName, n := range m.namespace {
		for _, action := range n.entry {
			if err := validateAction[C](action, qualifiedName, "entry"); err != nil {
				return err
			}
		}
		for _, action := range n.exit {
			if err := validateAction[C](action, qualifiedName, "exit"); err != nil {
				return err
			}
		}
		for _, t := range n.transitions {
			if t.guard != nil {
				if _, ok := t.guard.(func(C, Event) bool); !ok {
					return fmt.Errorf("statechart: guard %q on %q does not accept context type %T",
						t.guardName, qualifiedName, *new(C))
				}
			}
			for _, action := range t.actions {
				if err := validateAction[C](action, qualifiedName, "transition action"); err != nil {
					return err
				}
			}
		}
		for _, inv := range n.invocations {
			if _, ok := inv.src.(func(context.Context, C, Event) (any, error)); !ok {
				return fmt.Errorf("statechart: invoke %q on %q does not accept context type %T",
					inv.id, qualifiedName, *new(C))
			}
		}
	}
	return nil
}

func validateAction[C any](action *Action, qualifiedName, where string) error {
	switch action.kind {
	case ActionAssign:
		if _, ok := action.fn.(func(C, Event) C); !ok {
			return fmt.Errorf("statechart: assign %q (%s on %q) does not accept context type %T",
				action.name, where, qualifiedName, *new(C))
		}
	case ActionEffect:
		if _, ok := action.fn.(func(C, Event)); !ok {
			return fmt.Errorf("statechart: effect %q (%s on %q) does not accept context type %T",
				action.name, where, qualifiedName, *new(C))
		}
	}
	return nil
}
