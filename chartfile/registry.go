// Package chartfile loads machine definitions from YAML. The file names
// actions, guards and services; a Registry binds those names to Go functions
// so the structure of a machine can live in configuration while its behavior
// stays in code.
package chartfile

import (
	"context"
	"fmt"

	statechart "github.com/statecraft/go-statechart"
)

// Registry holds the named behaviors a definition may reference.
type Registry[C any] struct {
	actions  map[string]*statechart.Action
	guards   map[string]func(c C, event statechart.Event) bool
	services map[string]func(ctx context.Context, c C, event statechart.Event) (any, error)
}

// NewRegistry returns an empty registry for context type C.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{
		actions:  make(map[string]*statechart.Action),
		guards:   make(map[string]func(C, statechart.Event) bool),
		services: make(map[string]func(context.Context, C, statechart.Event) (any, error)),
	}
}

// RegisterAssign binds a context-replacing action to a name.
func (r *Registry[C]) RegisterAssign(name string, fn func(c C, event statechart.Event) C) *Registry[C] {
	r.actions[name] = statechart.Assign(fn, name)
	return r
}

// RegisterEffect binds a side-effect action to a name.
func (r *Registry[C]) RegisterEffect(name string, fn func(c C, event statechart.Event)) *Registry[C] {
	r.actions[name] = statechart.Effect(fn, name)
	return r
}

// RegisterGuard binds a predicate to a name.
func (r *Registry[C]) RegisterGuard(name string, fn func(c C, event statechart.Event) bool) *Registry[C] {
	r.guards[name] = fn
	return r
}

// RegisterService binds an invokable service to a name.
func (r *Registry[C]) RegisterService(name string, fn func(ctx context.Context, c C, event statechart.Event) (any, error)) *Registry[C] {
	r.services[name] = fn
	return r
}

func (r *Registry[C]) action(name string) (*statechart.Action, error) {
	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("chartfile: action %q is not registered", name)
	}
	return action, nil
}

func (r *Registry[C]) guard(name string) (func(C, statechart.Event) bool, error) {
	fn, ok := r.guards[name]
	if !ok {
		return nil, fmt.Errorf("chartfile: guard %q is not registered", name)
	}
	return fn, nil
}

func (r *Registry[C]) service(name string) (func(context.Context, C, statechart.Event) (any, error), error) {
	fn, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("chartfile: service %q is not registered", name)
	}
	return fn, nil
}
