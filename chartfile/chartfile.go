package chartfile

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	statechart "github.com/statecraft/go-statechart"
)

// machineDef mirrors the YAML document shape.
type machineDef struct {
	ID      string    `yaml:"id"`
	Initial string    `yaml:"initial"`
	States  stateList `yaml:"states"`
}

type stateDef struct {
	Type    string                    `yaml:"type"` // "", "parallel" or "final"
	Initial string                    `yaml:"initial"`
	Entry   []string                  `yaml:"entry"`
	Exit    []string                  `yaml:"exit"`
	On      map[string]transitionList `yaml:"on"`
	After   map[string]transitionList `yaml:"after"`
	Invoke  []invokeDef               `yaml:"invoke"`
	States  stateList                 `yaml:"states"`
}

type transitionDef struct {
	Target  string   `yaml:"target"`
	Guard   string   `yaml:"guard"`
	Actions []string `yaml:"actions"`
}

type invokeDef struct {
	ID      string         `yaml:"id"`
	Src     string         `yaml:"src"`
	OnDone  transitionList `yaml:"onDone"`
	OnError transitionList `yaml:"onError"`
}

type namedState struct {
	name string
	def  stateDef
}

// stateList keeps the document's declaration order, which a plain map would
// lose. Declaration order decides the default initial child and tie-breaks
// in transition selection.
type stateList []namedState

func (l *stateList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("chartfile: states must be a mapping (line %d)", value.Line)
	}
	for i := 0; i < len(value.Content); i += 2 {
		var def stateDef
		if err := value.Content[i+1].Decode(&def); err != nil {
			return err
		}
		*l = append(*l, namedState{name: value.Content[i].Value, def: def})
	}
	return nil
}

// transitionList accepts a bare target string, a single transition mapping,
// or a sequence of transitions.
type transitionList []transitionDef

func (l *transitionList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = transitionList{{Target: value.Value}}
	case yaml.SequenceNode:
		var defs []transitionDef
		if err := value.Decode(&defs); err != nil {
			return err
		}
		*l = defs
	default:
		var def transitionDef
		if err := value.Decode(&def); err != nil {
			return err
		}
		*l = transitionList{def}
	}
	return nil
}

// Load parses a YAML definition and builds the machine, resolving action,
// guard and service names against the registry.
func Load[C any](data []byte, reg *Registry[C]) (*statechart.Machine, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def machineDef
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("chartfile: %w", err)
	}
	elements, err := machineElements[C](def, reg)
	if err != nil {
		return nil, err
	}
	return statechart.Define(def.ID, elements...)
}

// LoadFile is Load on the contents of path.
func LoadFile[C any](path string, reg *Registry[C]) (*statechart.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chartfile: %w", err)
	}
	return Load(data, reg)
}

func machineElements[C any](def machineDef, reg *Registry[C]) ([]statechart.Element, error) {
	var elements []statechart.Element
	if def.Initial != "" {
		elements = append(elements, statechart.Initial(def.Initial))
	}
	for _, child := range def.States {
		element, err := stateElement(child.name, child.def, reg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, nil
}

func stateElement[C any](name string, def stateDef, reg *Registry[C]) (statechart.Element, error) {
	var elements []statechart.Element
	if def.Initial != "" {
		elements = append(elements, statechart.Initial(def.Initial))
	}
	entry, err := lookupActions(def.Entry, reg)
	if err != nil {
		return nil, err
	}
	if len(entry) > 0 {
		elements = append(elements, statechart.Entry(entry...))
	}
	exit, err := lookupActions(def.Exit, reg)
	if err != nil {
		return nil, err
	}
	if len(exit) > 0 {
		elements = append(elements, statechart.Exit(exit...))
	}
	for eventType, transitions := range def.On {
		for _, t := range transitions {
			parts, err := transitionElements(t, reg)
			if err != nil {
				return nil, err
			}
			elements = append(elements, statechart.On(eventType, parts...))
		}
	}
	for delay, transitions := range def.After {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("chartfile: invalid delay %q on state %q: %w", delay, name, err)
		}
		for _, t := range transitions {
			parts, err := transitionElements(t, reg)
			if err != nil {
				return nil, err
			}
			elements = append(elements, statechart.After(d, parts...))
		}
	}
	for _, inv := range def.Invoke {
		element, err := invokeElement(name, inv, reg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	for _, child := range def.States {
		element, err := stateElement(child.name, child.def, reg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}

	switch def.Type {
	case "":
		return statechart.State(name, elements...), nil
	case "parallel":
		return statechart.Parallel(name, elements...), nil
	case "final":
		return statechart.Final(name, elements...), nil
	default:
		return nil, fmt.Errorf("chartfile: invalid type %q on state %q", def.Type, name)
	}
}

func invokeElement[C any](owner string, def invokeDef, reg *Registry[C]) (statechart.Element, error) {
	id := def.ID
	if id == "" {
		id = def.Src
	}
	src := def.Src
	if src == "" {
		src = def.ID
	}
	if id == "" {
		return nil, fmt.Errorf("chartfile: invoke on state %q needs an id or src", owner)
	}
	service, err := reg.service(src)
	if err != nil {
		return nil, err
	}
	var elements []statechart.Element
	for _, t := range def.OnDone {
		parts, err := transitionElements(t, reg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, statechart.OnDone(parts...))
	}
	for _, t := range def.OnError {
		parts, err := transitionElements(t, reg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, statechart.OnError(parts...))
	}
	return statechart.Invoke(id, service, elements...), nil
}

func transitionElements[C any](def transitionDef, reg *Registry[C]) ([]statechart.Element, error) {
	var elements []statechart.Element
	if def.Target != "" {
		elements = append(elements, statechart.Target(def.Target))
	}
	if def.Guard != "" {
		fn, err := reg.guard(def.Guard)
		if err != nil {
			return nil, err
		}
		elements = append(elements, statechart.Guard(fn, def.Guard))
	}
	actions, err := lookupActions(def.Actions, reg)
	if err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		elements = append(elements, statechart.Do(actions...))
	}
	return elements, nil
}

func lookupActions[C any](names []string, reg *Registry[C]) ([]*statechart.Action, error) {
	actions := make([]*statechart.Action, 0, len(names))
	for _, name := range names {
		action, err := reg.action(name)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}
