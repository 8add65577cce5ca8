// Package export renders machine definitions for external tooling:
// PlantUML state diagrams and XState-compatible JSON.
package export

import (
	"fmt"
	"path"
	"strings"
	"time"

	statechart "github.com/statecraft/go-statechart"
)

func alias(qualifiedName string) string {
	trimmed := strings.TrimPrefix(qualifiedName, "/")
	trimmed = strings.ReplaceAll(trimmed, "-", "_")
	return strings.ReplaceAll(trimmed, "/", "_")
}

// PlantUML renders the machine as a PlantUML state diagram.
func PlantUML(m *statechart.Machine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@startuml\ntitle %s\n", m.ID())
	writeBody(&b, m, m.Root(), 0)
	writeTransitions(&b, m.Root())
	b.WriteString("@enduml\n")
	return b.String()
}

func writeBody(b *strings.Builder, m *statechart.Machine, n *statechart.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	if initial := n.Initial(); initial != "" {
		fmt.Fprintf(b, "%s[*] --> %s\n", indent, alias(initial))
	}
	for idx, child := range n.Children() {
		if n.Kind() == statechart.KindParallel && idx > 0 {
			fmt.Fprintf(b, "%s--\n", indent)
		}
		writeState(b, m, child, depth)
	}
}

func writeState(b *strings.Builder, m *statechart.Machine, n *statechart.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	id := alias(n.QualifiedName())
	switch {
	case len(n.Children()) > 0:
		fmt.Fprintf(b, "%sstate %s {\n", indent, id)
		writeBody(b, m, n, depth+1)
		fmt.Fprintf(b, "%s}\n", indent)
	case n.Kind() == statechart.KindFinal:
		fmt.Fprintf(b, "%sstate %s <<end>>\n", indent, id)
	default:
		fmt.Fprintf(b, "%sstate %s\n", indent, id)
	}
	for _, action := range n.EntryActions() {
		fmt.Fprintf(b, "%sstate %s : entry / %s\n", indent, id, action.Name())
	}
	for _, action := range n.ExitActions() {
		fmt.Fprintf(b, "%sstate %s : exit / %s\n", indent, id, action.Name())
	}
	for _, inv := range n.Invocations() {
		fmt.Fprintf(b, "%sstate %s : invoke / %s\n", indent, id, inv.ID())
	}
}

func writeTransitions(b *strings.Builder, n *statechart.Node) {
	for _, t := range n.Transitions() {
		label := transitionLabel(t)
		source := alias(t.Source().QualifiedName())
		if t.IsInternal() {
			fmt.Fprintf(b, "%s : %s\n", source, label)
			continue
		}
		fmt.Fprintf(b, "%s --> %s : %s\n", source, alias(t.Target()), label)
	}
	for _, child := range n.Children() {
		writeTransitions(b, child)
	}
}

func transitionLabel(t *statechart.Transition) string {
	label := t.EventType()
	if d := t.Delay(); d > 0 {
		label = "after " + d.Round(time.Millisecond).String()
	}
	if t.Guarded() {
		name := t.GuardName()
		if name == "" {
			name = "guard"
		}
		label += fmt.Sprintf(" [%s]", name)
	}
	if actions := t.Actions(); len(actions) > 0 {
		names := make([]string, len(actions))
		for i, action := range actions {
			names[i] = action.Name()
		}
		label += " / " + strings.Join(names, ", ")
	}
	return label
}

func targetName(source *statechart.Node, target string) string {
	if path.Dir(target) == path.Dir(source.QualifiedName()) {
		return path.Base(target)
	}
	return target
}
