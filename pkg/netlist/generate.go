package netlist

import (
	"fmt"
	"strings"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

// Options controls deck generation.
type Options struct {
	// Title overrides the circuit name on the title comment.
	Title string
	// Analysis is the single analysis directive to emit. Zero value is .op.
	Analysis Analysis
}

// Generate renders c as a SPICE deck with an operating point analysis.
func Generate(c *circuit.Circuit) (string, error) {
	return GenerateWithOptions(c, Options{})
}

// GenerateWithOptions renders c as a SPICE deck: a title comment, one line per
// component, exactly one analysis directive and .end. On error nothing is
// returned; a partial deck is never produced.
func GenerateWithOptions(c *circuit.Circuit, opts Options) (string, error) {
	if c == nil {
		return "", simerr.InvalidComponent("", "nil circuit")
	}

	directive, err := opts.Analysis.Directive()
	if err != nil {
		return "", simerr.AnalysisFailed("analysis: %v", err)
	}

	title := opts.Title
	if title == "" {
		title = c.Name
	}
	if title == "" {
		title = "circuit"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "* %s\n", strings.Join(strings.Fields(title), " "))

	seen := make(map[string]string, len(c.Components))
	for _, comp := range c.Components {
		line, name, err := componentLine(comp)
		if err != nil {
			return "", err
		}

		key := strings.ToLower(name)
		if first, dup := seen[key]; dup {
			return "", simerr.InvalidComponent(comp.ID, "duplicate component identifier (collides with %q)", first)
		}
		seen[key] = comp.ID

		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	sb.WriteString(directive)
	sb.WriteString("\n.end\n")

	return sb.String(), nil
}

// ElementName returns the deck name of a component, which is its ID. The ID
// must start with the element letter of its type (case-insensitive) so that
// parsing the deck gives the same ID back.
func ElementName(comp circuit.Component) (string, error) {
	prefix, ok := Prefix(comp.Type)
	if !ok {
		return "", simerr.UnsupportedComponent(comp.ID, comp.Type.String())
	}
	if comp.ID == "" {
		return "", simerr.InvalidComponent(comp.ID, "empty identifier")
	}
	if strings.ContainsAny(comp.ID, " \t\r\n") {
		return "", simerr.InvalidComponent(comp.ID, "identifier contains whitespace")
	}

	if t, ok := TypeForPrefix(comp.ID[0]); !ok || t != comp.Type {
		return "", simerr.InvalidComponent(comp.ID, "%s identifier must start with %c", comp.Type, prefix)
	}
	return comp.ID, nil
}

func componentLine(comp circuit.Component) (line, name string, err error) {
	name, err = ElementName(comp)
	if err != nil {
		return "", "", err
	}
	kind := vocabulary[comp.Type]

	nodes := comp.Nodes
	if len(nodes) == 0 && kind.terminals == 2 {
		nodes = []string{"1", "0"}
	}
	if len(nodes) != kind.terminals {
		return "", "", simerr.InvalidComponent(comp.ID, "%s needs %d nodes, got %d", comp.Type, kind.terminals, len(nodes))
	}
	for _, n := range nodes {
		if n == "" || strings.ContainsAny(n, " \t\r\n") {
			return "", "", simerr.InvalidComponent(comp.ID, "invalid node name %q", n)
		}
	}

	value := comp.Value
	if strings.TrimSpace(value) == "" {
		return "", "", simerr.InvalidComponent(comp.ID, "missing value")
	}
	if value != strings.Join(strings.Fields(value), " ") {
		return "", "", simerr.InvalidComponent(comp.ID, "value %q has leading, trailing or repeated whitespace", value)
	}

	switch {
	case kind.source:
		// emitted as written; a bare number is a DC value to ngspice
	case kind.modelValued:
		if strings.ContainsAny(value, " \t") {
			return "", "", simerr.InvalidComponent(comp.ID, "model name %q contains whitespace", value)
		}
	default:
		if _, err := ParseValue(value); err != nil {
			return "", "", simerr.InvalidComponent(comp.ID, "%v", err)
		}
	}

	fields := make([]string, 0, len(nodes)+2)
	fields = append(fields, name)
	fields = append(fields, nodes...)
	fields = append(fields, value)

	return strings.Join(fields, " "), name, nil
}
