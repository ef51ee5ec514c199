package netlist

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

// Deck is a parsed SPICE deck.
type Deck struct {
	Title    string
	Circuit  *circuit.Circuit
	Analyses []Analysis
	Models   map[string]Model
	// Ended is set when an explicit .end terminated the deck.
	Ended bool
}

// Model is a .model card. Parameters are kept as written.
type Model struct {
	Name   string
	Type   string
	Params map[string]string
}

// Parse reads deck text into a Circuit. Analysis directives are validated but
// dropped; use ParseDeck to keep them.
func Parse(input string) (*circuit.Circuit, error) {
	deck, err := ParseDeck(input)
	if err != nil {
		return nil, err
	}
	return deck.Circuit, nil
}

// logical is one statement after joining '+' continuation lines.
type logical struct {
	no   int    // 1-based number of the first physical line
	raw  string // physical line(s) as written
	text string
}

// ParseDeck reads deck text. Blank lines and '*' comment lines are skipped;
// the first comment before any statement is taken as the title. Anything after
// .end is ignored.
func ParseDeck(input string) (*Deck, error) {
	deck := &Deck{
		Circuit: circuit.New(""),
		Models:  make(map[string]Model),
	}
	names := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *logical
	flush := func() error {
		if current == nil {
			return nil
		}
		stmt := *current
		current = nil
		return parseStatement(deck, names, stmt)
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")

		line := raw
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)

		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, "*") {
			if deck.Title == "" && current == nil && deck.Circuit.Len() == 0 && len(deck.Analyses) == 0 {
				deck.Title = strings.TrimSpace(strings.TrimPrefix(line, "*"))
			}
			continue
		}

		if strings.HasPrefix(line, "+") {
			if current == nil {
				return nil, simerr.ParseError(lineNo, raw, "continuation line without a preceding statement")
			}
			current.raw += "\n" + raw
			current.text += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		if deck.Ended {
			break
		}
		current = &logical{no: lineNo, raw: raw, text: line}
	}
	if err := scanner.Err(); err != nil {
		return nil, simerr.IO("reading netlist", err)
	}
	if !deck.Ended {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	deck.Circuit.Name = deck.Title
	return deck, nil
}

func parseStatement(deck *Deck, names map[string]bool, stmt logical) error {
	fields := strings.Fields(stmt.text)

	if strings.HasPrefix(fields[0], ".") {
		return parseDotOperator(deck, fields, stmt)
	}

	comp, err := parseElement(fields)
	if err != nil {
		return simerr.ParseError(stmt.no, stmt.raw, "%v", err)
	}

	key := strings.ToLower(comp.ID)
	if names[key] {
		return simerr.ParseError(stmt.no, stmt.raw, "duplicate component %s", comp.ID)
	}
	names[key] = true

	deck.Circuit.Add(comp)
	return nil
}

// Parse .op, .tran, .ac, .dc, .model, .title, .end
func parseDotOperator(deck *Deck, fields []string, stmt logical) error {
	switch strings.ToLower(fields[0]) {
	case ".end":
		deck.Ended = true
		return nil

	case ".title":
		deck.Title = strings.Join(fields[1:], " ")
		return nil

	case ".model":
		model, err := parseModel(fields[1:])
		if err != nil {
			return simerr.ParseError(stmt.no, stmt.raw, "%v", err)
		}
		deck.Models[model.Name] = model
		return nil

	case ".op", ".tran", ".ac", ".dc":
		a, err := parseAnalysis(fields)
		if err != nil {
			return simerr.ParseError(stmt.no, stmt.raw, "%v", err)
		}
		deck.Analyses = append(deck.Analyses, a)
		return nil
	}

	return simerr.ParseError(stmt.no, stmt.raw, "unsupported directive %s", fields[0])
}

// parseModel reads ".model NAME TYPE(k=v ...)" with or without parentheses.
func parseModel(fields []string) (Model, error) {
	if len(fields) < 2 {
		return Model{}, fmt.Errorf("insufficient model parameters")
	}

	rest := strings.Join(fields[1:], " ")
	rest = strings.ReplaceAll(rest, "(", " ")
	rest = strings.ReplaceAll(rest, ")", " ")
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return Model{}, fmt.Errorf("model %s has no type", fields[0])
	}

	model := Model{
		Name:   fields[0],
		Type:   strings.ToUpper(parts[0]),
		Params: make(map[string]string),
	}

	for _, pair := range parts[1:] {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return Model{}, fmt.Errorf("invalid model parameter %s", pair)
		}
		model.Params[strings.ToLower(kv[0])] = kv[1]
	}

	return model, nil
}

// Parse circuit element
func parseElement(fields []string) (circuit.Component, error) {
	name := fields[0]
	typ, ok := TypeForPrefix(name[0])
	if !ok {
		return circuit.Component{}, fmt.Errorf("unknown component prefix %q", name[:1])
	}
	kind := vocabulary[typ]

	if len(fields) < 1+kind.terminals+1 {
		return circuit.Component{}, fmt.Errorf("%s needs %d nodes and a value", typ, kind.terminals)
	}

	nodes := make([]string, kind.terminals)
	copy(nodes, fields[1:1+kind.terminals])
	rest := fields[1+kind.terminals:]

	var value string
	switch {
	case kind.source:
		if len(rest) == 1 && strings.EqualFold(rest[0], "DC") {
			return circuit.Component{}, fmt.Errorf("missing DC value")
		}
		value = strings.Join(rest, " ")

	case kind.modelValued:
		value = rest[0]

	default:
		if len(rest) != 1 {
			return circuit.Component{}, fmt.Errorf("unexpected fields after value: %s", strings.Join(rest[1:], " "))
		}
		value = rest[0]
		if _, err := ParseValue(value); err != nil {
			return circuit.Component{}, err
		}
	}

	return circuit.Component{
		ID:    name,
		Type:  typ,
		Value: value,
		Nodes: nodes,
	}, nil
}
