// Package circuit is the structural circuit model consumed by the simulation
// core. The core never mutates a Circuit it is given.
package circuit

import (
	"fmt"
	"strings"
)

type ComponentType int

const (
	Unknown ComponentType = iota
	Resistor
	Capacitor
	Inductor
	VoltageSource
	CurrentSource
	Diode
	BJT
	MOSFET
	Ground
	Wire
	Switch
	OpAmp
)

var typeNames = map[ComponentType]string{
	Unknown:       "unknown",
	Resistor:      "resistor",
	Capacitor:     "capacitor",
	Inductor:      "inductor",
	VoltageSource: "voltage_source",
	CurrentSource: "current_source",
	Diode:         "diode",
	BJT:           "bjt",
	MOSFET:        "mosfet",
	Ground:        "ground",
	Wire:          "wire",
	Switch:        "switch",
	OpAmp:         "opamp",
}

func (t ComponentType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseComponentType accepts the names produced by String, case-insensitively.
func ParseComponentType(s string) (ComponentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown component type: %s", s)
}

func (t ComponentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ComponentType) UnmarshalText(text []byte) error {
	parsed, err := ParseComponentType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Position is the layout location of a component. It has no electrical meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Component struct {
	ID       string        `json:"id"`
	Type     ComponentType `json:"type"`
	Value    string        `json:"value,omitempty"`
	Position Position      `json:"position"`
	// Nodes lists terminal net names in SPICE order. Empty means the default
	// ground-referenced two-terminal connection.
	Nodes []string `json:"nodes,omitempty"`
}

type Circuit struct {
	Name       string      `json:"name"`
	Components []Component `json:"components"`
}

func New(name string) *Circuit {
	return &Circuit{
		Name:       name,
		Components: make([]Component, 0),
	}
}

// Add appends a component and returns the circuit for chaining.
func (c *Circuit) Add(comp Component) *Circuit {
	c.Components = append(c.Components, comp)
	return c
}

// Component finds a component by identifier.
func (c *Circuit) Component(id string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.ID == id {
			return comp, true
		}
	}
	return Component{}, false
}

func (c *Circuit) Len() int {
	return len(c.Components)
}
