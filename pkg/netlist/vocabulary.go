package netlist

import "github.com/edp1096/spicebridge/pkg/circuit"

type deviceKind struct {
	prefix    byte
	terminals int
	// modelValued devices carry a model name instead of a number.
	modelValued bool
	source      bool
}

// vocabulary is the single type<->prefix table shared by Generate and Parse.
var vocabulary = map[circuit.ComponentType]deviceKind{
	circuit.Resistor:      {prefix: 'R', terminals: 2},
	circuit.Capacitor:     {prefix: 'C', terminals: 2},
	circuit.Inductor:      {prefix: 'L', terminals: 2},
	circuit.VoltageSource: {prefix: 'V', terminals: 2, source: true},
	circuit.CurrentSource: {prefix: 'I', terminals: 2, source: true},
	circuit.Diode:         {prefix: 'D', terminals: 2, modelValued: true},
	circuit.BJT:           {prefix: 'Q', terminals: 3, modelValued: true},
	circuit.MOSFET:        {prefix: 'M', terminals: 4, modelValued: true},
}

var byPrefix = func() map[byte]circuit.ComponentType {
	m := make(map[byte]circuit.ComponentType, len(vocabulary))
	for typ, kind := range vocabulary {
		m[kind.prefix] = typ
	}
	return m
}()

// Prefix returns the SPICE element letter for a component type.
func Prefix(t circuit.ComponentType) (byte, bool) {
	kind, ok := vocabulary[t]
	return kind.prefix, ok
}

// TypeForPrefix is the inverse of Prefix. The letter is case-insensitive.
func TypeForPrefix(p byte) (circuit.ComponentType, bool) {
	if p >= 'a' && p <= 'z' {
		p -= 'a' - 'A'
	}
	t, ok := byPrefix[p]
	return t, ok
}

// Terminals returns the number of nodes a component type connects.
func Terminals(t circuit.ComponentType) int {
	return vocabulary[t].terminals
}
