package refsim

import (
	"fmt"
	"strings"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/netlist"
)

// network is a deck flattened for stamping.
type network struct {
	nodeNames   []string // index i-1 holds node i
	nodeMap     map[string]int
	branchNames []string // vector names, "v1#branch"
	devices     []device
	sources     map[string]device // lowercased V and I names
	connections map[int]int
}

func isGround(name string) bool {
	return name == "0" || strings.EqualFold(name, "gnd")
}

// buildNetwork numbers nodes in order of appearance, then branches.
func buildNetwork(c *circuit.Circuit) (*network, error) {
	n := &network{
		nodeMap:     make(map[string]int),
		sources:     make(map[string]device),
		connections: make(map[int]int),
	}

	for _, comp := range c.Components {
		for _, name := range comp.Nodes {
			if isGround(name) {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := n.nodeMap[key]; !ok {
				n.nodeNames = append(n.nodeNames, key)
				n.nodeMap[key] = len(n.nodeNames)
			}
		}
	}

	var branched []*voltageSource
	for _, comp := range c.Components {
		if len(comp.Nodes) != 2 {
			return nil, fmt.Errorf("%s: device type %s is not supported", comp.ID, typeLetter(comp.Type))
		}
		base := baseDevice{name: strings.ToLower(comp.ID)}
		for i, name := range comp.Nodes {
			if !isGround(name) {
				base.nodes[i] = n.nodeMap[strings.ToLower(name)]
			}
			n.connections[base.nodes[i]]++
		}

		switch comp.Type {
		case circuit.Resistor:
			r, err := netlist.ParseValue(comp.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", comp.ID, err)
			}
			if r == 0 {
				return nil, fmt.Errorf("%s: zero resistance", comp.ID)
			}
			n.devices = append(n.devices, &resistor{baseDevice: base, value: r})

		case circuit.Capacitor:
			n.devices = append(n.devices, &capacitor{baseDevice: base})

		case circuit.Inductor:
			l := &voltageSource{baseDevice: base}
			branched = append(branched, l)
			n.devices = append(n.devices, l)

		case circuit.VoltageSource:
			v, err := sourceDC(comp.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", comp.ID, err)
			}
			src := &voltageSource{baseDevice: base, value: v}
			branched = append(branched, src)
			n.devices = append(n.devices, src)
			n.sources[base.name] = src

		case circuit.CurrentSource:
			v, err := sourceDC(comp.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", comp.ID, err)
			}
			src := &currentSource{baseDevice: base, value: v}
			n.devices = append(n.devices, src)
			n.sources[base.name] = src

		default:
			return nil, fmt.Errorf("%s: device type %s is not supported", comp.ID, typeLetter(comp.Type))
		}
	}

	for i, b := range branched {
		b.branch = len(n.nodeNames) + i + 1
		n.branchNames = append(n.branchNames, b.name+"#branch")
	}
	return n, nil
}

func (n *network) nodeCount() int   { return len(n.nodeNames) }
func (n *network) branchCount() int { return len(n.branchNames) }

// danglingNodes lists nodes with a single connection, which ngspice warns about.
func (n *network) danglingNodes() []string {
	var out []string
	for i, name := range n.nodeNames {
		if n.connections[i+1] < 2 {
			out = append(out, name)
		}
	}
	return out
}
