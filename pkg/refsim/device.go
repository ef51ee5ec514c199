package refsim

import (
	"fmt"
	"strings"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/netlist"
)

// gmin is the conductance used for capacitors at DC and loaded from every
// node to ground.
const gmin = 1e-12

type device interface {
	Name() string
	Stamp(s *system)
}

type baseDevice struct {
	name  string
	nodes [2]int
}

func (d *baseDevice) Name() string { return d.name }

type resistor struct {
	baseDevice
	value float64
}

func (r *resistor) Stamp(s *system) {
	n1, n2 := r.nodes[0], r.nodes[1]
	g := 1.0 / r.value // Conductance. G = 1/R

	s.add(n1, n1, g)
	s.add(n1, n2, -g)
	s.add(n2, n1, -g)
	s.add(n2, n2, g)
}

// capacitor is open at DC, apart from gmin.
type capacitor struct {
	baseDevice
}

func (c *capacitor) Stamp(s *system) {
	n1, n2 := c.nodes[0], c.nodes[1]

	s.add(n1, n1, gmin)
	s.add(n1, n2, -gmin)
	s.add(n2, n1, -gmin)
	s.add(n2, n2, gmin)
}

// voltageSource also models an inductor at DC, as a 0V source.
type voltageSource struct {
	baseDevice
	value  float64
	branch int
}

func (v *voltageSource) Stamp(s *system) {
	n1, n2 := v.nodes[0], v.nodes[1]
	b := v.branch

	// v1 - v2 = V
	s.add(b, n1, 1)
	s.add(n1, b, 1)
	s.add(b, n2, -1)
	s.add(n2, b, -1)

	s.addRHS(b, v.value)
}

// currentSource drives value amperes from n1 through the source to n2.
type currentSource struct {
	baseDevice
	value float64
}

func (i *currentSource) Stamp(s *system) {
	s.addRHS(i.nodes[0], -i.value)
	s.addRHS(i.nodes[1], i.value)
}

// sourceDC returns the DC value of a V or I source value: the DC
// term if present, otherwise the initial value of the waveform.
func sourceDC(value string) (float64, error) {
	fields := strings.Fields(strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(value))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty source value")
	}

	var waveform float64
	haveWaveform := false
	for i := 0; i < len(fields); i++ {
		switch strings.ToUpper(fields[i]) {
		case "DC":
			if i+1 >= len(fields) {
				return 0, fmt.Errorf("missing DC value")
			}
			return netlist.ParseValue(fields[i+1])
		case "AC":
			// magnitude and optional phase
			i++
			if i+1 < len(fields) {
				if _, err := netlist.ParseValue(fields[i+1]); err == nil {
					i++
				}
			}
		case "SIN", "PULSE", "PWL":
			// SIN(vo ...), PULSE(v1 ...), PWL(t1 v1 ...)
			idx := i + 1
			if strings.EqualFold(fields[i], "PWL") {
				idx = i + 2
			}
			if idx < len(fields) && !haveWaveform {
				v, err := netlist.ParseValue(fields[idx])
				if err != nil {
					return 0, err
				}
				waveform, haveWaveform = v, true
			}
			i = len(fields)
		default:
			if i == 0 {
				return netlist.ParseValue(fields[0])
			}
		}
	}
	return waveform, nil
}

func typeLetter(t circuit.ComponentType) string {
	if p, ok := netlist.Prefix(t); ok {
		return string(p)
	}
	return t.String()
}
