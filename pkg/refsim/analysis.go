package refsim

import (
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/ngspice"
)

// errSingular is reported with the ngspice wording so the bridge classifies
// it as a convergence failure.
type errSingular struct{ err error }

func (e errSingular) Error() string { return "singular matrix: " + e.err.Error() }

// operatingPoint is one DC solution.
type operatingPoint struct {
	voltages []float64 // per node
	currents []float64 // per branch
}

func solveOP(n *network) (*operatingPoint, error) {
	op := &operatingPoint{
		voltages: make([]float64, n.nodeCount()),
		currents: make([]float64, n.branchCount()),
	}
	if n.nodeCount()+n.branchCount() == 0 {
		return op, nil
	}

	s, err := newSystem(n.nodeCount(), n.branchCount())
	if err != nil {
		return nil, err
	}
	defer s.destroy()

	s.clear()
	for _, dev := range n.devices {
		dev.Stamp(s)
	}
	s.loadGmin(gmin)

	if err := s.solve(); err != nil {
		return nil, errSingular{err}
	}

	for i := range op.voltages {
		op.voltages[i] = s.value(i + 1)
	}
	for i := range op.currents {
		op.currents[i] = s.value(n.nodeCount() + i + 1)
	}
	for _, v := range append(op.voltages, op.currents...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errSingular{fmt.Errorf("non-finite solution")}
		}
	}
	return op, nil
}

func realVector(name string, typ ngspice.VectorType, data []float64) ngspice.Vector {
	return ngspice.Vector{Name: name, Type: typ, Flags: ngspice.FlagReal, Real: data}
}

func runOP(n *network) ([]ngspice.Vector, error) {
	op, err := solveOP(n)
	if err != nil {
		return nil, err
	}

	vecs := make([]ngspice.Vector, 0, n.nodeCount()+n.branchCount())
	for i, name := range n.nodeNames {
		vecs = append(vecs, realVector(name, ngspice.TypeVoltage, []float64{op.voltages[i]}))
	}
	for i, name := range n.branchNames {
		vecs = append(vecs, realVector(name, ngspice.TypeCurrent, []float64{op.currents[i]}))
	}
	return vecs, nil
}

// maxSweepPoints bounds the length of a DC sweep.
const maxSweepPoints = 1_000_000

// sweepPoints lists start, start+inc, ... up to stop inclusive.
func sweepPoints(start, stop, inc float64) ([]float64, error) {
	if inc == 0 || math.IsNaN(inc) {
		return nil, fmt.Errorf("zero sweep increment")
	}
	steps := (stop - start) / inc
	if math.IsNaN(steps) || steps < -1e-9 {
		return nil, fmt.Errorf("increment %g never reaches %g from %g", inc, stop, start)
	}
	if steps+1 > maxSweepPoints {
		return nil, fmt.Errorf("sweep from %g to %g by %g exceeds %d points", start, stop, inc, maxSweepPoints)
	}

	count := int(math.Floor(steps+1e-9)) + 1
	points := make([]float64, count)
	for i := range points {
		points[i] = start + float64(i)*inc
	}
	return points, nil
}

func runDC(n *network, p netlist.Analysis) ([]ngspice.Vector, error) {
	name := strings.ToLower(p.DCParam.Source)
	src, ok := n.sources[name]
	if !ok {
		return nil, fmt.Errorf("no such source %s", p.DCParam.Source)
	}

	points, err := sweepPoints(p.DCParam.Start, p.DCParam.Stop, p.DCParam.Increment)
	if err != nil {
		return nil, err
	}

	var value *float64
	scale := "v-sweep"
	scaleType := ngspice.TypeVoltage
	switch s := src.(type) {
	case *voltageSource:
		value = &s.value
	case *currentSource:
		value = &s.value
		scale = "i-sweep"
		scaleType = ngspice.TypeCurrent
	}
	orig := *value
	defer func() { *value = orig }()

	voltages := make([][]float64, n.nodeCount())
	currents := make([][]float64, n.branchCount())
	for _, pt := range points {
		*value = pt
		op, err := solveOP(n)
		if err != nil {
			return nil, fmt.Errorf("%s = %g: %w", p.DCParam.Source, pt, err)
		}
		for i, v := range op.voltages {
			voltages[i] = append(voltages[i], v)
		}
		for i, c := range op.currents {
			currents[i] = append(currents[i], c)
		}
	}

	vecs := []ngspice.Vector{realVector(scale, scaleType, points)}
	for i, name := range n.nodeNames {
		vecs = append(vecs, realVector(name, ngspice.TypeVoltage, voltages[i]))
	}
	for i, name := range n.branchNames {
		vecs = append(vecs, realVector(name, ngspice.TypeCurrent, currents[i]))
	}
	return vecs, nil
}
