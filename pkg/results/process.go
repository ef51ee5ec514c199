package results

import (
	"strings"

	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/ngspice"
	"github.com/edp1096/spicebridge/pkg/util"
)

// scaleNames are the independent variables ngspice puts first in a plot.
var scaleNames = map[string]bool{
	"time":       true,
	"frequency":  true,
	"v-sweep":    true,
	"i-sweep":    true,
	"temp-sweep": true,
	"res-sweep":  true,
}

// Process interprets raw solver output. It never fails: problems the solver
// reported become error lines and a false success flag.
func Process(raw *ngspice.RawOutput) *SimulationResults {
	r := &SimulationResults{analysis: netlist.AnalysisUnknown}
	if raw == nil {
		r.errors = []string{"Error: no solver output"}
		return r
	}

	r.plot = raw.Plot
	r.analysis = classifyPlot(raw.Plot)
	r.aborted = raw.Aborted

	for i, vec := range raw.Vectors {
		v := Value{Name: vec.Name, Kind: classifyVector(vec, i, r.analysis)}
		v.Unit = unitOf(v, vec)
		if vec.Complex != nil {
			v.Complex = append([]complex128(nil), vec.Complex...)
		} else {
			v.Real = append([]float64{}, vec.Real...)
		}
		r.values = append(r.values, v)
	}

	for _, line := range outputLines(raw) {
		line = strings.TrimSpace(line)
		switch {
		case ngspice.IsWarning(line):
			r.warnings = append(r.warnings, line)
		case ngspice.IsError(line):
			r.errors = append(r.errors, line)
		}
	}

	r.success = !r.aborted && len(r.errors) == 0 && len(r.values) > 0
	return r
}

// outputLines returns the solver output in emission order. Without the
// interleaved sequence, stderr is taken before stdout.
func outputLines(raw *ngspice.RawOutput) []string {
	if len(raw.Lines) > 0 {
		lines := make([]string, len(raw.Lines))
		for i, l := range raw.Lines {
			lines[i] = l.Text
		}
		return lines
	}
	return append(append([]string(nil), raw.Stderr...), raw.Stdout...)
}

// classifyPlot maps an ngspice plot name such as "tran2" to its analysis.
func classifyPlot(plot string) netlist.AnalysisType {
	name := strings.ToLower(plot)
	switch {
	case strings.HasPrefix(name, "op"):
		return netlist.AnalysisOP
	case strings.HasPrefix(name, "tran"):
		return netlist.AnalysisTRAN
	case strings.HasPrefix(name, "ac"):
		return netlist.AnalysisAC
	case strings.HasPrefix(name, "dc"):
		return netlist.AnalysisDC
	}
	return netlist.AnalysisUnknown
}

func classifyVector(vec ngspice.Vector, index int, analysis netlist.AnalysisType) ValueKind {
	name := strings.ToLower(vec.Name)
	swept := analysis == netlist.AnalysisTRAN || analysis == netlist.AnalysisAC || analysis == netlist.AnalysisDC

	switch {
	case strings.HasSuffix(name, "#branch"):
		return KindCurrent
	case swept && index == 0 && (scaleNames[name] || vec.Type == ngspice.TypeTime || vec.Type == ngspice.TypeFrequency):
		return KindScale
	case scaleNames[name]:
		return KindScale
	case vec.Type == ngspice.TypeCurrent:
		return KindCurrent
	case vec.Type == ngspice.TypeVoltage:
		return KindVoltage
	case vec.Type == ngspice.TypeNone && !strings.ContainsAny(name, "()#"):
		return KindVoltage
	}
	return KindOther
}

func unitOf(v Value, vec ngspice.Vector) string {
	switch v.Kind {
	case KindVoltage:
		return util.UnitFor("voltage")
	case KindCurrent:
		return util.UnitFor("current")
	case KindScale:
		switch {
		case vec.Type == ngspice.TypeTime:
			return util.UnitFor("time")
		case vec.Type == ngspice.TypeFrequency:
			return util.UnitFor("frequency")
		case strings.EqualFold(vec.Name, "i-sweep") || vec.Type == ngspice.TypeCurrent:
			return util.UnitFor("current")
		case strings.EqualFold(vec.Name, "v-sweep") || vec.Type == ngspice.TypeVoltage:
			return util.UnitFor("voltage")
		}
	}
	return ""
}
