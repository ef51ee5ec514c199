// Package results turns raw solver output into immutable, queryable
// simulation results.
package results

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/util"
)

type ValueKind int

const (
	KindOther ValueKind = iota
	KindVoltage
	KindCurrent
	// KindScale is the independent variable of a swept analysis.
	KindScale
)

func (k ValueKind) String() string {
	switch k {
	case KindVoltage:
		return "voltage"
	case KindCurrent:
		return "current"
	case KindScale:
		return "scale"
	default:
		return "other"
	}
}

// Value is one named result vector. Exactly one of Real and Complex is set.
type Value struct {
	Name    string
	Kind    ValueKind
	Unit    string
	Real    []float64
	Complex []complex128
}

func (v Value) Len() int {
	if v.Complex != nil {
		return len(v.Complex)
	}
	return len(v.Real)
}

// DisplayName is the conventional SPICE form: v(node), i(source) or the
// scale name.
func (v Value) DisplayName() string {
	switch v.Kind {
	case KindVoltage:
		return "v(" + v.Name + ")"
	case KindCurrent:
		return "i(" + strings.TrimSuffix(v.Name, "#branch") + ")"
	}
	return v.Name
}

func (v Value) clone() Value {
	if v.Real != nil {
		v.Real = append([]float64(nil), v.Real...)
	}
	if v.Complex != nil {
		v.Complex = append([]complex128(nil), v.Complex...)
	}
	return v
}

// SimulationResults is the outcome of one simulation. It is never modified
// after Process returns it; accessors return copies.
type SimulationResults struct {
	analysis netlist.AnalysisType
	plot     string
	values   []Value
	warnings []string
	errors   []string
	aborted  bool
	success  bool
}

func (r *SimulationResults) AnalysisType() netlist.AnalysisType { return r.analysis }

func (r *SimulationResults) Plot() string { return r.plot }

// IsSuccessful is false when the solver reported an error line, aborted the
// run, or produced no values.
func (r *SimulationResults) IsSuccessful() bool { return r.success }

func (r *SimulationResults) Aborted() bool { return r.aborted }

func (r *SimulationResults) Values() []Value {
	out := make([]Value, len(r.values))
	for i, v := range r.values {
		out[i] = v.clone()
	}
	return out
}

// Warnings returns warning lines in the order the solver produced them.
// Repeated warnings are kept.
func (r *SimulationResults) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

func (r *SimulationResults) Errors() []string {
	return append([]string(nil), r.errors...)
}

// Value looks up a vector by raw name ("out", "v1#branch") or display name
// ("v(out)", "i(v1)"), case-insensitively.
func (r *SimulationResults) Value(name string) (Value, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, v := range r.values {
		if strings.ToLower(v.Name) == key || strings.ToLower(v.DisplayName()) == key {
			return v.clone(), true
		}
	}
	return Value{}, false
}

// Scale returns the independent variable of a swept analysis.
func (r *SimulationResults) Scale() (Value, bool) {
	for _, v := range r.values {
		if v.Kind == KindScale {
			return v.clone(), true
		}
	}
	return Value{}, false
}

// OperatingPoint maps display names to the first real sample of every
// non-scale vector.
func (r *SimulationResults) OperatingPoint() map[string]float64 {
	op := make(map[string]float64, len(r.values))
	for _, v := range r.values {
		if v.Kind == KindScale || len(v.Real) == 0 {
			continue
		}
		op[v.DisplayName()] = v.Real[0]
	}
	return op
}

// Summary is a one-line digest: "op: 3 values, 1 warning, success".
// The scale of a swept analysis is not counted as a value.
func (r *SimulationResults) Summary() string {
	n := 0
	for _, v := range r.values {
		if v.Kind != KindScale {
			n++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", r.analysis, plural(n, "value"))
	if scale, swept := r.Scale(); swept {
		fmt.Fprintf(&sb, " over %s", plural(scale.Len(), "point"))
	}
	fmt.Fprintf(&sb, ", %s", plural(len(r.warnings), "warning"))
	if len(r.errors) > 0 {
		fmt.Fprintf(&sb, ", %s", plural(len(r.errors), "error"))
	}
	sb.WriteString(", " + r.status())
	return sb.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func (r *SimulationResults) status() string {
	if r.success {
		return "success"
	}
	return "failed"
}

// Report is the multi-line form of Summary, listing every value, warning and
// error.
func (r *SimulationResults) Report() string {
	var sb strings.Builder

	status := r.status()
	fmt.Fprintf(&sb, "Analysis: %s (plot %s)\n", r.analysis, r.plot)
	fmt.Fprintf(&sb, "Status: %s\n", status)

	scale, swept := r.Scale()
	if swept {
		fmt.Fprintf(&sb, "Points: %d\n", scale.Len())
	}

	if len(r.values) > 0 {
		sb.WriteString("Values:\n")
	}
	for _, v := range r.values {
		if v.Kind == KindScale {
			continue
		}
		fmt.Fprintf(&sb, "  %-16s %s\n", v.DisplayName(), summarize(v))
	}

	for _, w := range r.warnings {
		fmt.Fprintf(&sb, "Warning: %s\n", strings.TrimSpace(strings.TrimPrefix(trimLabel(w), ":")))
	}
	for _, e := range r.errors {
		fmt.Fprintf(&sb, "Error: %s\n", strings.TrimSpace(strings.TrimPrefix(trimLabel(e), ":")))
	}
	return sb.String()
}

// trimLabel drops a leading "Warning" or "Error" label.
func trimLabel(line string) string {
	line = strings.TrimSpace(line)
	for _, label := range []string{"warning", "error"} {
		if strings.HasPrefix(strings.ToLower(line), label) {
			return line[len(label):]
		}
	}
	return line
}

func summarize(v Value) string {
	switch {
	case v.Len() == 0:
		return "(empty)"
	case v.Complex != nil:
		c := v.Complex[0]
		s := util.FormatMagnitudePhase("first", cmplx.Abs(c), cmplx.Phase(c)*180/math.Pi)
		if v.Len() > 1 {
			s = fmt.Sprintf("%d points, %s", v.Len(), s)
		}
		return s
	case v.Len() == 1:
		return util.FormatValueFactor(v.Real[0], v.Unit)
	}

	lo, hi := v.Real[0], v.Real[0]
	for _, x := range v.Real[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return fmt.Sprintf("%d points, %s .. %s", v.Len(), util.FormatValueFactor(lo, v.Unit), util.FormatValueFactor(hi, v.Unit))
}
