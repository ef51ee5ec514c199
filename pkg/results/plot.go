package results

import (
	"math/cmplx"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// SavePlot draws every value against the sweep scale and writes the chart to
// path. The image format follows the file extension (png, svg, pdf, ...).
// Complex values are drawn as magnitudes.
func (r *SimulationResults) SavePlot(path string) error {
	p, err := r.Plotter()
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return simerr.IO("saving plot "+path, err)
	}
	return nil
}

// Plotter builds the chart SavePlot writes.
func (r *SimulationResults) Plotter() (*plot.Plot, error) {
	scale, ok := r.Scale()
	if !ok || scale.Len() < 2 {
		return nil, simerr.AnalysisFailed("%s results have no sweep to plot", r.analysis)
	}
	xs := scale.Real
	if scale.Complex != nil {
		xs = make([]float64, len(scale.Complex))
		for i, c := range scale.Complex {
			xs[i] = real(c)
		}
	}

	var lines []any
	for _, v := range r.values {
		if v.Kind == KindScale || v.Len() != len(xs) {
			continue
		}
		pts := make(plotter.XYs, len(xs))
		for i := range xs {
			pts[i].X = xs[i]
			if v.Complex != nil {
				pts[i].Y = cmplx.Abs(v.Complex[i])
			} else {
				pts[i].Y = v.Real[i]
			}
		}
		lines = append(lines, v.DisplayName(), pts)
	}
	if len(lines) == 0 {
		return nil, simerr.AnalysisFailed("%s results have no values matching the %s scale", r.analysis, scale.Name)
	}

	p := plot.New()
	p.Title.Text = r.plot
	p.X.Label.Text = axisLabel(scale)
	p.Y.Label.Text = "value"
	if r.analysis == netlist.AnalysisAC {
		p.Y.Label.Text = "magnitude"
		if positive(xs) {
			p.X.Scale = plot.LogScale{}
			p.X.Tick.Marker = plot.LogTicks{Prec: -1}
		}
	}
	p.Add(plotter.NewGrid())

	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, simerr.AnalysisFailed("plotting %s: %v", r.plot, err)
	}
	return p, nil
}

func axisLabel(scale Value) string {
	if scale.Unit == "" {
		return scale.Name
	}
	return scale.Name + " (" + scale.Unit + ")"
}

func positive(xs []float64) bool {
	for _, x := range xs {
		if x <= 0 {
			return false
		}
	}
	return true
}
