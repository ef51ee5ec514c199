package main

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/results"
	"github.com/edp1096/spicebridge/pkg/util"
)

func printResults(w io.Writer, res *results.SimulationResults) {
	fmt.Fprintln(w, "\nAnalysis Results:")
	fmt.Fprintln(w, "================")

	var voltages, currents []results.Value
	for _, v := range res.Values() {
		switch v.Kind {
		case results.KindVoltage:
			voltages = append(voltages, v)
		case results.KindCurrent:
			currents = append(currents, v)
		}
	}

	scale, swept := res.Scale()
	switch {
	case swept && res.AnalysisType() == netlist.AnalysisAC:
		printAC(w, scale, append(voltages, currents...))
	case swept:
		printSweep(w, res.AnalysisType(), scale, append(voltages, currents...))
	default:
		fmt.Fprintln(w, "\nNode Voltages:")
		for _, v := range voltages {
			if len(v.Real) > 0 {
				fmt.Fprintf(w, "%s = %s\n", v.DisplayName(), util.FormatValueFactor(v.Real[0], v.Unit))
			}
		}
		fmt.Fprintln(w, "\nBranch Currents:")
		for _, v := range currents {
			if len(v.Real) > 0 {
				fmt.Fprintf(w, "%s = %s\n", v.DisplayName(), util.FormatValueFactor(v.Real[0], v.Unit))
			}
		}
	}

	for _, line := range res.Warnings() {
		fmt.Fprintf(w, "\n%s", line)
	}
	for _, line := range res.Errors() {
		fmt.Fprintf(w, "\n%s", line)
	}
	if len(res.Warnings())+len(res.Errors()) > 0 {
		fmt.Fprintln(w)
	}
	if !res.IsSuccessful() {
		fmt.Fprintln(w, "\nSimulation did not complete successfully.")
	}
	fmt.Fprintf(w, "\n%s\n", res.Summary())
}

func printSweep(w io.Writer, analysis netlist.AnalysisType, scale results.Value, values []results.Value) {
	title := "DC Sweep"
	if analysis == netlist.AnalysisTRAN {
		title = "Transient"
	}
	fmt.Fprintf(w, "\n%s Analysis Results (%d points):\n", title, scale.Len())
	fmt.Fprintln(w, "Sweep Values    Node Voltages        Branch Currents")
	fmt.Fprintln(w, "------------------------------------------------")

	for i, x := range scale.Real {
		fmt.Fprintf(w, "%-11s  ", util.FormatValueFactor(x, scale.Unit))
		for _, v := range values {
			if i < len(v.Real) {
				fmt.Fprintf(w, "%s=%s  ", v.DisplayName(), util.FormatValueFactor(v.Real[i], v.Unit))
			}
		}
		fmt.Fprintln(w)
	}
}

func printAC(w io.Writer, scale results.Value, values []results.Value) {
	fmt.Fprintf(w, "\nAC Analysis Results (%d frequency points):\n", scale.Len())
	fmt.Fprintln(w, "Frequency      Node Voltages (Magnitude/Phase)        Branch Currents (Magnitude/Phase)")
	fmt.Fprintln(w, "-----------------------------------------------------------------------------")

	for i := 0; i < scale.Len(); i++ {
		freq := 0.0
		if scale.Complex != nil {
			freq = real(scale.Complex[i])
		} else {
			freq = scale.Real[i]
		}
		fmt.Fprintf(w, "%-13s", util.FormatFrequency(freq))

		for _, v := range values {
			if i >= v.Len() {
				continue
			}
			c := complex(0, 0)
			if v.Complex != nil {
				c = v.Complex[i]
			} else {
				c = complex(v.Real[i], 0)
			}
			fmt.Fprintf(w, "%s  ", util.FormatMagnitudePhase(v.DisplayName(), cmplx.Abs(c), cmplx.Phase(c)*180/math.Pi))
		}
		fmt.Fprintln(w)
	}
}
