package netlist

import (
	"fmt"
	"strconv"
	"strings"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
	AnalysisUnknown
)

func (a AnalysisType) String() string {
	switch a {
	case AnalysisOP:
		return "op"
	case AnalysisTRAN:
		return "tran"
	case AnalysisAC:
		return "ac"
	case AnalysisDC:
		return "dc"
	default:
		return "unknown"
	}
}

// Analysis is one analysis directive with its parameters. The zero value is
// an operating point analysis.
type Analysis struct {
	Type      AnalysisType
	TranParam struct {
		TStep  float64 // timestep
		TStop  float64 // stop time
		TStart float64 // start time
		TMax   float64 // max timestep
		UIC    bool    // Use Initial Conditions
	}
	ACParam struct {
		Sweep  string  // DEC, OCT, LIN
		Points int     // points per decade
		FStart float64 // start frequency
		FStop  float64 // stop frequency
	}
	DCParam struct {
		Source    string
		Start     float64
		Stop      float64
		Increment float64
	}
}

func OperatingPoint() Analysis {
	return Analysis{Type: AnalysisOP}
}

func Transient(tstep, tstop float64) Analysis {
	a := Analysis{Type: AnalysisTRAN}
	a.TranParam.TStep = tstep
	a.TranParam.TStop = tstop
	return a
}

func ACSweep(sweep string, points int, fstart, fstop float64) Analysis {
	a := Analysis{Type: AnalysisAC}
	a.ACParam.Sweep = strings.ToUpper(sweep)
	a.ACParam.Points = points
	a.ACParam.FStart = fstart
	a.ACParam.FStop = fstop
	return a
}

func DCSweep(source string, start, stop, increment float64) Analysis {
	a := Analysis{Type: AnalysisDC}
	a.DCParam.Source = source
	a.DCParam.Start = start
	a.DCParam.Stop = stop
	a.DCParam.Increment = increment
	return a
}

// Directive renders the analysis as a single SPICE control line.
func (a Analysis) Directive() (string, error) {
	g := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	switch a.Type {
	case AnalysisOP:
		return ".op", nil

	case AnalysisTRAN:
		p := a.TranParam
		if p.TStep <= 0 || p.TStop <= 0 {
			return "", fmt.Errorf("tran needs positive tstep and tstop")
		}
		fields := []string{".tran", g(p.TStep), g(p.TStop)}
		if p.TStart != 0 || p.TMax != 0 {
			fields = append(fields, g(p.TStart))
		}
		if p.TMax != 0 {
			fields = append(fields, g(p.TMax))
		}
		if p.UIC {
			fields = append(fields, "uic")
		}
		return strings.Join(fields, " "), nil

	case AnalysisAC:
		p := a.ACParam
		sweep := strings.ToUpper(p.Sweep)
		if sweep != "DEC" && sweep != "OCT" && sweep != "LIN" {
			return "", fmt.Errorf("invalid sweep type: %s", p.Sweep)
		}
		if p.Points <= 0 || p.FStart <= 0 || p.FStop < p.FStart {
			return "", fmt.Errorf("invalid ac sweep range")
		}
		return fmt.Sprintf(".ac %s %d %s %s", strings.ToLower(sweep), p.Points, g(p.FStart), g(p.FStop)), nil

	case AnalysisDC:
		p := a.DCParam
		if p.Source == "" || p.Increment == 0 {
			return "", fmt.Errorf("dc sweep needs a source and a non-zero increment")
		}
		return fmt.Sprintf(".dc %s %s %s %s", p.Source, g(p.Start), g(p.Stop), g(p.Increment)), nil
	}

	return "", fmt.Errorf("unsupported analysis type: %s", a.Type)
}

// ParseDirective parses a single analysis line such as ".dc V1 0 5 0.1".
func ParseDirective(line string) (Analysis, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Analysis{}, fmt.Errorf("empty analysis directive")
	}
	return parseAnalysis(fields)
}

// parseAnalysis parses .op, .tran, .ac and .dc lines.
func parseAnalysis(fields []string) (Analysis, error) {
	var err error
	var a Analysis

	switch strings.ToLower(fields[0]) {
	case ".op":
		a.Type = AnalysisOP

	case ".tran":
		a.Type = AnalysisTRAN
		if len(fields) < 3 {
			return a, fmt.Errorf("insufficient tran parameters, need at least tstep and tstop")
		}
		a.TranParam.TStep, err = ParseValue(fields[1])
		if err != nil {
			return a, fmt.Errorf("invalid tstep: %w", err)
		}
		a.TranParam.TStop, err = ParseValue(fields[2])
		if err != nil {
			return a, fmt.Errorf("invalid tstop: %w", err)
		}

		for i := 3; i < len(fields); i++ {
			if strings.EqualFold(fields[i], "uic") {
				a.TranParam.UIC = true
				continue
			}
			if i == 3 {
				a.TranParam.TStart, err = ParseValue(fields[i])
				if err != nil {
					return a, fmt.Errorf("invalid tstart: %w", err)
				}
			}
			if i == 4 {
				a.TranParam.TMax, err = ParseValue(fields[i])
				if err != nil {
					return a, fmt.Errorf("invalid tmax: %w", err)
				}
			}
		}

	case ".ac":
		a.Type = AnalysisAC
		if len(fields) < 5 {
			return a, fmt.Errorf("insufficient AC parameters, need sweep type, points, fstart, and fstop")
		}

		// DEC, OCT, LIN
		a.ACParam.Sweep = strings.ToUpper(fields[1])
		if a.ACParam.Sweep != "DEC" && a.ACParam.Sweep != "OCT" && a.ACParam.Sweep != "LIN" {
			return a, fmt.Errorf("invalid sweep type: %s", a.ACParam.Sweep)
		}
		a.ACParam.Points, err = strconv.Atoi(fields[2])
		if err != nil {
			return a, fmt.Errorf("invalid points number: %w", err)
		}
		a.ACParam.FStart, err = ParseValue(fields[3])
		if err != nil {
			return a, fmt.Errorf("invalid fstart: %w", err)
		}
		a.ACParam.FStop, err = ParseValue(fields[4])
		if err != nil {
			return a, fmt.Errorf("invalid fstop: %w", err)
		}

	case ".dc":
		a.Type = AnalysisDC
		if len(fields) < 5 {
			return a, fmt.Errorf("insufficient DC sweep parameters")
		}
		a.DCParam.Source = fields[1]
		a.DCParam.Start, err = ParseValue(fields[2])
		if err != nil {
			return a, fmt.Errorf("invalid start value: %w", err)
		}
		a.DCParam.Stop, err = ParseValue(fields[3])
		if err != nil {
			return a, fmt.Errorf("invalid stop value: %w", err)
		}
		a.DCParam.Increment, err = ParseValue(fields[4])
		if err != nil {
			return a, fmt.Errorf("invalid increment value: %w", err)
		}

	default:
		return a, fmt.Errorf("unsupported analysis type: %s", fields[0])
	}

	return a, nil
}
