package netlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var unitMap = map[string]float64{
	"t":   1e12,    // tera
	"g":   1e9,     // giga
	"meg": 1e6,     // mega
	"k":   1e3,     // kilo
	"mil": 25.4e-6, // thousandth of an inch
	"m":   1e-3,    // milli
	"u":   1e-6,    // micro
	"n":   1e-9,    // nano
	"p":   1e-12,   // pico
	"f":   1e-15,   // femto
}

var valueRe = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)([a-zA-Z]*)$`)

// ParseValue - Parse value and factor. 1k -> 1000, 2.2uF -> 2.2e-6.
// Letters after the scale factor are units and are ignored, as in SPICE.
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	suffix := strings.ToLower(matches[2])
	switch {
	case suffix == "":
	case strings.HasPrefix(suffix, "meg"):
		num *= unitMap["meg"]
	case strings.HasPrefix(suffix, "mil"):
		num *= unitMap["mil"]
	default:
		if multiplier, ok := unitMap[suffix[:1]]; ok {
			num *= multiplier
		}
	}

	return num, nil
}
