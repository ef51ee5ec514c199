package netlist

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

func rcv() *circuit.Circuit {
	c := circuit.New("rcv")
	c.Add(circuit.Component{ID: "R1", Type: circuit.Resistor, Value: "1k", Position: circuit.Position{X: 10, Y: 20}})
	c.Add(circuit.Component{ID: "C1", Type: circuit.Capacitor, Value: "1u"})
	c.Add(circuit.Component{ID: "V1", Type: circuit.VoltageSource, Value: "5"})
	return c
}

type triple struct {
	id    string
	typ   circuit.ComponentType
	value string
}

func triples(c *circuit.Circuit) map[string]triple {
	m := make(map[string]triple)
	for _, comp := range c.Components {
		m[comp.ID] = triple{comp.ID, comp.Type, comp.Value}
	}
	return m
}

func TestGenerateExample(t *testing.T) {
	deck, err := Generate(rcv())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{"R1", "C1", "V1", "1k", "1u", "5", ".op", ".end"} {
		if !strings.Contains(deck, want) {
			t.Errorf("deck does not contain %q:\n%s", want, deck)
		}
	}

	parsed, err := Parse(deck)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Len() != 3 {
		t.Fatalf("parsed %d components, want 3", parsed.Len())
	}
	want := map[string]triple{
		"R1": {"R1", circuit.Resistor, "1k"},
		"C1": {"C1", circuit.Capacitor, "1u"},
		"V1": {"V1", circuit.VoltageSource, "5"},
	}
	got := triples(parsed)
	for id, w := range want {
		if got[id] != w {
			t.Errorf("%s = %+v, want %+v", id, got[id], w)
		}
	}
}

func TestGenerateCompleteness(t *testing.T) {
	c := circuit.New("mixed")
	c.Add(circuit.Component{ID: "R1", Type: circuit.Resistor, Value: "10", Nodes: []string{"in", "out"}})
	c.Add(circuit.Component{ID: "L1", Type: circuit.Inductor, Value: "1m", Nodes: []string{"out", "0"}})
	c.Add(circuit.Component{ID: "I1", Type: circuit.CurrentSource, Value: "1m"})
	c.Add(circuit.Component{ID: "D1", Type: circuit.Diode, Value: "D1N4148", Nodes: []string{"out", "0"}})
	c.Add(circuit.Component{ID: "Q1", Type: circuit.BJT, Value: "2N2222", Nodes: []string{"c", "b", "e"}})
	c.Add(circuit.Component{ID: "M1", Type: circuit.MOSFET, Value: "NMOS1", Nodes: []string{"d", "g", "s", "0"}})

	deck, err := Generate(c)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var elements, analyses, ends int
	for _, line := range strings.Split(strings.TrimSpace(deck), "\n") {
		switch {
		case strings.HasPrefix(line, "*"):
		case line == ".end":
			ends++
		case strings.HasPrefix(line, "."):
			analyses++
		default:
			elements++
		}
	}
	if elements != c.Len() || analyses != 1 || ends != 1 {
		t.Errorf("elements=%d analyses=%d ends=%d:\n%s", elements, analyses, ends, deck)
	}
	if !strings.HasSuffix(deck, ".end\n") {
		t.Errorf("deck does not end with .end:\n%s", deck)
	}
}

func TestRoundTrip(t *testing.T) {
	circuits := []*circuit.Circuit{
		rcv(),
		circuit.New("empty"),
		circuit.New("sources").
			Add(circuit.Component{ID: "Vin", Type: circuit.VoltageSource, Value: "SIN(0 1 1k)", Nodes: []string{"in", "0"}}).
			Add(circuit.Component{ID: "Vac", Type: circuit.VoltageSource, Value: "AC 1", Nodes: []string{"a", "0"}}).
			Add(circuit.Component{ID: "Ibias", Type: circuit.CurrentSource, Value: "2.5m", Nodes: []string{"0", "in"}}).
			Add(circuit.Component{ID: "Rload", Type: circuit.Resistor, Value: "4.7k", Nodes: []string{"in", "a"}}),
		circuit.New("dc sources").
			Add(circuit.Component{ID: "V1", Type: circuit.VoltageSource, Value: "DC 5"}).
			Add(circuit.Component{ID: "v2", Type: circuit.VoltageSource, Value: "dc 0 ac 1", Nodes: []string{"a", "0"}}).
			Add(circuit.Component{ID: "I1", Type: circuit.CurrentSource, Value: "DC 1m", Nodes: []string{"0", "a"}}).
			Add(circuit.Component{ID: "rA", Type: circuit.Resistor, Value: "1k", Nodes: []string{"a", "0"}}),
	}

	for _, c := range circuits {
		t.Run(c.Name, func(t *testing.T) {
			deck, err := Generate(c)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			parsed, err := Parse(deck)
			if err != nil {
				t.Fatalf("Parse: %v\n%s", err, deck)
			}
			want, got := triples(c), triples(parsed)
			if len(want) != len(got) {
				t.Fatalf("got %d components, want %d", len(got), len(want))
			}
			for id, w := range want {
				if got[id] != w {
					t.Errorf("%s = %+v, want %+v", id, got[id], w)
				}
			}
		})
	}
}

func TestRoundTripAllTypes(t *testing.T) {
	values := map[circuit.ComponentType][]string{
		circuit.Resistor:      {"1k", "4.7meg", "10"},
		circuit.Capacitor:     {"100n", "1e-6"},
		circuit.Inductor:      {"1m", "2.2uH"},
		circuit.VoltageSource: {"5", "DC 5", "PULSE(0 5 1n 1n 1n 1u 2u)", "AC 1"},
		circuit.CurrentSource: {"1m", "DC -2m", "SIN(0 1m 1k)"},
		circuit.Diode:         {"D1N4148"},
		circuit.BJT:           {"2N2222"},
		circuit.MOSFET:        {"NMOS1"},
	}
	nodes := map[int][]string{2: {"a", "0"}, 3: {"c", "b", "0"}, 4: {"d", "g", "0", "0"}}

	c := circuit.New("all types")
	for typ, vals := range values {
		p, _ := Prefix(typ)
		for i, v := range vals {
			id := fmt.Sprintf("%c%s%d", p, strings.ToLower(typ.String()[:1]), i)
			if i%2 == 1 {
				id = strings.ToLower(id)
			}
			c.Add(circuit.Component{ID: id, Type: typ, Value: v, Nodes: nodes[Terminals(typ)]})
		}
	}

	deck, err := Generate(c)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	parsed, err := Parse(deck)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, deck)
	}
	want, got := triples(c), triples(parsed)
	if len(got) != len(want) {
		t.Fatalf("got %d components, want %d", len(got), len(want))
	}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("%s = %+v, want %+v", id, got[id], w)
		}
	}
}

func TestGenerateRejectsUnsupported(t *testing.T) {
	c := rcv()
	c.Add(circuit.Component{ID: "SW1", Type: circuit.Switch, Value: "on"})

	deck, err := Generate(c)
	if deck != "" {
		t.Errorf("partial deck returned:\n%s", deck)
	}
	var se *simerr.Error
	if !errors.As(err, &se) || se.Kind != simerr.KindUnsupportedComponent {
		t.Fatalf("err = %v, want UnsupportedComponent", err)
	}
	if se.ComponentType != "switch" || !strings.Contains(err.Error(), "switch") {
		t.Errorf("error does not name the type: %v", err)
	}
}

func TestGenerateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		comp []circuit.Component
	}{
		{"duplicate", []circuit.Component{
			{ID: "R1", Type: circuit.Resistor, Value: "1k"},
			{ID: "r1", Type: circuit.Resistor, Value: "2k"},
		}},
		{"id without type letter", []circuit.Component{{ID: "load", Type: circuit.Resistor, Value: "1k"}}},
		{"id of another type", []circuit.Component{{ID: "C1", Type: circuit.Resistor, Value: "1k"}}},
		{"padded value", []circuit.Component{{ID: "V1", Type: circuit.VoltageSource, Value: " DC 5"}}},
		{"repeated space in value", []circuit.Component{{ID: "V1", Type: circuit.VoltageSource, Value: "DC  5"}}},
		{"missing value", []circuit.Component{{ID: "R1", Type: circuit.Resistor}}},
		{"bad value", []circuit.Component{{ID: "R1", Type: circuit.Resistor, Value: "lots"}}},
		{"empty id", []circuit.Component{{Type: circuit.Capacitor, Value: "1u"}}},
		{"space in id", []circuit.Component{{ID: "R 1", Type: circuit.Resistor, Value: "1"}}},
		{"bjt without nodes", []circuit.Component{{ID: "Q1", Type: circuit.BJT, Value: "2N2222"}}},
		{"wrong node count", []circuit.Component{{ID: "R1", Type: circuit.Resistor, Value: "1", Nodes: []string{"a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := circuit.New(tt.name)
			for _, comp := range tt.comp {
				c.Add(comp)
			}
			deck, err := Generate(c)
			if simerr.KindOf(err) != simerr.KindInvalidComponent {
				t.Fatalf("err = %v, want InvalidComponent", err)
			}
			if deck != "" {
				t.Errorf("partial deck returned")
			}
		})
	}
}

func TestElementName(t *testing.T) {
	tests := []struct {
		comp circuit.Component
		want string
	}{
		{circuit.Component{ID: "R1", Type: circuit.Resistor}, "R1"},
		{circuit.Component{ID: "r1", Type: circuit.Resistor}, "r1"},
		{circuit.Component{ID: "Qout", Type: circuit.BJT}, "Qout"},
	}
	for _, tt := range tests {
		got, err := ElementName(tt.comp)
		if err != nil {
			t.Fatalf("ElementName(%+v): %v", tt.comp, err)
		}
		if got != tt.want {
			t.Errorf("ElementName(%s) = %s, want %s", tt.comp.ID, got, tt.want)
		}
	}

	for _, comp := range []circuit.Component{
		{ID: "load", Type: circuit.Resistor},
		{ID: "R1", Type: circuit.Capacitor},
		{ID: "1", Type: circuit.VoltageSource},
	} {
		if _, err := ElementName(comp); simerr.KindOf(err) != simerr.KindInvalidComponent {
			t.Errorf("ElementName(%s as %s): err = %v, want InvalidComponent", comp.ID, comp.Type, err)
		}
	}
}

func TestGenerateAnalysisDirectives(t *testing.T) {
	tests := []struct {
		analysis Analysis
		want     string
	}{
		{OperatingPoint(), ".op"},
		{Transient(1e-6, 1e-3), ".tran 1e-06 0.001"},
		{ACSweep("dec", 10, 1, 1e6), ".ac dec 10 1 1e+06"},
		{DCSweep("V1", 0, 5, 0.5), ".dc V1 0 5 0.5"},
	}
	for _, tt := range tests {
		deck, err := GenerateWithOptions(rcv(), Options{Analysis: tt.analysis})
		if err != nil {
			t.Fatalf("GenerateWithOptions(%s): %v", tt.analysis.Type, err)
		}
		if !strings.Contains(deck, "\n"+tt.want+"\n") {
			t.Errorf("deck missing %q:\n%s", tt.want, deck)
		}

		parsed, err := ParseDeck(deck)
		if err != nil {
			t.Fatalf("ParseDeck: %v", err)
		}
		if len(parsed.Analyses) != 1 || parsed.Analyses[0].Type != tt.analysis.Type {
			t.Errorf("parsed analyses = %+v", parsed.Analyses)
		}
	}

	if _, err := GenerateWithOptions(rcv(), Options{Analysis: Analysis{Type: AnalysisTRAN}}); simerr.KindOf(err) != simerr.KindAnalysisFailed {
		t.Errorf("tran without parameters: err = %v", err)
	}
}

func TestParseExample(t *testing.T) {
	c, err := Parse("R1 1 0 1k\nC1 1 0 1u\nV1 1 0 DC 5\n.op\n.end\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("parsed %d components, want 3", c.Len())
	}
	r1, ok := c.Component("R1")
	if !ok || r1.Type != circuit.Resistor || r1.Value != "1k" {
		t.Errorf("R1 = %+v", r1)
	}
	if len(r1.Nodes) != 2 || r1.Nodes[0] != "1" || r1.Nodes[1] != "0" {
		t.Errorf("R1 nodes = %v", r1.Nodes)
	}
	v1, _ := c.Component("V1")
	if v1.Value != "DC 5" {
		t.Errorf("V1 value = %q, want DC 5", v1.Value)
	}
}

func TestParseErrorLocality(t *testing.T) {
	tests := []struct {
		name  string
		deck  string
		line  string
		no    int
		cause string
	}{
		{"unknown prefix", "* t\nR1 1 0 1k\nX1 1 0 5\n.end\n", "X1 1 0 5", 3, "unknown component prefix"},
		{"too few fields", "R1 1 0 1k\nC1 1\n", "C1 1", 2, "needs 2 nodes"},
		{"bad value", "R1 1 0 1k\n   R2 1 0 abc  \n", "   R2 1 0 abc  ", 2, "invalid value"},
		{"unknown directive", "R1 1 0 1k\n.subckt amp 1 2\n", ".subckt amp 1 2", 2, "unsupported directive"},
		{"bad analysis", ".tran 1u\n", ".tran 1u", 1, "tstep and tstop"},
		{"duplicate", "R1 1 0 1k\nr1 2 0 1k\n", "r1 2 0 1k", 2, "duplicate"},
		{"orphan continuation", "+ 1k\n", "+ 1k", 1, "continuation"},
		{"continuation after title", "* t\n+ 1k\n", "+ 1k", 2, "continuation"},
		{"model without type", "* t\n.model D1 (\n.op\n.end\n", ".model D1 (", 2, "has no type"},
		{"model with empty parens", "* t\n.model D1 ()\n", ".model D1 ()", 2, "has no type"},
		{"model name only", ".model D1\n", ".model D1", 1, "insufficient"},
		{"model bad parameter", ".model D1 D(IS)\n", ".model D1 D(IS)", 1, "invalid model parameter"},
		{"continued bad value", "R1 1 0\n+ lots\n", "R1 1 0\n+ lots", 1, "invalid value"},
		{"bare DC", "V1 1 0 DC\n", "V1 1 0 DC", 1, "missing DC value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.deck)
			se, ok := simerr.As(err)
			if !ok || se.Kind != simerr.KindParseError {
				t.Fatalf("err = %v, want ParseError", err)
			}
			if se.Line != tt.line {
				t.Errorf("Line = %q, want %q", se.Line, tt.line)
			}
			if se.LineNo != tt.no {
				t.Errorf("LineNo = %d, want %d", se.LineNo, tt.no)
			}
			if !strings.Contains(se.Error(), tt.cause) {
				t.Errorf("error %q does not mention %q", se.Error(), tt.cause)
			}
		})
	}
}

func TestParseDeckFeatures(t *testing.T) {
	deck, err := ParseDeck(`* RC filter
* second comment

Vin in 0
+ SIN(0 1 1k)
R1 in out 1k ; series resistor
C1 out 0 100n
D1 out 0 DMOD
.model DMOD D(IS=1e-14 N=1.05)
.tran 1u 1m 0 1u uic
.end
R9 this line is ignored
`)
	if err != nil {
		t.Fatalf("ParseDeck: %v", err)
	}

	if deck.Title != "RC filter" || deck.Circuit.Name != "RC filter" {
		t.Errorf("Title = %q", deck.Title)
	}
	if !deck.Ended {
		t.Error("Ended not set")
	}
	if deck.Circuit.Len() != 4 {
		t.Fatalf("components = %d, want 4", deck.Circuit.Len())
	}
	vin, _ := deck.Circuit.Component("Vin")
	if vin.Value != "SIN(0 1 1k)" {
		t.Errorf("Vin value = %q", vin.Value)
	}
	d1, _ := deck.Circuit.Component("D1")
	if d1.Type != circuit.Diode || d1.Value != "DMOD" {
		t.Errorf("D1 = %+v", d1)
	}

	model, ok := deck.Models["DMOD"]
	if !ok || model.Type != "D" || model.Params["is"] != "1e-14" || model.Params["n"] != "1.05" {
		t.Errorf("model = %+v", model)
	}

	if len(deck.Analyses) != 1 {
		t.Fatalf("analyses = %d", len(deck.Analyses))
	}
	tran := deck.Analyses[0].TranParam
	if tran.TStep != 1e-6 || tran.TStop != 1e-3 || tran.TMax != 1e-6 || !tran.UIC {
		t.Errorf("tran = %+v", tran)
	}
}

func TestParseTitleDirective(t *testing.T) {
	tests := []struct {
		deck  string
		title string
	}{
		{".title  My   deck\nR1 1 0 1k\n.end\n", "My deck"},
		{"* comment title\n.title\nR1 1 0 1k\n", ""},
		{".title first\n+ second\n", "first second"},
	}
	for _, tt := range tests {
		deck, err := ParseDeck(tt.deck)
		if err != nil {
			t.Errorf("ParseDeck(%q): %v", tt.deck, err)
			continue
		}
		if deck.Title != tt.title {
			t.Errorf("ParseDeck(%q).Title = %q, want %q", tt.deck, deck.Title, tt.title)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1k", 1e3},
		{"1K", 1e3},
		{"4.7k", 4.7e3},
		{"1meg", 1e6},
		{"1MEG", 1e6},
		{"1M", 1e-3},
		{"2.2uF", 2.2e-6},
		{"100n", 100e-9},
		{"10p", 10e-12},
		{"3f", 3e-15},
		{"1G", 1e9},
		{"2T", 2e12},
		{"1e3", 1e3},
		{"-5", -5},
		{".5", 0.5},
		{"10V", 10},
		{"1mil", 25.4e-6},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if err != nil {
			t.Errorf("ParseValue(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-12*math.Abs(tt.want) {
			t.Errorf("ParseValue(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "k", "abc", "1.2.3", "DC"} {
		if _, err := ParseValue(bad); err == nil {
			t.Errorf("ParseValue(%q) succeeded", bad)
		}
	}
}

func TestPrefixVocabulary(t *testing.T) {
	for typ := range vocabulary {
		p, ok := Prefix(typ)
		if !ok {
			t.Fatalf("no prefix for %s", typ)
		}
		back, ok := TypeForPrefix(p)
		if !ok || back != typ {
			t.Errorf("TypeForPrefix(%c) = %s, want %s", p, back, typ)
		}
	}
	if _, ok := Prefix(circuit.Ground); ok {
		t.Error("ground must have no prefix")
	}
	if typ, ok := TypeForPrefix('r'); !ok || typ != circuit.Resistor {
		t.Error("prefix lookup is not case-insensitive")
	}
}

func TestParseDirective(t *testing.T) {
	a, err := ParseDirective("  .dc Vin 0 5 0.5 ")
	if err != nil {
		t.Fatalf("ParseDirective: %v", err)
	}
	if a.Type != AnalysisDC || a.DCParam.Source != "Vin" || a.DCParam.Increment != 0.5 {
		t.Errorf("dc = %+v", a.DCParam)
	}

	a, err = ParseDirective(".AC dec 10 1 1meg")
	if err != nil {
		t.Fatalf("ParseDirective: %v", err)
	}
	if a.Type != AnalysisAC || a.ACParam.FStop != 1e6 {
		t.Errorf("ac = %+v", a.ACParam)
	}

	for _, bad := range []string{"", ".noise v(out) V1 dec 10 1 1k", ".tran 1u"} {
		if _, err := ParseDirective(bad); err == nil {
			t.Errorf("ParseDirective(%q) succeeded", bad)
		}
	}
}
