// Package refsim is a small pure-Go solver behind the ngspice library API.
// It handles linear R, C, L, V and I decks for .op and single-source .dc
// analyses, solving the modified nodal system with a sparse LU
// factorization. Anything else is rejected with an ngspice-style error line,
// which the bridge reports as a failed command.
//
// It lets the engine run end to end without an ngspice build, and serves as
// the backend for tests.
package refsim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/ngspice"
)

type plot struct {
	name    string
	vectors []ngspice.Vector
}

// Library implements ngspice.Library.
type Library struct {
	mu     sync.Mutex
	cb     ngspice.Callbacks
	deck   *netlist.Deck
	plots  []*plot
	cur    *plot
	counts map[string]int
	closed bool
}

func New() *Library {
	return &Library{counts: make(map[string]int)}
}

// Loader returns a loader producing fresh reference libraries.
func Loader() ngspice.Loader {
	return ngspice.LoaderFunc(func(context.Context) (ngspice.Library, error) {
		return New(), nil
	})
}

func (l *Library) stdout(format string, args ...any) {
	if l.cb.SendChar != nil {
		l.cb.SendChar("stdout " + fmt.Sprintf(format, args...))
	}
}

func (l *Library) stderr(format string, args ...any) {
	if l.cb.SendChar != nil {
		l.cb.SendChar("stderr " + fmt.Sprintf(format, args...))
	}
}

func (l *Library) status(s string) {
	if l.cb.SendStat != nil {
		l.cb.SendStat(s)
	}
}

func (l *Library) Init(_ context.Context, cb ngspice.Callbacks) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cb = cb
	l.stdout("******")
	l.stdout("** spicebridge reference solver")
	l.stdout("******")
	return 0, nil
}

func (l *Library) Circ(_ context.Context, lines []string) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 1, nil
	}

	deck, err := netlist.ParseDeck(strings.Join(lines, "\n"))
	if err != nil {
		l.deck = nil
		l.stderr("Error: %v", err)
		return 1, nil
	}

	for _, comp := range deck.Circuit.Components {
		switch comp.Type {
		case circuit.Diode, circuit.BJT, circuit.MOSFET:
			l.deck = nil
			l.stderr("Error: %s: device type %s is not supported by the reference solver", comp.ID, typeLetter(comp.Type))
			return 1, nil
		}
	}

	l.deck = deck
	l.stdout("Circuit: %s", deck.Title)
	return 0, nil
}

func (l *Library) Command(_ context.Context, cmd string) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 1, nil
	}

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return 0, nil
	}

	switch strings.ToLower(fields[0]) {
	case "echo":
		l.stdout("%s", strings.Join(fields[1:], " "))
		return 0, nil

	case "run":
		return l.run(), nil

	case "destroy":
		if len(fields) > 1 && strings.EqualFold(fields[1], "all") {
			l.plots = nil
			l.cur = nil
			return 0, nil
		}
		for _, name := range fields[1:] {
			l.destroyPlot(name)
		}
		return 0, nil

	case "remcirc":
		l.deck = nil
		return 0, nil
	}

	l.stderr("Error: %s: no such command available in the reference solver", fields[0])
	return 1, nil
}

func (l *Library) destroyPlot(name string) {
	kept := l.plots[:0]
	for _, p := range l.plots {
		if p.name != name {
			kept = append(kept, p)
		}
	}
	l.plots = kept
	if l.cur != nil && l.cur.name == name {
		l.cur = nil
	}
}

func (l *Library) run() int32 {
	if l.deck == nil {
		l.stderr("Error: there aren't any circuits loaded.")
		return 1
	}
	if len(l.deck.Analyses) == 0 {
		l.stderr("Error: no analysis specified")
		return 1
	}
	analysis := l.deck.Analyses[0]
	if len(l.deck.Analyses) > 1 {
		l.stderr("Warning: only the first analysis (.%s) is run", analysis.Type)
	}

	n, err := buildNetwork(l.deck.Circuit)
	if err != nil {
		l.stderr("Error: %v", err)
		return 1
	}
	for _, node := range n.danglingNodes() {
		l.stderr("Warning: %s: node has only one connection", node)
	}

	l.stdout("Doing analysis at TEMP = 27.000000 and TNOM = 27.000000")

	var vecs []ngspice.Vector
	switch analysis.Type {
	case netlist.AnalysisOP:
		vecs, err = runOP(n)
	case netlist.AnalysisDC:
		vecs, err = runDC(n, analysis)
	default:
		l.stderr("Error: .%s analysis is not supported by the reference solver", analysis.Type)
		return 1
	}
	if err != nil {
		l.stderr("Error: %v", err)
		l.stdout("run simulation(s) aborted")
		return 1
	}

	kind := analysis.Type.String()
	l.counts[kind]++
	p := &plot{name: fmt.Sprintf("%s%d", kind, l.counts[kind]), vectors: vecs}
	l.plots = append(l.plots, p)
	l.cur = p

	l.status(kind + ": 100%")
	rows := 0
	if len(vecs) > 0 {
		rows = vecs[0].Len()
	}
	l.stdout("No. of Data Rows : %d", rows)
	return 0
}

func (l *Library) CurPlot(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur == nil {
		return "const", nil
	}
	return l.cur.name, nil
}

func (l *Library) findPlot(name string) *plot {
	for _, p := range l.plots {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (l *Library) AllVecs(_ context.Context, plotName string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.findPlot(plotName)
	if p == nil {
		return nil, nil
	}
	names := make([]string, len(p.vectors))
	for i, v := range p.vectors {
		names[i] = v.Name
	}
	return names, nil
}

// VecInfo accepts "plot.vector" or a vector name in the current plot.
func (l *Library) VecInfo(_ context.Context, name string) (*ngspice.Vector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.cur
	if i := strings.IndexByte(name, '.'); i > 0 {
		if named := l.findPlot(name[:i]); named != nil {
			p, name = named, name[i+1:]
		}
	}
	if p == nil {
		return nil, nil
	}

	for _, v := range p.vectors {
		if strings.EqualFold(v.Name, name) {
			cp := v
			cp.Real = append([]float64(nil), v.Real...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.deck = nil
	l.plots = nil
	l.cur = nil
	return nil
}
