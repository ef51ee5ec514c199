package ngspice

import (
	"strings"
	"sync"
)

const (
	stdoutPrefix = "stdout "
	stderrPrefix = "stderr "
)

// convergenceMarkers are substrings ngspice prints when Newton iteration or
// time stepping gives up.
var convergenceMarkers = []string{
	"iteration limit reached",
	"timestep too small",
	"no convergence",
	"gmin stepping failed",
	"source stepping failed",
	"singular matrix",
}

// Line is one line of solver output, tagged with its stream.
type Line struct {
	Stderr bool
	Text   string
}

// output collects callback data for the current operation.
type output struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
	lines  []Line
	status []string
	exit   *exitStatus
}

type exitStatus struct {
	status          int
	immediate, quit bool
}

func (o *output) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stdout, o.stderr, o.lines, o.status = nil, nil, nil, nil
}

func (o *output) sendChar(line string) {
	stream, text := splitStream(line)

	o.mu.Lock()
	defer o.mu.Unlock()
	if stream == stderrPrefix {
		o.stderr = append(o.stderr, text)
	} else {
		o.stdout = append(o.stdout, text)
	}
	o.lines = append(o.lines, Line{Stderr: stream == stderrPrefix, Text: text})
}

func (o *output) sendStat(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = append(o.status, status)
}

func (o *output) controlledExit(status int, immediate, quit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exit = &exitStatus{status: status, immediate: immediate, quit: quit}
}

func (o *output) exited() *exitStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exit
}

// snapshot copies the collected lines.
func (o *output) snapshot() (stdout, stderr, status []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.stdout...),
		append([]string(nil), o.stderr...),
		append([]string(nil), o.status...)
}

// ordered copies both streams in emission order.
func (o *output) ordered() []Line {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Line(nil), o.lines...)
}

// splitStream strips the ngspice stream prefix. Unprefixed lines are stdout.
func splitStream(line string) (stream, text string) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case strings.HasPrefix(line, stderrPrefix):
		return stderrPrefix, line[len(stderrPrefix):]
	case strings.HasPrefix(line, stdoutPrefix):
		return stdoutPrefix, line[len(stdoutPrefix):]
	}
	return stdoutPrefix, line
}

// convergenceFailure returns the first line carrying a convergence marker.
func convergenceFailure(lines ...[]string) (string, bool) {
	for _, group := range lines {
		for _, line := range group {
			lower := strings.ToLower(line)
			for _, marker := range convergenceMarkers {
				if strings.Contains(lower, marker) {
					return strings.TrimSpace(line), true
				}
			}
		}
	}
	return "", false
}

// runAborted reports whether the solver announced an aborted analysis.
func runAborted(lines ...[]string) bool {
	for _, group := range lines {
		for _, line := range group {
			if strings.Contains(strings.ToLower(line), "simulation(s) aborted") {
				return true
			}
		}
	}
	return false
}

// IsWarning reports whether a solver line is a warning.
func IsWarning(line string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "warning")
}

// IsError reports whether a solver line reports an error.
func IsError(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(lower, "error:") || strings.HasPrefix(lower, "error ") ||
		strings.Contains(lower, " error:")
}
