package ngspice

import (
	"context"
)

// Callbacks receive solver output. They may be invoked from any goroutine
// while a native call is running.
type Callbacks struct {
	// SendChar receives one line of output, prefixed with "stdout " or
	// "stderr " as ngspice does.
	SendChar func(line string)
	// SendStat receives progress such as "tran 35.2%".
	SendStat func(status string)
	// ControlledExit is called when the solver wants to terminate.
	ControlledExit func(status int, immediate, quit bool)
}

// Library is the ngspice shared library API.
type Library interface {
	Init(ctx context.Context, cb Callbacks) (int32, error)
	Circ(ctx context.Context, lines []string) (int32, error)
	Command(ctx context.Context, cmd string) (int32, error)
	CurPlot(ctx context.Context) (string, error)
	AllVecs(ctx context.Context, plot string) ([]string, error)
	// VecInfo returns nil without error when the vector does not exist.
	VecInfo(ctx context.Context, name string) (*Vector, error)
	Close(ctx context.Context) error
}

// Loader produces an uninitialized Library.
type Loader interface {
	Load(ctx context.Context) (Library, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Library, error)

func (f LoaderFunc) Load(ctx context.Context) (Library, error) {
	return f(ctx)
}

// VectorType follows the ngspice simulation_types enum.
type VectorType int

const (
	TypeNone VectorType = iota
	TypeTime
	TypeFrequency
	TypeVoltage
	TypeCurrent
)

func (t VectorType) String() string {
	switch t {
	case TypeTime:
		return "time"
	case TypeFrequency:
		return "frequency"
	case TypeVoltage:
		return "voltage"
	case TypeCurrent:
		return "current"
	default:
		return "notype"
	}
}

// Vector flags, from ngspice's dvec.h.
const (
	FlagReal    = 1 << 0
	FlagComplex = 1 << 1
)

// Vector is a copy of one solver vector. Exactly one of Real and Complex is set.
type Vector struct {
	Name    string
	Type    VectorType
	Flags   int
	Real    []float64
	Complex []complex128
}

func (v *Vector) Len() int {
	if v.Complex != nil {
		return len(v.Complex)
	}
	return len(v.Real)
}

// IsComplex reports whether the vector holds complex data.
func (v *Vector) IsComplex() bool {
	return v.Flags&FlagComplex != 0 || v.Complex != nil
}

// RawOutput is everything one simulation produced, before interpretation.
type RawOutput struct {
	Plot    string
	Vectors []Vector // solver order
	Stdout  []string
	Stderr  []string
	// Lines holds stdout and stderr interleaved in the order the solver
	// wrote them.
	Lines  []Line
	Status []string
	// Aborted is set when the solver reported failure but still left data.
	Aborted bool
}
