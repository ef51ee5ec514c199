// Package simerr classifies every failure of the simulation core.
//
// All errors returned by the netlist, ngspice, results and engine packages are
// *Error values (possibly wrapped). Each carries a Kind plus the structured
// context needed to render an actionable message: the rejected command, the
// malformed line, the timeout bound or the offending component.
//
// Retry policy and metrics are driven by two queries, Category and
// IsRecoverable. Both are exhaustive over Kind; adding a Kind requires adding
// it to both switches.
package simerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the failure variant.
type Kind int

const (
	KindGeneric Kind = iota

	// Setup
	KindNgSpiceNotFound
	KindInitializationFailed
	KindLibraryError

	// Execution
	KindCommandFailed
	KindTimeout

	// Numerical
	KindConvergenceFailed

	// Validation
	KindInvalidComponent
	KindUnsupportedComponent

	// Parsing
	KindParseError

	KindResourceExhausted
	KindAnalysisFailed
	KindIO
	KindFFI
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindNgSpiceNotFound:
		return "ngspice_not_found"
	case KindInitializationFailed:
		return "initialization_failed"
	case KindLibraryError:
		return "library_error"
	case KindCommandFailed:
		return "command_failed"
	case KindTimeout:
		return "timeout"
	case KindConvergenceFailed:
		return "convergence_failed"
	case KindInvalidComponent:
		return "invalid_component"
	case KindUnsupportedComponent:
		return "unsupported_component"
	case KindParseError:
		return "parse_error"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindAnalysisFailed:
		return "analysis_failed"
	case KindIO:
		return "io"
	case KindFFI:
		return "ffi"
	case KindSystem:
		return "system"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Category groups kinds for logging, metrics and retry decisions.
type Category int

const (
	CategoryUnknown Category = iota
	CategorySetup
	CategoryExecution
	CategoryValidation
	CategoryParsing
	CategoryNumerical
	CategorySystem
	CategoryIO
	CategoryFFI
	CategoryPerformance
	CategoryAnalysis
)

func (c Category) String() string {
	switch c {
	case CategorySetup:
		return "setup"
	case CategoryExecution:
		return "execution"
	case CategoryValidation:
		return "validation"
	case CategoryParsing:
		return "parsing"
	case CategoryNumerical:
		return "numerical"
	case CategorySystem:
		return "system"
	case CategoryIO:
		return "io"
	case CategoryFFI:
		return "ffi"
	case CategoryPerformance:
		return "performance"
	case CategoryAnalysis:
		return "analysis"
	default:
		return "unknown"
	}
}

// Error is the single error type of the simulation core. Only the fields
// relevant to Kind are set.
type Error struct {
	Kind Kind

	Command       string        // CommandFailed
	Detail        string        // native error text or reason
	Line          string        // ParseError, verbatim
	LineNo        int           // ParseError, 1-based
	Component     string        // InvalidComponent, UnsupportedComponent
	ComponentType string        // UnsupportedComponent
	Timeout       time.Duration // Timeout
	Paths         []string      // NgSpiceNotFound
	Resource      string        // ResourceExhausted
	Limit         int           // ResourceExhausted

	Err error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNgSpiceNotFound:
		msg = "ngspice library not found"
		if len(e.Paths) > 0 {
			msg += " (searched " + strings.Join(e.Paths, ", ") + ")"
		}
	case KindInitializationFailed:
		msg = "ngspice initialization failed"
	case KindLibraryError:
		msg = "ngspice library error"
	case KindCommandFailed:
		msg = fmt.Sprintf("command %q failed", e.Command)
	case KindTimeout:
		msg = fmt.Sprintf("solver did not finish within %s", e.Timeout)
		if e.Command != "" {
			msg = fmt.Sprintf("%s: %s", e.Command, msg)
		}
	case KindConvergenceFailed:
		msg = "convergence failed"
	case KindInvalidComponent:
		msg = fmt.Sprintf("invalid component %q", e.Component)
	case KindUnsupportedComponent:
		msg = fmt.Sprintf("unsupported component %q of type %q", e.Component, e.ComponentType)
	case KindParseError:
		msg = fmt.Sprintf("parse error on line %d %q", e.LineNo, e.Line)
	case KindResourceExhausted:
		msg = fmt.Sprintf("%s exhausted (limit %d)", e.Resource, e.Limit)
	case KindAnalysisFailed:
		msg = "analysis failed"
	case KindIO:
		msg = "i/o error"
	case KindFFI:
		msg = "native call failed"
	case KindSystem:
		msg = "system error"
	default:
		msg = "simulation error"
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, &simerr.Error{Kind: simerr.KindTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Category returns the failure category of the error.
func (e *Error) Category() Category {
	switch e.Kind {
	case KindNgSpiceNotFound, KindInitializationFailed, KindLibraryError:
		return CategorySetup
	case KindCommandFailed, KindTimeout:
		return CategoryExecution
	case KindConvergenceFailed:
		return CategoryNumerical
	case KindInvalidComponent, KindUnsupportedComponent:
		return CategoryValidation
	case KindParseError:
		return CategoryParsing
	case KindResourceExhausted:
		return CategoryPerformance
	case KindAnalysisFailed:
		return CategoryAnalysis
	case KindIO:
		return CategoryIO
	case KindFFI:
		return CategoryFFI
	case KindSystem:
		return CategorySystem
	case KindGeneric:
		return CategoryUnknown
	default:
		return CategoryUnknown
	}
}

// IsRecoverable reports whether the component that returned the error stays
// usable for further calls without reconstruction.
func (e *Error) IsRecoverable() bool {
	switch e.Kind {
	case KindCommandFailed, KindTimeout, KindConvergenceFailed, KindResourceExhausted:
		return true
	case KindNgSpiceNotFound, KindInitializationFailed, KindLibraryError:
		return false
	case KindInvalidComponent, KindUnsupportedComponent, KindParseError:
		return false
	case KindAnalysisFailed, KindIO, KindFFI, KindSystem, KindGeneric:
		return false
	default:
		return false
	}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindGeneric for foreign errors.
func KindOf(err error) Kind {
	if se, ok := As(err); ok {
		return se.Kind
	}
	return KindGeneric
}

// CategoryOf returns the Category of err; foreign errors are CategoryUnknown.
func CategoryOf(err error) Category {
	if se, ok := As(err); ok {
		return se.Category()
	}
	return CategoryUnknown
}

// IsRecoverable reports whether err is a recoverable *Error. Foreign errors
// are not recoverable.
func IsRecoverable(err error) bool {
	if se, ok := As(err); ok {
		return se.IsRecoverable()
	}
	return false
}
