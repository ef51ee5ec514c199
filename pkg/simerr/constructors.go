package simerr

import (
	"fmt"
	"time"
)

func NgSpiceNotFound(searched []string) *Error {
	paths := make([]string, len(searched))
	copy(paths, searched)
	return &Error{Kind: KindNgSpiceNotFound, Paths: paths}
}

func InitializationFailed(detail string, err error) *Error {
	return &Error{Kind: KindInitializationFailed, Detail: detail, Err: err}
}

func LibraryError(detail string, err error) *Error {
	return &Error{Kind: KindLibraryError, Detail: detail, Err: err}
}

func CommandFailed(command, detail string) *Error {
	return &Error{Kind: KindCommandFailed, Command: command, Detail: detail}
}

// Timeout reports that command did not complete within bound.
func Timeout(command string, bound time.Duration) *Error {
	return &Error{Kind: KindTimeout, Command: command, Timeout: bound}
}

func ConvergenceFailed(detail string) *Error {
	return &Error{Kind: KindConvergenceFailed, Detail: detail}
}

func InvalidComponent(name, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidComponent, Component: name, Detail: fmt.Sprintf(format, args...)}
}

func UnsupportedComponent(name, componentType string) *Error {
	return &Error{Kind: KindUnsupportedComponent, Component: name, ComponentType: componentType}
}

// ParseError names the 1-based line number, the raw line and the reason.
func ParseError(lineNo int, line, format string, args ...any) *Error {
	return &Error{Kind: KindParseError, LineNo: lineNo, Line: line, Detail: fmt.Sprintf(format, args...)}
}

func ResourceExhausted(resource string, limit int) *Error {
	return &Error{Kind: KindResourceExhausted, Resource: resource, Limit: limit}
}

func AnalysisFailed(format string, args ...any) *Error {
	return &Error{Kind: KindAnalysisFailed, Detail: fmt.Sprintf(format, args...)}
}

func IO(op string, err error) *Error {
	return &Error{Kind: KindIO, Detail: op, Err: err}
}

func FFI(op string, err error) *Error {
	return &Error{Kind: KindFFI, Detail: op, Err: err}
}

func System(detail string, err error) *Error {
	return &Error{Kind: KindSystem, Detail: detail, Err: err}
}

// Generic wraps an unanticipated failure. Prefer a specific Kind.
func Generic(err error) *Error {
	return &Error{Kind: KindGeneric, Err: err}
}
