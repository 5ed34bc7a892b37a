// Package opserr defines the error kinds propagated to the CLI exit
// code and the HTTP error mapping.
package opserr

import "fmt"

// Kind classifies an error for exit-code and HTTP-status mapping.
type Kind int

const (
	// KindOps is the generic/unclassified kind.
	KindOps Kind = iota
	KindConfig
	KindAdapter
	KindDatabase
	KindIO
)

// ExitCode returns the process exit code associated with k.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 10
	case KindAdapter:
		return 20
	case KindDatabase:
		return 30
	case KindIO:
		return 40
	default:
		return 50
	}
}

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindAdapter:
		return "AdapterError"
	case KindDatabase:
		return "DatabaseError"
	case KindIO:
		return "IOError"
	default:
		return "OpsError"
	}
}

// Error is an error tagged with a Kind so callers can map it to an exit
// code or HTTP status without string-matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode implements the same interface as Kind so callers can type-assert
// an arbitrary error and fall back to 50 if it isn't an *Error.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Config reports a missing/unparseable config or missing required keys.
func Config(format string, args ...any) *Error { return newf(KindConfig, format, args...) }

// ConfigWrap wraps err as a ConfigError.
func ConfigWrap(err error, format string, args ...any) *Error {
	return wrap(KindConfig, err, format, args...)
}

// Adapter reports a source file that is unreadable or malformed.
func Adapter(format string, args ...any) *Error { return newf(KindAdapter, format, args...) }

// AdapterWrap wraps err as an AdapterError.
func AdapterWrap(err error, format string, args ...any) *Error {
	return wrap(KindAdapter, err, format, args...)
}

// Database reports an index open or SQL failure.
func Database(format string, args ...any) *Error { return newf(KindDatabase, format, args...) }

// DatabaseWrap wraps err as a DatabaseError.
func DatabaseWrap(err error, format string, args ...any) *Error {
	return wrap(KindDatabase, err, format, args...)
}

// IO reports a canonical-log append failure or lock acquisition
// failure.
func IO(format string, args ...any) *Error { return newf(KindIO, format, args...) }

// IOWrap wraps err as an IOError.
func IOWrap(err error, format string, args ...any) *Error {
	return wrap(KindIO, err, format, args...)
}

// Ops reports a generic/client-side failure.
func Ops(format string, args ...any) *Error { return newf(KindOps, format, args...) }

// OpsWrap wraps err as a generic OpsError.
func OpsWrap(err error, format string, args ...any) *Error {
	return wrap(KindOps, err, format, args...)
}

// ExitCode extracts the exit code from err if it carries a Kind,
// otherwise returns the generic OpsError code (50).
func ExitCode(err error) int {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.ExitCode()
	}
	return KindOps.ExitCode()
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok { //nolint:errorlint // intentional narrow type switch with manual Unwrap walk
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
