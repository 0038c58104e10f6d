// Package herrors provides the structured error taxonomy used across this
// module. A *Error built through the chained-builder constructors below
// carries a Kind, so callers can branch on Kind instead of matching strings.
// Not every error in the module is a *Error: some decoders return plain
// fmt.Errorf errors and the hdf5 package keeps sentinel errors, and KindOf
// reports false for those.
package herrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure into one of the six outcomes a caller needs to
// distinguish when deciding whether a batch request can be retried, whether a
// sibling request in the same batch is unaffected, or whether the file is
// simply not a file this module can read.
type Kind string

const (
	IOError           Kind = "io_error"
	FormatError       Kind = "format_error"
	UnsupportedFormat Kind = "unsupported_format"
	UnsupportedFilter Kind = "unsupported_filter"
	PathNotFound      Kind = "path_not_found"
	OutOfBounds       Kind = "out_of_bounds"
)

// Error is the concrete error type produced by this module's decoders,
// caches, and drivers.
type Error struct {
	kind    Kind
	message string
	cause   error
	path    string
	details map[string]any
}

// New starts building an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap starts building an Error of the given kind with an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// WithPath attaches the object or file path the error occurred on.
func (e *Error) WithPath(path string) *Error {
	e.path = path
	return e
}

// WithDetail attaches a single piece of structured context, for example a
// byte offset, a filter id, or a dimension index.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *Error) Error() string {
	msg := e.message
	if e.path != "" {
		msg = fmt.Sprintf("%s (path %q)", msg, e.path)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Path returns the object or file path attached to the error, if any.
func (e *Error) Path() string {
	return e.path
}

// Details returns the structured context attached to the error.
func (e *Error) Details() map[string]any {
	return e.details
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.kind, true
	}
	return "", false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
