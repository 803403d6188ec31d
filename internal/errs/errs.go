// Package errs defines the shared error taxonomy used across the sequencer
// RPC surface, the forked-state backend, and the indexer.
// Every component-level error is expected to resolve to one of these
// Classes so the RPC surface can map it to a JSON-RPC numeric code without
// components re-deriving that mapping themselves.
package errs

import "fmt"

// Class categorizes a failure by how a caller should react to it.
type Class int

const (
	// NotFound means the requested resource does not exist at the
	// requested block/state, and retrying with the same arguments will
	// not help.
	NotFound Class = iota
	// Validation means the caller supplied malformed or semantically
	// invalid input.
	Validation
	// Execution means the request was well-formed but failed during
	// Cairo execution (reverted, insufficient resources, etc).
	Execution
	// Transport means a downstream dependency (fork provider, database)
	// could not be reached; retrying later may succeed.
	Transport
	// Fatal means an invariant was violated; the process should not
	// continue serving requests that depend on the corrupted state.
	Fatal
)

func (c Class) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Execution:
		return "execution"
	case Transport:
		return "transport"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Class and a stable JSON-RPC code.
type Error struct {
	Class   Class
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given class with a fixed JSON-RPC code.
func New(class Class, code int, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

// Wrap attaches class and code to an existing error, preserving it for
// errors.Is/As.
func Wrap(class Class, code int, message string, err error) *Error {
	return &Error{Class: class, Code: code, Message: message, Err: err}
}

// Standard JSON-RPC codes used by the sequencer surface.
const (
	CodeBlockNotFound       = 24
	CodeTxnHashNotFound     = 25
	CodeContractNotFound    = 20
	CodeClassHashNotFound   = 28
	CodeInvalidContinuation = 33
	CodePageSizeTooBig      = 31
	CodeContractError       = 40
	CodeTransactionExecErr  = 41
	CodeInvalidTxnIndex     = 27
	CodeInternal            = 500
)

// NotFoundf builds a NotFound Error with the given JSON-RPC code.
func NotFoundf(code int, format string, args ...interface{}) *Error {
	return New(NotFound, code, fmt.Sprintf(format, args...))
}

// Validationf builds a Validation Error with the given JSON-RPC code.
func Validationf(code int, format string, args ...interface{}) *Error {
	return New(Validation, code, fmt.Sprintf(format, args...))
}

// AsError recovers an *Error from err, synthesizing an internal Fatal Error
// around anything that wasn't already one of ours.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if ok := asErr(err, &e); ok {
		return e
	}
	return Wrap(Fatal, CodeInternal, "internal error", err)
}

func asErr(err error, target **Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
