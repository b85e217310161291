// Package fault classifies failures into the four kinds the daemon cares
// about, so callers branch on kind instead of matching error strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// KindUnknown is the zero value; errors without a classification.
	KindUnknown Kind = iota

	// KindTransient covers failures expected to clear on their own:
	// source lock contention, network timeouts, 5xx from collaborators.
	// Retried next cycle, never fatal.
	KindTransient

	// KindNotFound covers unknown conversations, profiles, or approvals.
	// Callers short-circuit with a skip or an empty result.
	KindNotFound

	// KindMalformed covers structurally invalid responses where structured
	// output was expected. Callers degrade to a fallback, never propagate.
	KindMalformed

	// KindFatal covers startup preconditions: an unreadable source or an
	// unreachable required service. The process exits non-zero.
	KindFatal
)

// String returns the kind's name for logging.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed,
// in "package.Method" form.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind, so
// errors.Is(err, &Error{Kind: KindTransient}) works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New wraps err with a kind and operation name. A nil err yields an Error
// whose message is the kind itself (for precondition failures with no cause).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as KindTransient.
func Transient(op string, err error) *Error { return New(KindTransient, op, err) }

// NotFound wraps err as KindNotFound.
func NotFound(op string, err error) *Error { return New(KindNotFound, op, err) }

// Malformed wraps err as KindMalformed.
func Malformed(op string, err error) *Error { return New(KindMalformed, op, err) }

// Fatal wraps err as KindFatal.
func Fatal(op string, err error) *Error { return New(KindFatal, op, err) }

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// KindOf extracts the kind from anywhere in err's chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err carries KindTransient.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsMalformed reports whether err carries KindMalformed.
func IsMalformed(err error) bool { return KindOf(err) == KindMalformed }

// IsFatal reports whether err carries KindFatal.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }
