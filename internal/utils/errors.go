package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error per the error handling design (spec §7).
type Kind int

const (
	// KindMalformedFormat covers footer/header cookie mismatch, short reads,
	// and unknown disk-type integers: parsing fails outright.
	KindMalformedFormat Kind = iota
	// KindChecksumMismatch is logged, not fatal: recomputed != stored.
	KindChecksumMismatch
	// KindParentResolution is returned when a differencing disk's locator
	// chain yields no existing parent file.
	KindParentResolution
	// KindOutOfRange covers a sector beyond current size, or a segment count
	// outside 1..=11.
	KindOutOfRange
	// KindProtocolError covers a malformed request slot: unknown ABI variant,
	// segment count mismatch. Surfaces to the ring as status NotSupported.
	KindProtocolError
	// KindBackendIOError wraps an ops.Read/ops.Write failure. Surfaces to the
	// ring as status Error.
	KindBackendIOError
	// KindOverlapDetected is only produced by the self-check; it never
	// mutates state.
	KindOverlapDetected
)

func (k Kind) String() string {
	switch k {
	case KindMalformedFormat:
		return "malformed format"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindParentResolution:
		return "parent resolution"
	case KindOutOfRange:
		return "out of range"
	case KindProtocolError:
		return "protocol error"
	case KindBackendIOError:
		return "backend io error"
	case KindOverlapDetected:
		return "overlap detected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a structured, kind-tagged error carrying a pkg/errors-wrapped
// cause so that both the stack trace convention (`%+v`) and errors.Is/As over
// the cause chain keep working.
type Error struct {
	Kind  Kind
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WrapError builds a Kind-tagged Error wrapping cause with context. Returns
// nil if cause is nil.
func WrapError(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: errors.Wrap(cause, context)}
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
