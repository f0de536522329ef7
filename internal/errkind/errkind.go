// Package errkind classifies converter errors into six kinds
// (ConfigError, ProtocolError, LayoutError, CodecError, IOError,
// InternalError) and attaches that classification to an underlying
// error with github.com/pkg/errors.
//
// Worker-pool tasks (compute, histogram, compression, writer) capture
// errors produced this way and attach them to their finished callback;
// Kind lets the first caller that drains the callback queue decide
// whether the converter is in a recoverable state (it never is - after
// any captured error the converter is poisoned).
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the six error classifications from the design.
type Kind int

const (
	// Internal is the zero value; Of returns it for errors never
	// wrapped by this package.
	Internal Kind = iota
	Config
	Protocol
	Layout
	Codec
	IO
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Protocol:
		return "ProtocolError"
	case Layout:
		return "LayoutError"
	case Codec:
		return "CodecError"
	case IO:
		return "IOError"
	default:
		return "InternalError"
	}
}

// kindedError pairs a Kind with the wrapped cause so errors.Cause and
// errors.As keep working through the stack trace pkg/errors attaches.
type kindedError struct {
	kind  Kind
	cause error
}

func (e *kindedError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.cause) }
func (e *kindedError) Unwrap() error { return e.cause }
func (e *kindedError) Cause() error  { return e.cause }

// New creates a new error of the given kind with a formatted message,
// carrying a stack trace via pkg/errors.
func New(k Kind, format string, args ...any) error {
	return &kindedError{kind: k, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the
// unwrap target. A nil err returns nil, matching errors.Wrap.
func Wrap(k Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: k, cause: errors.Wrap(err, message)}
}

// Of reports the Kind attached to err, or Internal if err was never
// classified by this package.
func Of(err error) Kind {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Internal
}

// Is reports whether Of(err) is k: only the first classified error
// found in err's chain counts, and an unclassified err counts as
// Internal.
func Is(err error, k Kind) bool {
	return Of(err) == k
}
