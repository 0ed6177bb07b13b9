package common

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide between logging,
// silently dropping, and surfacing an error.
type Kind string

const (
	KindConfig      Kind = "config"
	KindRejected    Kind = "rejected"
	KindUnsupported Kind = "unsupported"
	KindCancelled   Kind = "cancelled"
	KindPlatform    Kind = "platform"
	KindTransport   Kind = "transport"
	KindStorage     Kind = "storage"
	KindUnknown     Kind = "unknown"
)

// Error is the error type shared by all imgdrop packages.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap annotates err with a kind and operation. A nil err yields nil and an
// already typed error is returned as is.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// WithKind wraps err under kind even when it is already typed. The inner
// error stays reachable through errors.Is and errors.As.
func WithKind(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind reports whether the first typed error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}
