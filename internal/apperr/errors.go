package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind string

const (
	// KindUnknown represents an unclassified failure.
	KindUnknown Kind = "unknown"
	// KindValidation signals malformed input such as an unreadable image or non-positive dimensions.
	KindValidation Kind = "validation"
	// KindNotFound signals an unknown product, designer, sale or tier reference.
	KindNotFound Kind = "not_found"
	// KindConflict signals a state conflict, e.g. a duplicate design or a price edit after approval.
	KindConflict Kind = "conflict"
	// KindStorage signals an unreachable store or a failed transaction. Safe to retry.
	KindStorage Kind = "storage"
	// KindConfiguration signals an empty or malformed tier/pricing table.
	KindConfiguration Kind = "configuration"
	// KindArithmetic signals a violated computed invariant. Always fatal for the operation.
	KindArithmetic Kind = "arithmetic"
)

// Error wraps failures with a machine readable kind.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
	Details any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs a typed error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs a typed error around err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithDetails attaches structured details (e.g. duplicate matches) to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Sprintf(format, args...))
}

func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, fmt.Sprintf(format, args...))
}

func Configuration(op, format string, args ...any) *Error {
	return New(KindConfiguration, op, fmt.Sprintf(format, args...))
}

func Arithmetic(op, format string, args ...any) *Error {
	return New(KindArithmetic, op, fmt.Sprintf(format, args...))
}

// Storage wraps a backing store failure.
func Storage(op string, err error) error {
	return Wrap(KindStorage, op, err)
}

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailsOf returns the details attached to the first typed error in err's chain.
func DetailsOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
