package eventactions

import (
	"errors"
	"fmt"
)

// ErrorKind classifies planning failures
type ErrorKind int

const (
	KindConsistency ErrorKind = iota + 1
	KindValidation
	KindDecrypt
	KindFetch
	KindAbandoned
)

// String provides a human-readable representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindConsistency:
		return "consistency"
	case KindValidation:
		return "validation"
	case KindDecrypt:
		return "decrypt"
	case KindFetch:
		return "fetch"
	case KindAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

var (
	// ErrConsistency is returned when an event claims a series membership it does not have
	ErrConsistency = errors.New("consistency error")
	// ErrValidation is returned when input is rejected before any network call
	ErrValidation = errors.New("validation error")
	// ErrConfirmationAbandoned is returned when the user cancels scope selection
	ErrConfirmationAbandoned = errors.New("confirmation abandoned")
)

var (
	ErrOriginalEventNotFound    = &Error{Kind: KindConsistency, Message: "original event not found"}
	ErrMissingCalendarBootstrap = &Error{Kind: KindValidation, Message: "trying to update event without a calendar"}
	ErrMissingEventData         = &Error{Kind: KindValidation, Message: "trying to edit event without event information"}
	ErrMissingPartstat          = &Error{Kind: KindValidation, Message: "cannot update participation status without new answer"}
)

// Error is a typed planning error. It matches both its kind's sentinel and
// its cause with errors.Is.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	var errs []error
	switch e.Kind {
	case KindConsistency:
		errs = append(errs, ErrConsistency)
	case KindValidation:
		errs = append(errs, ErrValidation)
	case KindAbandoned:
		errs = append(errs, ErrConfirmationAbandoned)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Is makes a wrapped copy of a package sentinel match the sentinel itself
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

// wrap attaches a cause to one of the package sentinels
func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

func newError(kind ErrorKind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}
