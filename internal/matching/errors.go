package matching

import (
	"errors"
	"fmt"
)

// Kind classifies why a submission failed
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindService    Kind = "service"
	KindParse      Kind = "parse"
)

// User-facing messages, one per kind
const (
	MessageValidation = "Please upload both an invoice and a purchase order."
	MessageNetwork    = "An error occurred. Is the backend server running?"
	MessageService    = "The matching service could not process these documents. Please try again."
	MessageParse      = "The matching service returned an unexpected response. Please try again."
)

// ErrSubmissionInFlight is returned by Submit when a request is already outstanding.
// The state is left untouched.
var ErrSubmissionInFlight = errors.New("submission already in progress")

// Error is the single failure shape surfaced by the controller. The wrapped cause is
// kept for logging and errors.Is/As but is never serialized.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindParse}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: messageFor(kind), cause: cause}
}

func messageFor(kind Kind) string {
	switch kind {
	case KindValidation:
		return MessageValidation
	case KindNetwork:
		return MessageNetwork
	case KindService:
		return MessageService
	default:
		return MessageParse
	}
}

// ValidationError returns a validation failure
func ValidationError() *Error {
	return newError(KindValidation, nil)
}

// NetworkError wraps a transport failure or timeout
func NetworkError(cause error) *Error {
	return newError(KindNetwork, cause)
}

// ServiceError wraps a non-success status from the service
func ServiceError(cause error) *Error {
	return newError(KindService, cause)
}

// ParseError wraps a body that does not match the result schema
func ParseError(cause error) *Error {
	return newError(KindParse, cause)
}

// AsError normalizes any error into an *Error. Unknown errors are treated as network
// failures since they can only come from the transport.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return NetworkError(err)
}
