package api

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an orchestration error.
type ErrorKind string

const (
	// ErrorKindSchema marks a bad capability description. Fatal at
	// registry build time.
	ErrorKindSchema ErrorKind = "schema_error"

	// ErrorKindValidation marks a proposal that references an unknown
	// capability or carries malformed arguments. Recoverable: fed back
	// to the reasoning collaborator as an observation.
	ErrorKindValidation ErrorKind = "validation_error"

	// ErrorKindRemote marks a failure reported by the remote endpoint.
	// Recoverable: fed back as an observation.
	ErrorKindRemote ErrorKind = "remote_error"

	// ErrorKindTransport marks the absence of a response.
	ErrorKindTransport ErrorKind = "transport_error"

	// ErrorKindIndeterminate marks a transport failure on a mutating
	// capability: success or failure cannot be confirmed, and the caller
	// must decide explicitly between retry and abort.
	ErrorKindIndeterminate ErrorKind = "indeterminate"

	// ErrorKindInternal marks an unexpected internal failure.
	ErrorKindInternal ErrorKind = "internal"
)

// Error is a structured orchestration error with kind, an optional
// parameter or capability reference, an optional remote code, and a message.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Kind, e.Message, e.Param)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewSchemaError creates an Error for an unresolvable capability description.
func NewSchemaError(param, message string) *Error {
	return &Error{Kind: ErrorKindSchema, Param: param, Message: message}
}

// NewValidationError creates an Error for an invalid proposal.
func NewValidationError(param, message string) *Error {
	return &Error{Kind: ErrorKindValidation, Param: param, Message: message}
}

// NewRemoteError creates an Error for a failure reported by the remote
// endpoint, carrying the remote's status code.
func NewRemoteError(code, message string) *Error {
	return &Error{Kind: ErrorKindRemote, Code: code, Message: message}
}

// NewTransportError creates an Error for a missing response.
func NewTransportError(message string) *Error {
	return &Error{Kind: ErrorKindTransport, Message: message}
}

// NewIndeterminateError creates an Error for an unconfirmed mutating call.
func NewIndeterminateError(capability string) *Error {
	return &Error{
		Kind:    ErrorKindIndeterminate,
		Param:   capability,
		Message: "mutating capability outcome could not be confirmed",
	}
}

// NewInternalError creates an Error for an unexpected internal failure.
func NewInternalError(message string) *Error {
	return &Error{Kind: ErrorKindInternal, Message: message}
}

// KindOf returns the ErrorKind of err, or ErrorKindInternal when err is
// not a structured *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}
