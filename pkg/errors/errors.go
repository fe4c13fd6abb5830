package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodePrecondition      Code = "PRECONDITION_FAILED"
	CodeAggregationFailed Code = "AGGREGATION_FAILED"
	CodeCacheUnavailable  Code = "CACHE_UNAVAILABLE"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is how a Code surfaces over HTTP. ExposeMessage lets the
// caller-facing message through instead of PublicMessage; it is set for codes
// whose messages are written for end users.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

func clientFault(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: details, ExposeMessage: true}
}

func serverFault(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: true, PublicMessage: msg, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        clientFault(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:          clientFault(http.StatusNotFound, "resource not found", false),
	CodeConflict:          clientFault(http.StatusConflict, "conflict detected", false),
	CodeAlreadyExists:     clientFault(http.StatusConflict, "resource already exists", true),
	CodeInvalidTransition: clientFault(http.StatusUnprocessableEntity, "state transition disallowed", true),
	CodeCapacityExceeded:  clientFault(http.StatusConflict, "capacity reached", true),
	CodePrecondition:      clientFault(http.StatusPreconditionFailed, "precondition failed", true),
	CodeAggregationFailed: serverFault(http.StatusServiceUnavailable, "metrics temporarily unavailable", false),
	CodeCacheUnavailable:  serverFault(http.StatusServiceUnavailable, "cache unavailable", false),
	CodeInternal:          serverFault(http.StatusInternalServerError, "internal server error", false),
	CodeDependency:        serverFault(http.StatusServiceUnavailable, "dependency unavailable", true),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in the chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
