package dberr

import (
	"errors"
	"fmt"
)

// Kind represents the category of a database error. Callers branch on the
// kind rather than on message text.
type Kind int

const (
	// KindUnknown represents an unknown error
	KindUnknown Kind = iota
	// KindConfiguration represents a malformed connection string or missing settings
	KindConfiguration
	// KindTransport represents HTTP failures, non-success statuses and unreadable bodies
	KindTransport
	// KindProtocol represents error markers or missing fields in an otherwise successful response
	KindProtocol
	// KindConcurrencyViolation represents an UPDATE/DELETE that matched no row
	KindConcurrencyViolation
	// KindOperationCanceled represents a caller cancellation or deadline
	KindOperationCanceled
	// KindUnsupported represents an operation the transport cannot perform
	KindUnsupported
	// KindInvalidState represents an operation on a closed connection or finished transaction
	KindInvalidState
	// KindInvalidCast represents a typed getter that cannot convert the stored value
	KindInvalidCast
	// KindInvalidParameter represents a missing, duplicate or unusable parameter
	KindInvalidParameter
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindConfiguration:        "configuration",
	KindTransport:            "transport",
	KindProtocol:             "protocol",
	KindConcurrencyViolation: "concurrency violation",
	KindOperationCanceled:    "operation canceled",
	KindUnsupported:          "unsupported operation",
	KindInvalidState:         "invalid state",
	KindInvalidCast:          "invalid cast",
	KindInvalidParameter:     "invalid parameter",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind be used as an errors.Is target:
//
//	errors.Is(err, dberr.KindConcurrencyViolation)
func (k Kind) Error() string {
	return k.String()
}

// Sentinels for errors.Is.
var (
	ErrConfiguration        error = KindConfiguration
	ErrTransport            error = KindTransport
	ErrProtocol             error = KindProtocol
	ErrConcurrencyViolation error = KindConcurrencyViolation
	ErrOperationCanceled    error = KindOperationCanceled
	ErrUnsupported          error = KindUnsupported
	ErrInvalidState         error = KindInvalidState
	ErrInvalidCast          error = KindInvalidCast
	ErrInvalidParameter     error = KindInvalidParameter
)

// Error is the single error type returned by this module. The request and
// response bodies are kept because a failed batch is otherwise opaque.
type Error struct {
	Kind         Kind
	Message      string
	SQL          string
	StatusCode   int
	RequestBody  string
	ResponseBody string
	Cause        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := "libsql: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches a Kind target. Protocol errors also match KindTransport.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		return false
	}
	return e.Kind == k || (k == KindTransport && e.Kind == KindProtocol)
}

// IsType checks if the error is of a specific kind
func (e *Error) IsType(kind Kind) bool {
	return e.Kind == kind
}

// WithSQL attaches the statement or batch text.
func (e *Error) WithSQL(sql string) *Error {
	e.SQL = sql
	return e
}

// WithExchange attaches the HTTP status and raw bodies of the failed exchange.
func (e *Error) WithExchange(statusCode int, requestBody, responseBody []byte) *Error {
	e.StatusCode = statusCode
	e.RequestBody = string(requestBody)
	e.ResponseBody = string(responseBody)
	return e
}

// New creates a new Error with the specified kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error with the specified kind, message, and underlying cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *Error {
	return New(KindConfiguration, message)
}

// NewTransportError creates a transport error
func NewTransportError(message string, cause error) *Error {
	return Wrap(KindTransport, message, cause)
}

// NewProtocolError creates a protocol error
func NewProtocolError(message string) *Error {
	return New(KindProtocol, message)
}

// NewConcurrencyViolation creates a concurrency violation
func NewConcurrencyViolation(message string) *Error {
	return New(KindConcurrencyViolation, message)
}

// NewCanceledError wraps a context error so errors.Is(err, context.Canceled) still holds.
func NewCanceledError(cause error) *Error {
	return Wrap(KindOperationCanceled, "operation canceled", cause)
}

// NewUnsupportedError reports an operation that always fails on this transport.
func NewUnsupportedError(operation string) *Error {
	return Newf(KindUnsupported, "%s is not supported", operation)
}

// NewInvalidStateError creates an invalid state error
func NewInvalidStateError(message string) *Error {
	return New(KindInvalidState, message)
}

// NewInvalidCastError names the source and target type of a failed conversion.
func NewInvalidCastError(value any, target string) *Error {
	if value == nil {
		return Newf(KindInvalidCast, "unable to cast null value to %s", target)
	}
	return Newf(KindInvalidCast, "unable to cast value of type %T to %s", value, target)
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(message string) *Error {
	return New(KindInvalidParameter, message)
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool { return IsKind(err, KindConfiguration) }

// IsTransportError checks if an error is a transport error, protocol errors included
func IsTransportError(err error) bool { return IsKind(err, KindTransport) }

// IsProtocolError checks if an error is a protocol error
func IsProtocolError(err error) bool { return IsKind(err, KindProtocol) }

// IsConcurrencyViolation checks if an error is a concurrency violation
func IsConcurrencyViolation(err error) bool { return IsKind(err, KindConcurrencyViolation) }

// IsCanceled checks if an error is a cancellation
func IsCanceled(err error) bool { return IsKind(err, KindOperationCanceled) }

// IsUnsupported checks if an error is an unsupported operation
func IsUnsupported(err error) bool { return IsKind(err, KindUnsupported) }

// IsInvalidState checks if an error is an invalid state error
func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }

// IsInvalidCast checks if an error is an invalid cast
func IsInvalidCast(err error) bool { return IsKind(err, KindInvalidCast) }
