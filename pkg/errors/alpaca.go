package errors

import (
	"errors"
	"fmt"
)

// Brokerage stream error codes with a dedicated semantic type.
const (
	AlpacaCodeAuthFailed      = 401
	AlpacaCodeNotAuthorized   = 402
	AlpacaCodeSymbolLimit     = 405
	AlpacaCodeConnectionLimit = 406
)

// WebSocket transport codes used when the close frame carries none.
const (
	WSCodeMalformedFrame = 4000
	WSCodeHealthTimeout  = 4001
	WSCodeReadFailed     = 4002
	WSCodeDialFailed     = 4003
	WSCodeWriteFailed    = 4004
)

// AlpacaError is an error payload reported by the brokerage on one of its streams.
type AlpacaError struct {
	Code    int
	Context string
}

// NewAlpacaError creates a new AlpacaError.
func NewAlpacaError(code int, context string) *AlpacaError {
	return &AlpacaError{
		Code:    code,
		Context: context,
	}
}

// Error implements the error interface.
func (e *AlpacaError) Error() string {
	return fmt.Sprintf("alpaca error %d: %s", e.Code, e.Context)
}

// AuthenticationError is reported for rejected credentials (401, 402).
type AuthenticationError struct {
	*AlpacaError
}

func (e *AuthenticationError) Unwrap() error { return e.AlpacaError }

// SubscriptionError is reported when a subscription exceeds the symbol limit (405).
type SubscriptionError struct {
	*AlpacaError
}

func (e *SubscriptionError) Unwrap() error { return e.AlpacaError }

// ConnectionLimitError is reported when the account already holds the maximum
// number of stream connections (406).
type ConnectionLimitError struct {
	*AlpacaError
}

func (e *ConnectionLimitError) Unwrap() error { return e.AlpacaError }

// ClassifyAlpacaError maps a brokerage error code to its semantic error type.
// Unknown codes are returned as a plain *AlpacaError.
func ClassifyAlpacaError(code int, context string) error {
	base := NewAlpacaError(code, context)

	switch code {
	case AlpacaCodeAuthFailed, AlpacaCodeNotAuthorized:
		return &AuthenticationError{AlpacaError: base}
	case AlpacaCodeSymbolLimit:
		return &SubscriptionError{AlpacaError: base}
	case AlpacaCodeConnectionLimit:
		return &ConnectionLimitError{AlpacaError: base}
	default:
		return base
	}
}

// WebSocketError is a transport-layer fault on a named stream.
type WebSocketError struct {
	Code    int
	Stream  string
	Context string
	Cause   error
}

// NewWebSocketError creates a new WebSocketError.
func NewWebSocketError(code int, stream, context string, cause error) *WebSocketError {
	return &WebSocketError{
		Code:    code,
		Stream:  stream,
		Context: context,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *WebSocketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("websocket error %d on %s stream: %s: %v", e.Code, e.Stream, e.Context, e.Cause)
	}

	return fmt.Sprintf("websocket error %d on %s stream: %s", e.Code, e.Stream, e.Context)
}

func (e *WebSocketError) Unwrap() error { return e.Cause }

// IsAuthenticationError reports whether err is, or wraps, an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var target *AuthenticationError

	return errors.As(err, &target)
}

// IsSubscriptionError reports whether err is, or wraps, a SubscriptionError.
func IsSubscriptionError(err error) bool {
	var target *SubscriptionError

	return errors.As(err, &target)
}

// IsConnectionLimitError reports whether err is, or wraps, a ConnectionLimitError.
func IsConnectionLimitError(err error) bool {
	var target *ConnectionLimitError

	return errors.As(err, &target)
}

// AlpacaCode returns the brokerage code carried by err, or 0 when err holds no AlpacaError.
func AlpacaCode(err error) int {
	var target *AlpacaError
	if errors.As(err, &target) {
		return target.Code
	}

	return 0
}
