package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport package.
var (
	// ErrNotConnected indicates the backend is not connected.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrConnectionClosed indicates the connection was closed unexpectedly.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrMissingCharacterID indicates no character was configured.
	ErrMissingCharacterID = errors.New("transport: character ID is required")

	// ErrMissingConversationID indicates no conversation was configured.
	ErrMissingConversationID = errors.New("transport: conversation ID is required")
)

// ConnectionError represents a WebSocket connection failure.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("transport: connection error: %s", e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// AuthError indicates the backend rejected our credentials. The session
// refreshes the token and redials exactly once before treating it as fatal.
type AuthError struct {
	// StatusCode is the HTTP status from the handshake, if any.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: authentication rejected (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("transport: authentication rejected: %v", e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// BackendError is an error message the backend delivered over the wire.
type BackendError struct {
	// Message is the human-readable error from the backend.
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("transport: backend error: %s", e.Message)
}

// IsAuth returns true if the error indicates rejected credentials.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRetryable returns true if the operation can be retried.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return false
}
