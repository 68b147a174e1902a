package transport

import (
	"errors"
	"fmt"
)

// Errors shared by the transport implementations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCreate is wrapped by every CreateError
	ErrCreate = errors.New("transport: session could not be created")

	// ErrNotConnected is returned when an operation needs a live session
	ErrNotConnected = errors.New("transport: session not connected")

	// ErrSubscribeFailed is returned when the broker rejects or times out a subscription
	ErrSubscribeFailed = errors.New("transport: subscribe failed")

	// ErrInvalidTopic is returned for malformed topic filters
	ErrInvalidTopic = errors.New("transport: invalid topic")

	// ErrInvalidQoS is returned when QoS is not 0, 1 or 2
	ErrInvalidQoS = errors.New("transport: invalid QoS level (must be 0, 1, or 2)")
)

// CreateError reports that a session object could not be constructed, for
// example because the broker URI is malformed. It is not retried automatically.
type CreateError struct {
	BrokerURI string
	Err       error
}

// NewCreateError wraps err as a CreateError for brokerURI
func NewCreateError(brokerURI string, err error) *CreateError {
	return &CreateError{BrokerURI: brokerURI, Err: err}
}

// Error implements the error interface
func (e *CreateError) Error() string {
	return fmt.Sprintf("create session for %s: %v", e.BrokerURI, e.Err)
}

// Unwrap exposes both ErrCreate and the underlying cause
func (e *CreateError) Unwrap() []error {
	return []error{ErrCreate, e.Err}
}
