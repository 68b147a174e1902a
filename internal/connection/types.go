// Package connection owns the single logical broker session: it connects,
// subscribes, retries after loss and exposes the connection state.
package connection

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"mqtt-live-feed/internal/history"
	"mqtt-live-feed/internal/transport"
)

// DefaultReconnectDelay is the fixed delay before a retry when none is configured
const DefaultReconnectDelay = 5 * time.Second

// Errors reported to callers that misuse the manager.
var (
	// ErrAlreadyStarted is returned by Start when the manager is already running
	ErrAlreadyStarted = errors.New("connection: already started")

	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("connection: manager closed")

	// ErrInvalidConfig wraps every configuration validation failure
	ErrInvalidConfig = errors.New("connection: invalid config")
)

// StateKind enumerates the connection states
type StateKind int

const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Failed
)

// String returns the lowercase name used for metrics labels
func (k StateKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the connection state; Reason is set only for Failed
type State struct {
	Kind   StateKind
	Reason string
}

// Status text shown to users
func (s State) String() string {
	switch s.Kind {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Failed:
		if s.Reason == "" {
			return "Failed"
		}
		return "Failed: " + s.Reason
	default:
		return "Unknown"
	}
}

// StateDisconnected, StateConnecting and StateConnected are the reason-less states.
var (
	StateDisconnected = State{Kind: Disconnected}
	StateConnecting   = State{Kind: Connecting}
	StateConnected    = State{Kind: Connected}
)

// StateFailed builds a Failed state carrying reason
func StateFailed(reason string) State {
	return State{Kind: Failed, Reason: reason}
}

// Credentials authenticate the session against the broker
type Credentials struct {
	Username string
	Password string
}

// Config is the immutable description of the session a Manager maintains
type Config struct {
	BrokerURI   string
	ClientID    string
	Topic       string
	QoS         byte
	Credentials *Credentials
	UseTLS      bool
	TLS         *tls.Config

	// ReconnectDelay is the wait before a retry, DefaultReconnectDelay if zero.
	ReconnectDelay time.Duration
	// MaxReconnectDelay enables doubling backoff when greater than ReconnectDelay.
	MaxReconnectDelay time.Duration
	// BufferCapacity bounds the message history, history.DefaultCapacity if zero.
	BufferCapacity int
}

// withDefaults fills zero values
func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = history.DefaultCapacity
	}
	return c
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.BrokerURI == "" {
		return fmt.Errorf("%w: broker uri is required", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if err := transport.ValidateTopicFilter(c.Topic); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := transport.ValidateQoS(c.QoS); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxReconnectDelay < 0 {
		return fmt.Errorf("%w: max reconnect delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// transportConfig converts to what the client libraries need
func (c Config) transportConfig() transport.Config {
	tc := transport.Config{
		BrokerURI: c.BrokerURI,
		ClientID:  c.ClientID,
		UseTLS:    c.UseTLS,
		TLS:       c.TLS,
	}
	if c.Credentials != nil {
		tc.Username = c.Credentials.Username
		tc.Password = c.Credentials.Password
	}
	return tc
}
