// Package transport defines the contract between the connection manager and the
// publish/subscribe client libraries that carry the actual session.
package transport

import (
	"crypto/tls"
)

// Config carries what a client library needs to build a session
type Config struct {
	BrokerURI string
	ClientID  string
	Username  string
	Password  string
	UseTLS    bool
	TLS       *tls.Config
}

// Handlers receives session events. Any of them may be invoked from a goroutine
// owned by the client library.
type Handlers struct {
	OnConnect func()
	OnMessage func(topic string, payload []byte)
	OnError   func(err error)
	OnClosed  func()
}

// Session is a single live connection to a broker
type Session interface {
	// Connect starts an asynchronous connect attempt; the outcome is reported
	// through Handlers.OnConnect or Handlers.OnError.
	Connect()

	// Disconnect closes the session. It may block while pending work drains.
	Disconnect()

	// Subscribe subscribes the session to a topic filter
	Subscribe(topic string, qos byte) error
}

// Factory creates sessions for a specific client library
type Factory interface {
	Create(cfg Config, h Handlers) (Session, error)
}

// FactoryFunc adapts a function to the Factory interface
type FactoryFunc func(cfg Config, h Handlers) (Session, error)

// Create implements Factory
func (f FactoryFunc) Create(cfg Config, h Handlers) (Session, error) {
	return f(cfg, h)
}

// EmitConnect invokes OnConnect if set
func (h Handlers) EmitConnect() {
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

// EmitMessage invokes OnMessage if set
func (h Handlers) EmitMessage(topic string, payload []byte) {
	if h.OnMessage != nil {
		h.OnMessage(topic, payload)
	}
}

// EmitError invokes OnError if set
func (h Handlers) EmitError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// EmitClosed invokes OnClosed if set
func (h Handlers) EmitClosed() {
	if h.OnClosed != nil {
		h.OnClosed()
	}
}
