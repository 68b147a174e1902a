// Package mqtt implements transport sessions on top of the Eclipse Paho client.
package mqtt

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/transport"
)

const (
	// defaultConnectTimeout bounds a single connect attempt
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout bounds waiting for SUBACK
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time in milliseconds to let pending work finish
	defaultDisconnectQuiesce = 250

	defaultKeepAlive = 30 * time.Second
)

// schemes paho knows how to dial
var supportedSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

// ClientFactory builds the underlying paho client. Tests replace it.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Factory creates paho-backed sessions
type Factory struct {
	logger    *logger.Logger
	newClient ClientFactory
}

// NewFactory creates a session factory using the real paho client
func NewFactory(log *logger.Logger) *Factory {
	return NewFactoryWithClient(log, pahomqtt.NewClient)
}

// NewFactoryWithClient creates a session factory with a custom client constructor (for testing)
func NewFactoryWithClient(log *logger.Logger, newClient ClientFactory) *Factory {
	if log == nil {
		log = logger.NewNop()
	}
	return &Factory{
		logger:    log.With("transport", "mqtt"),
		newClient: newClient,
	}
}

// Create implements transport.Factory
func (f *Factory) Create(cfg transport.Config, h transport.Handlers) (transport.Session, error) {
	u, err := url.Parse(cfg.BrokerURI)
	if err != nil {
		return nil, transport.NewCreateError(cfg.BrokerURI, err)
	}
	if !supportedSchemes[u.Scheme] {
		return nil, transport.NewCreateError(cfg.BrokerURI, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, transport.NewCreateError(cfg.BrokerURI, errors.New("missing host"))
	}

	s := &Session{
		handlers: h,
		logger:   f.logger.With("broker", cfg.BrokerURI),
	}
	s.client = f.newClient(s.buildClientOptions(cfg))
	return s, nil
}

// Session is a single paho client. Paho's own reconnect logic is disabled so
// that the connection manager alone decides when to retry.
type Session struct {
	client   pahomqtt.Client
	handlers transport.Handlers
	logger   *logger.Logger

	mu     sync.Mutex
	closed bool
}

// buildClientOptions creates paho options for one session
func (s *Session) buildClientOptions(cfg transport.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURI).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive).
		SetOrderMatters(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.UseTLS && cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})

	return opts
}

// Connect starts an asynchronous connect; a failed attempt is reported as an error event
func (s *Session) Connect() {
	s.logger.Debug("connecting")
	token := s.client.Connect()

	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			if s.isClosed() {
				return
			}
			s.logger.Debug("connect attempt failed", "error", err)
			s.handlers.EmitError(fmt.Errorf("connect failed: %w", err))
		}
	}()
}

// Disconnect closes the client; no further events are emitted afterwards
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("disconnecting")
	s.client.Disconnect(defaultDisconnectQuiesce)
}

// Subscribe subscribes to topic and forwards every publish to OnMessage
func (s *Session) Subscribe(topic string, qos byte) error {
	if err := transport.ValidateTopicFilter(topic); err != nil {
		return err
	}
	if err := transport.ValidateQoS(qos); err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return transport.ErrNotConnected
	}

	token := s.client.Subscribe(topic, qos, s.handleMessage)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", transport.ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrSubscribeFailed, err)
	}

	s.logger.Debug("subscribed to topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Session) handleConnect() {
	if s.isClosed() {
		return
	}
	s.handlers.EmitConnect()
}

// handleConnectionLost reports a clean close from the broker as closed and
// anything else as an error
func (s *Session) handleConnectionLost(err error) {
	if s.isClosed() {
		return
	}
	if err == nil || errors.Is(err, io.EOF) {
		s.handlers.EmitClosed()
		return
	}
	s.handlers.EmitError(fmt.Errorf("connection lost: %w", err))
}

func (s *Session) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	if s.isClosed() {
		return
	}
	s.handlers.EmitMessage(msg.Topic(), msg.Payload())
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
