// Package nats implements transport sessions on top of core NATS. Topics use
// MQTT syntax at the boundary and are converted to NATS subjects internally.
package nats

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/transport"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultFlushTimeout   = 5 * time.Second
)

var supportedSchemes = map[string]bool{
	"nats": true, "tls": true, "ws": true, "wss": true,
}

// Dialer opens a NATS connection. Tests replace it.
type Dialer func(url string, opts ...nats.Option) (*nats.Conn, error)

// Factory creates NATS-backed sessions
type Factory struct {
	logger *logger.Logger
	dial   Dialer
}

// NewFactory creates a session factory that dials real NATS servers
func NewFactory(log *logger.Logger) *Factory {
	return NewFactoryWithDialer(log, nats.Connect)
}

// NewFactoryWithDialer creates a session factory with a custom dialer (for testing)
func NewFactoryWithDialer(log *logger.Logger, dial Dialer) *Factory {
	if log == nil {
		log = logger.NewNop()
	}
	return &Factory{
		logger: log.With("transport", "nats"),
		dial:   dial,
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

	return &Session{
		cfg:      cfg,
		handlers: h,
		dial:     f.dial,
		logger:   f.logger.With("server", cfg.BrokerURI),
	}, nil
}

// Session is a single NATS connection. Client-side reconnects are disabled;
// the connection manager owns retry.
type Session struct {
	cfg      transport.Config
	handlers transport.Handlers
	dial     Dialer
	logger   *logger.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	closed bool
}

func (s *Session) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(s.cfg.ClientID),
		nats.Timeout(defaultConnectTimeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(s.handleDisconnect),
		nats.ClosedHandler(s.handleClosed),
	}

	if s.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(s.cfg.Username, s.cfg.Password))
	}

	if s.cfg.UseTLS && s.cfg.TLS != nil {
		opts = append(opts, nats.Secure(s.cfg.TLS))
	}

	return opts
}

// Connect dials in the background and reports the outcome through the handlers
func (s *Session) Connect() {
	go func() {
		s.logger.Debug("connecting")
		conn, err := s.dial(s.cfg.BrokerURI, s.options()...)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			s.mu.Unlock()
			s.handlers.EmitError(fmt.Errorf("connect failed: %w", err))
			return
		}
		s.conn = conn
		s.mu.Unlock()

		s.logger.Debug("connected", "url", conn.ConnectedUrl())
		s.handlers.EmitConnect()
	}()
}

// Disconnect closes the connection; no further events are emitted afterwards
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		s.logger.Debug("disconnecting")
		conn.Close()
	}
}

// Subscribe subscribes to the subject derived from topic. Core NATS delivers
// at most once, so qos is only validated.
func (s *Session) Subscribe(topic string, qos byte) error {
	if err := transport.ValidateSubjectFilter(topic); err != nil {
		return err
	}
	if err := transport.ValidateQoS(qos); err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return transport.ErrNotConnected
	}

	subject := ToNATSSubject(topic)
	if _, err := conn.Subscribe(subject, s.handleMessage); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrSubscribeFailed, err)
	}
	if err := conn.FlushTimeout(defaultFlushTimeout); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrSubscribeFailed, err)
	}

	s.logger.Debug("subscribed to subject", "subject", subject)
	return nil
}

func (s *Session) handleMessage(msg *nats.Msg) {
	if s.isClosed() {
		return
	}
	s.handlers.EmitMessage(ToMQTTTopic(msg.Subject), msg.Data)
}

func (s *Session) handleDisconnect(_ *nats.Conn, err error) {
	if s.isClosed() || err == nil {
		return
	}
	s.handlers.EmitError(fmt.Errorf("connection lost: %w", err))
}

func (s *Session) handleClosed(_ *nats.Conn) {
	if s.isClosed() {
		return
	}
	s.handlers.EmitClosed()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
