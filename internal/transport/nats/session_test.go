package nats

import (
	"crypto/tls"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-live-feed/internal/transport"
)

type eventLog struct {
	mu       sync.Mutex
	connects int
	closes   int
	errs     []error
	messages []string
}

func (l *eventLog) handlers() transport.Handlers {
	return transport.Handlers{
		OnConnect: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.connects++
		},
		OnMessage: func(topic string, payload []byte) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.messages = append(l.messages, topic+"="+string(payload))
		},
		OnError: func(err error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.errs = append(l.errs, err)
		},
		OnClosed: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.closes++
		},
	}
}

func (l *eventLog) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func failingDialer(err error) Dialer {
	return func(string, ...nats.Option) (*nats.Conn, error) {
		return nil, err
	}
}

func testConfig() transport.Config {
	return transport.Config{
		BrokerURI: "nats://localhost:4222",
		ClientID:  "feed-test",
	}
}

func TestCreateRejectsInvalidURIs(t *testing.T) {
	factory := NewFactoryWithDialer(nil, failingDialer(errors.New("unused")))

	for _, uri := range []string{"tcp://localhost:4222", "nats://", "nats://[::1"} {
		t.Run(uri, func(t *testing.T) {
			cfg := testConfig()
			cfg.BrokerURI = uri
			s, err := factory.Create(cfg, transport.Handlers{})
			assert.Nil(t, s)
			assert.ErrorIs(t, err, transport.ErrCreate)
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "viewer"
	cfg.Password = "secret"
	cfg.UseTLS = true
	cfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}

	s, err := NewFactory(nil).Create(cfg, transport.Handlers{})
	require.NoError(t, err)

	opts := nats.GetDefaultOptions()
	for _, opt := range s.(*Session).options() {
		require.NoError(t, opt(&opts))
	}

	assert.Equal(t, "feed-test", opts.Name)
	assert.False(t, opts.AllowReconnect)
	assert.Equal(t, "viewer", opts.User)
	assert.Equal(t, "secret", opts.Password)
	assert.True(t, opts.Secure)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
	assert.NotNil(t, opts.DisconnectedErrCB)
	assert.NotNil(t, opts.ClosedCB)
}

func TestConnectFailureReportsError(t *testing.T) {
	events := &eventLog{}
	factory := NewFactoryWithDialer(nil, failingDialer(nats.ErrNoServers))
	s, err := factory.Create(testConfig(), events.handlers())
	require.NoError(t, err)

	s.Connect()

	assert.Eventually(t, func() bool { return events.errorCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, events.errs[0], nats.ErrNoServers)
	assert.Zero(t, events.connects)
}

func TestConnectAfterDisconnectIsSilent(t *testing.T) {
	events := &eventLog{}
	release := make(chan struct{})
	dialed := make(chan struct{})
	factory := NewFactoryWithDialer(nil, func(string, ...nats.Option) (*nats.Conn, error) {
		close(dialed)
		<-release
		return nil, nats.ErrNoServers
	})
	s, err := factory.Create(testConfig(), events.handlers())
	require.NoError(t, err)

	s.Connect()
	<-dialed
	s.Disconnect()
	close(release)

	assert.Never(t, func() bool { return events.errorCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSubscribeRequiresConnection(t *testing.T) {
	s, err := NewFactory(nil).Create(testConfig(), transport.Handlers{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Subscribe("vision/results", 0), transport.ErrNotConnected)
	assert.ErrorIs(t, s.Subscribe("vision/#/x", 0), transport.ErrInvalidTopic)
	assert.ErrorIs(t, s.Subscribe("sensors/v1.2", 0), transport.ErrInvalidTopic)
	assert.ErrorIs(t, s.Subscribe("vision/results", 5), transport.ErrInvalidQoS)
}

func TestConnectionEvents(t *testing.T) {
	events := &eventLog{}
	created, err := NewFactory(nil).Create(testConfig(), events.handlers())
	require.NoError(t, err)
	s := created.(*Session)

	s.handleMessage(&nats.Msg{Subject: "vision.cam1.results", Data: []byte(`{"x":5}`)})
	s.handleDisconnect(nil, nil)
	s.handleDisconnect(nil, errors.New("stale connection"))
	s.handleClosed(nil)

	assert.Equal(t, []string{`vision/cam1/results={"x":5}`}, events.messages)
	assert.Equal(t, 1, events.errorCount())
	assert.Equal(t, 1, events.closes)

	s.Disconnect()
	s.handleMessage(&nats.Msg{Subject: "vision.results", Data: []byte("late")})
	s.handleClosed(nil)
	assert.Len(t, events.messages, 1)
	assert.Equal(t, 1, events.closes)
}
