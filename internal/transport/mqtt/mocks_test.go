package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements pahomqtt.Token for testing
type MockToken struct {
	err      error
	timedOut bool
	done     chan struct{}
}

// NewMockToken returns a completed token carrying err
func NewMockToken(err error) *MockToken {
	t := &MockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *MockToken) Wait() bool                       { return !t.timedOut }
func (t *MockToken) WaitTimeout(_ time.Duration) bool { return !t.timedOut }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockMessage implements pahomqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// MockClient implements pahomqtt.Client for testing
type MockClient struct {
	opts *pahomqtt.ClientOptions

	mu           sync.Mutex
	connected    bool
	connectToken *MockToken
	subscribeTok *MockToken
	subscribed   map[string]byte
	handler      pahomqtt.MessageHandler
	disconnects  int
}

func NewMockClient(opts *pahomqtt.ClientOptions) *MockClient {
	return &MockClient{
		opts:         opts,
		connectToken: NewMockToken(nil),
		subscribeTok: NewMockToken(nil),
		subscribed:   make(map[string]byte),
	}
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) IsConnectionOpen() bool { return m.IsConnected() }

func (m *MockClient) Connect() pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectToken
}

func (m *MockClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
}

func (m *MockClient) Publish(_ string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeTok.err == nil && !m.subscribeTok.timedOut {
		m.subscribed[topic] = qos
		m.handler = callback
	}
	return m.subscribeTok
}

func (m *MockClient) SubscribeMultiple(_ map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Unsubscribe(_ ...string) pahomqtt.Token       { return NewMockToken(nil) }
func (m *MockClient) AddRoute(_ string, _ pahomqtt.MessageHandler) {}
func (m *MockClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// simulateConnect marks the client connected and fires the OnConnect handler
func (m *MockClient) simulateConnect() {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	m.opts.OnConnect(m)
}

// simulateConnectionLost fires the ConnectionLost handler
func (m *MockClient) simulateConnectionLost(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.opts.OnConnectionLost(m, err)
}

// deliver invokes the subscription callback as paho's router would
func (m *MockClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(m, &MockMessage{topic: topic, payload: payload})
	}
}
