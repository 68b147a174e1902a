package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"mqtt-live-feed/internal/history"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/message"
	"mqtt-live-feed/internal/metrics"
	"mqtt-live-feed/internal/stats"
	"mqtt-live-feed/internal/transport"
)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger; the default discards everything
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(mc *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mc
	}
}

// WithStats enables statistics collection
func WithStats(sc *stats.StatsCollector) Option {
	return func(m *Manager) {
		m.stats = sc
	}
}

// WithClock replaces time.Now for message timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the random message ID source
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// Manager keeps at most one transport session alive for the configured topic.
//
// All state transitions happen on a single loop goroutine that consumes
// queued tasks in order. Transport callbacks, retry timers and the public
// methods only enqueue work, so none of them block on each other and
// observers may call back into the Manager.
type Manager struct {
	cfg       Config
	transport transport.Config
	factory   transport.Factory
	buffer    *history.Buffer
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.StatsCollector
	now       func() time.Time
	newID     func() string

	queue *taskQueue
	done  chan struct{}

	mu         sync.RWMutex
	state      State
	running    bool
	closed     bool
	epoch      uint64
	retryTimer *time.Timer

	obsMu          sync.RWMutex
	nextObserverID int
	stateObservers map[int]func(State)
	msgObservers   map[int]func(message.InboundMessage)

	// owned by the loop goroutine
	session    transport.Session
	sessionGen uint64
	failures   int
}

// NewManager validates cfg and starts the manager loop. The manager stays
// idle until Start is called.
func NewManager(cfg Config, factory transport.Factory, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: transport factory is required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:            cfg,
		transport:      cfg.transportConfig(),
		factory:        factory,
		buffer:         history.NewBuffer(cfg.BufferCapacity),
		logger:         logger.NewNop(),
		now:            time.Now,
		queue:          newTaskQueue(),
		done:           make(chan struct{}),
		state:          StateDisconnected,
		stateObservers: make(map[int]func(State)),
		msgObservers:   make(map[int]func(message.InboundMessage)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "connection", "broker", cfg.BrokerURI, "topic", cfg.Topic)

	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.SetConnectionState(StateDisconnected.Kind.String())
	})

	go m.run()
	return m, nil
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		task, ok := m.queue.pop()
		if !ok {
			return
		}
		task()
	}
}

func (m *Manager) enqueue(task func()) {
	if !m.queue.push(task) {
		m.logger.Debug("manager closed, dropping task")
	}
}

// Start begins connecting. It does not block; progress is reported through
// OnStateChange.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.running = true
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	m.logger.Info("starting connection manager")
	m.enqueue(func() {
		m.failures = 0
		m.connect(epoch)
	})
	return nil
}

// Stop tears down the session and cancels any pending reconnect. It is safe
// to call in any state and more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.epoch++
	m.cancelRetryLocked()
	m.mu.Unlock()

	if wasRunning {
		m.logger.Info("stopping connection manager")
	}
	m.enqueue(func() {
		m.teardownSession()
		m.failures = 0
		m.setState(StateDisconnected)
	})
}

// Close stops the manager and waits for its loop to exit. It must not be
// called from an observer.
func (m *Manager) Close() {
	m.Stop()

	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()

	if !alreadyClosed {
		m.queue.close()
	}
	<-m.done
}

// EnsureConnected reconnects immediately when the manager is started but
// the session is down. Connected and Connecting are left alone.
func (m *Manager) EnsureConnected() {
	m.mu.RLock()
	running := m.running
	epoch := m.epoch
	m.mu.RUnlock()
	if !running {
		return
	}

	m.enqueue(func() {
		if !m.isCurrent(epoch) {
			return
		}
		switch m.CurrentState().Kind {
		case Connected, Connecting:
			return
		}

		m.mu.Lock()
		m.cancelRetryLocked()
		m.mu.Unlock()

		m.logger.Info("session down, reconnecting now")
		m.connect(epoch)
	})
}

// CurrentState returns the latest state
func (m *Manager) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange registers an observer called on every transition, in order,
// from the manager loop. The returned func removes it.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextObserverID
	m.nextObserverID++
	m.stateObservers[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.stateObservers, id)
	}
}

// OnMessage registers an observer called for every message added to the
// history. The returned func removes it.
func (m *Manager) OnMessage(fn func(message.InboundMessage)) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextObserverID
	m.nextObserverID++
	m.msgObservers[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.msgObservers, id)
	}
}

// Snapshot returns the message history, newest first
func (m *Manager) Snapshot() []message.InboundMessage {
	return m.buffer.Snapshot()
}

// BufferDepth returns the number of messages in the history
func (m *Manager) BufferDepth() int {
	return m.buffer.Len()
}

// Config returns the configuration the manager was built with
func (m *Manager) Config() Config {
	return m.cfg
}

// connect replaces any current session with a fresh one
func (m *Manager) connect(epoch uint64) {
	if !m.isCurrent(epoch) {
		return
	}

	m.teardownSession()
	m.setState(StateConnecting)

	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.IncConnectAttempts()
	})
	if m.stats != nil {
		m.stats.RecordConnectAttempt()
	}

	m.sessionGen++
	gen := m.sessionGen

	session, err := m.factory.Create(m.transport, m.handlersFor(epoch, gen))
	if err != nil {
		// a session that cannot be built will not succeed on retry
		m.logger.Error("failed to create session", "error", err)
		m.setState(StateFailed(errorReason(err)))
		return
	}

	m.session = session
	m.logger.Debug("connecting session", "generation", gen)
	session.Connect()
}

// handlersFor binds transport callbacks to one session generation
func (m *Manager) handlersFor(epoch, gen uint64) transport.Handlers {
	return transport.Handlers{
		OnConnect: func() {
			m.enqueue(func() { m.handleConnect(epoch, gen) })
		},
		OnMessage: func(topic string, payload []byte) {
			msg := m.newMessage(topic, payload)
			m.enqueue(func() { m.handleMessage(epoch, gen, msg) })
		},
		OnError: func(err error) {
			m.enqueue(func() { m.handleError(epoch, gen, err) })
		},
		OnClosed: func() {
			m.enqueue(func() { m.handleClosed(epoch, gen) })
		},
	}
}

func (m *Manager) newMessage(topic string, payload []byte) message.InboundMessage {
	if m.newID != nil {
		return message.NewWithID(m.newID(), topic, payload, m.now())
	}
	return message.New(topic, payload, m.now())
}

// isLive reports whether an event belongs to the current session
func (m *Manager) isLive(epoch, gen uint64) bool {
	return m.session != nil && gen == m.sessionGen && m.isCurrent(epoch)
}

func (m *Manager) handleConnect(epoch, gen uint64) {
	if !m.isLive(epoch, gen) {
		return
	}

	session := m.session
	topic, qos := m.cfg.Topic, m.cfg.QoS
	m.logger.Debug("session connected, subscribing", "qos", qos)

	// Subscribe waits for the broker ack, keep it off the loop
	go func() {
		err := session.Subscribe(topic, qos)
		m.enqueue(func() { m.handleSubscribed(epoch, gen, err) })
	}()
}

func (m *Manager) handleSubscribed(epoch, gen uint64, err error) {
	if !m.isLive(epoch, gen) {
		return
	}
	if err != nil {
		m.handleError(epoch, gen, err)
		return
	}

	m.failures = 0
	m.logger.Info("subscribed", "qos", m.cfg.QoS)
	m.setState(StateConnected)
}

func (m *Manager) handleMessage(epoch, gen uint64, msg message.InboundMessage) {
	if !m.isLive(epoch, gen) {
		m.recordMessage("dropped")
		if m.stats != nil {
			m.stats.RecordDropped()
		}
		return
	}

	if m.stats != nil {
		m.stats.RecordReceived()
	}
	if !transport.MatchTopic(m.cfg.Topic, msg.Topic) {
		m.logger.Debug("message outside subscription ignored", "messageTopic", msg.Topic)
		m.recordMessage("unmatched")
		if m.stats != nil {
			m.stats.RecordDropped()
		}
		return
	}
	if !m.buffer.Push(msg) {
		m.logger.Debug("duplicate message ignored", "id", msg.ID)
		m.recordMessage("duplicate")
		if m.stats != nil {
			m.stats.RecordDropped()
		}
		return
	}

	structured := msg.Body.IsStructured()
	m.recordMessage(string(msg.Body.Kind))
	depth := m.buffer.Len()
	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.SetBufferDepth(float64(depth))
	})
	if m.stats != nil {
		m.stats.RecordBuffered(structured)
		m.stats.SetBufferDepth(depth)
	}

	m.logger.Debug("message received", "id", msg.ID, "structured", structured, "size", len(msg.RawPayload))
	m.notifyMessage(msg)
}

func (m *Manager) handleError(epoch, gen uint64, err error) {
	if !m.isLive(epoch, gen) {
		return
	}

	m.logger.Warn("transport error", "error", err)
	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.IncTransportErrors()
	})
	if m.stats != nil {
		m.stats.RecordError()
	}

	m.teardownSession()
	m.setState(StateFailed(errorReason(err)))
	m.scheduleReconnect(epoch)
}

func (m *Manager) handleClosed(epoch, gen uint64) {
	if !m.isLive(epoch, gen) {
		return
	}

	m.logger.Warn("session closed by broker")
	m.teardownSession()
	m.setState(StateDisconnected)
	m.scheduleReconnect(epoch)
}

// teardownSession disconnects the current session. Events it emits later
// carry a stale generation and are ignored.
func (m *Manager) teardownSession() {
	if m.session == nil {
		return
	}
	session := m.session
	m.session = nil
	m.sessionGen++
	session.Disconnect()
}

// scheduleReconnect arms a retry for the epoch of the event that lost the
// session. A Stop or Start since then makes it a no-op.
func (m *Manager) scheduleReconnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.epoch != epoch {
		return
	}
	delay := m.nextDelay()
	m.failures++
	m.cancelRetryLocked()
	m.retryTimer = time.AfterFunc(delay, func() {
		m.enqueue(func() { m.retry(epoch) })
	})

	m.logger.Info("scheduling reconnect", "delay", delay.String())
	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.IncReconnects()
	})
	if m.stats != nil {
		m.stats.RecordReconnect()
	}
}

func (m *Manager) retry(epoch uint64) {
	m.mu.Lock()
	if !m.running || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.mu.Unlock()

	m.connect(epoch)
}

// nextDelay doubles the base delay per consecutive failure when a maximum
// above the base is configured
func (m *Manager) nextDelay() time.Duration {
	delay := m.cfg.ReconnectDelay
	if m.cfg.MaxReconnectDelay <= delay {
		return delay
	}
	for i := 0; i < m.failures && delay < m.cfg.MaxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > m.cfg.MaxReconnectDelay {
		delay = m.cfg.MaxReconnectDelay
	}
	return delay
}

// cancelRetryLocked stops a pending retry timer. m.mu must be held.
func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) isCurrent(epoch uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running && m.epoch == epoch
}

// setState records a transition and notifies observers. Repeating the
// current state is not a transition.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	if prev == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.logger.Info("connection state changed", "from", prev.String(), "to", s.String())
	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.SetConnectionState(s.Kind.String())
	})

	m.obsMu.RLock()
	observers := make([]func(State), 0, len(m.stateObservers))
	for _, fn := range m.stateObservers {
		observers = append(observers, fn)
	}
	m.obsMu.RUnlock()

	for _, fn := range observers {
		m.safeNotify(func() { fn(s) })
	}
}

func (m *Manager) notifyMessage(msg message.InboundMessage) {
	m.obsMu.RLock()
	observers := make([]func(message.InboundMessage), 0, len(m.msgObservers))
	for _, fn := range m.msgObservers {
		observers = append(observers, fn)
	}
	m.obsMu.RUnlock()

	for _, fn := range observers {
		m.safeNotify(func() { fn(msg) })
	}
}

// safeNotify keeps a panicking observer from killing the loop
func (m *Manager) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("observer panicked", "panic", r)
		}
	}()
	fn()
}

func (m *Manager) recordMessage(status string) {
	m.safeMetricsUpdate(func(mc *metrics.Metrics) {
		mc.IncMessagesTotal(status)
	})
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (m *Manager) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}

// errorReason strips the create error wrapper so the status text stays short
func errorReason(err error) string {
	var ce *transport.CreateError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}
