package connection

import (
	"sync"

	"mqtt-live-feed/internal/transport"
)

// fakeFactory records every session it creates and counts how many are live
type fakeFactory struct {
	mu           sync.Mutex
	sessions     []*fakeSession
	createErr    error
	subscribeErr error
	autoConnect  bool
	active       int
	maxActive    int
}

func newFakeFactory(autoConnect bool) *fakeFactory {
	return &fakeFactory{autoConnect: autoConnect}
}

func (f *fakeFactory) Create(cfg transport.Config, h transport.Handlers) (transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		f.sessions = append(f.sessions, nil)
		return nil, f.createErr
	}
	s := &fakeSession{factory: f, cfg: cfg, handlers: h}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) setCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// creates returns how many times Create was called
func (f *fakeFactory) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// last returns the most recent session, nil if none or if Create failed
func (f *fakeFactory) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeFactory) maxActiveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// fakeSession is a transport.Session driven by the test through its handlers
type fakeSession struct {
	factory  *fakeFactory
	cfg      transport.Config
	handlers transport.Handlers

	mu            sync.Mutex
	connected     bool
	disconnected  bool
	subscriptions []string
	qos           byte
}

func (s *fakeSession) Connect() {
	s.factory.mu.Lock()
	s.factory.active++
	if s.factory.active > s.factory.maxActive {
		s.factory.maxActive = s.factory.active
	}
	auto := s.factory.autoConnect
	s.factory.mu.Unlock()

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	if auto {
		s.handlers.EmitConnect()
	}
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if wasConnected {
		s.factory.mu.Lock()
		s.factory.active--
		s.factory.mu.Unlock()
	}
}

func (s *fakeSession) Subscribe(topic string, qos byte) error {
	s.factory.mu.Lock()
	err := s.factory.subscribeErr
	s.factory.mu.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append(s.subscriptions, topic)
	s.qos = qos
	return nil
}

func (s *fakeSession) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *fakeSession) subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscriptions...)
}

// stateRecorder collects every transition reported to an observer
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) contains(s State) bool {
	for _, st := range r.all() {
		if st == s {
			return true
		}
	}
	return false
}
