// Package lifecycle turns host lifecycle notifications into foreground events.
package lifecycle

import (
	"context"
	"sync"

	"mqtt-live-feed/internal/logger"
)

// AppState is the host's view of the process
type AppState int

const (
	Active AppState = iota
	Inactive
	Background
)

func (s AppState) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Monitor tracks the host state and notifies subscribers when the process
// returns to the foreground. It holds no connection logic of its own.
type Monitor struct {
	logger *logger.Logger

	mu        sync.Mutex
	current   AppState
	nextID    int
	callbacks map[int]func()
}

// NewMonitor creates a monitor in the Active state
func NewMonitor(log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Monitor{
		logger:    log.With("component", "lifecycle"),
		current:   Active,
		callbacks: make(map[int]func()),
	}
}

// Current returns the last observed state
func (m *Monitor) Current() AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Observe records a host transition. Callbacks fire only for
// inactive/background -> active.
func (m *Monitor) Observe(next AppState) {
	m.mu.Lock()
	prev := m.current
	m.current = next

	var fire []func()
	if next == Active && (prev == Inactive || prev == Background) {
		fire = make([]func(), 0, len(m.callbacks))
		for _, fn := range m.callbacks {
			fire = append(fire, fn)
		}
	}
	m.mu.Unlock()

	if prev != next {
		m.logger.Debug("host state changed", "from", prev.String(), "to", next.String())
	}
	if len(fire) > 0 {
		m.logger.Info("returned to foreground")
	}
	for _, fn := range fire {
		m.safeCall(fn)
	}
}

// OnForeground registers fn and returns a func that removes it
func (m *Monitor) OnForeground(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.callbacks[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks, id)
	}
}

// Run feeds states from source into the monitor until ctx is done or source
// is closed
func (m *Monitor) Run(ctx context.Context, source <-chan AppState) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-source:
			if !ok {
				return nil
			}
			m.Observe(s)
		}
	}
}

func (m *Monitor) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("foreground callback panicked", "panic", r)
		}
	}()
	fn()
}
