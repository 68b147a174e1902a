package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the feed
type Metrics struct {
	connectionState *prometheus.GaugeVec
	connectAttempts prometheus.Counter
	reconnects      prometheus.Counter
	transportErrors prometheus.Counter
	messagesTotal   *prometheus.CounterVec
	bufferDepth     prometheus.Gauge
	uptime          prometheus.Gauge
	messageRate     prometheus.Gauge
	mu              sync.Mutex
	lastStateLabel  string
}

// connection state labels, one gauge series each
var stateLabels = []string{"disconnected", "connecting", "connected", "failed"}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feed_connection_state",
			Help: "Current connection state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_connect_attempts_total",
			Help: "Total number of session connect attempts",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Total number of scheduled reconnect attempts",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_transport_errors_total",
			Help: "Total number of transport errors reported by the session",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_messages_total",
			Help: "Total number of messages by outcome",
		}, []string{"status"}),
		bufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_buffer_depth",
			Help: "Number of messages currently held in the history buffer",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_uptime_seconds",
			Help: "Seconds since the feed started",
		}),
		messageRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_message_rate",
			Help: "Average received messages per second since start",
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.connectionState,
			m.connectAttempts,
			m.reconnects,
			m.transportErrors,
			m.messagesTotal,
			m.bufferDepth,
			m.uptime,
			m.messageRate,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	for _, l := range stateLabels {
		m.connectionState.WithLabelValues(l).Set(0)
	}
	return m, nil
}

// SetConnectionState marks label as the only active connection state
func (m *Metrics) SetConnectionState(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastStateLabel != "" {
		m.connectionState.WithLabelValues(m.lastStateLabel).Set(0)
	}
	m.connectionState.WithLabelValues(label).Set(1)
	m.lastStateLabel = label
}

func (m *Metrics) IncConnectAttempts() {
	m.connectAttempts.Inc()
}

func (m *Metrics) IncReconnects() {
	m.reconnects.Inc()
}

func (m *Metrics) IncTransportErrors() {
	m.transportErrors.Inc()
}

// IncMessagesTotal counts a message outcome: structured, text, duplicate or dropped
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetBufferDepth(depth float64) {
	m.bufferDepth.Set(depth)
}

func (m *Metrics) SetUptime(d time.Duration) {
	m.uptime.Set(d.Seconds())
}

func (m *Metrics) SetMessageRate(rate float64) {
	m.messageRate.Set(rate)
}
