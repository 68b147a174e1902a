package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)

	// registering twice on the same registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)

	// unregistered metrics still work
	m, err = NewMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.IncConnectAttempts() })
}

func TestMetricsSetConnectionState(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetConnectionState("connecting")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionState.WithLabelValues("connecting")))

	m.SetConnectionState("connected")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.connectionState.WithLabelValues("connecting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionState.WithLabelValues("connected")))
}

func TestMetricsIncrementCounters(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncConnectAttempts()
	m.IncConnectAttempts()
	m.IncReconnects()
	m.IncTransportErrors()
	m.IncMessagesTotal("structured")
	m.IncMessagesTotal("structured")
	m.IncMessagesTotal("text")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.connectAttempts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transportErrors))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesTotal.WithLabelValues("structured")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesTotal.WithLabelValues("text")))
}

type fakeSource struct {
	uptime time.Duration
	rate   float64
	depth  int
}

func (f fakeSource) Uptime() time.Duration  { return f.uptime }
func (f fakeSource) CalculateRate() float64 { return f.rate }
func (f fakeSource) BufferDepth() int       { return f.depth }

func TestMetricsCollector(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	collector := NewMetricsCollector(m, fakeSource{uptime: 90 * time.Second, rate: 2.5, depth: 7}, 10*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.bufferDepth) == 7
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(90), testutil.ToFloat64(m.uptime))
	assert.Equal(t, 2.5, testutil.ToFloat64(m.messageRate))
}

func TestMetricsCollectorStopIsIdempotent(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	collector := NewMetricsCollector(m, fakeSource{}, 0)
	assert.Equal(t, 15*time.Second, collector.interval)

	collector.Start()
	collector.Stop()
	collector.Stop()
}
