package metrics

import (
	"sync"
	"time"
)

// Source supplies the values the collector publishes on every tick
type Source interface {
	Uptime() time.Duration
	CalculateRate() float64
	BufferDepth() int
}

// MetricsCollector periodically copies gauge values from a Source
type MetricsCollector struct {
	metrics  *Metrics
	source   Source
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a collector; call Start to begin sampling
func NewMetricsCollector(m *Metrics, source Source, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start samples once immediately and then on every interval
func (c *MetricsCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Collect()
		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stop:
				return
			}
		}
	}()
}

// Collect copies the current source values into the gauges
func (c *MetricsCollector) Collect() {
	c.metrics.SetUptime(c.source.Uptime())
	c.metrics.SetMessageRate(c.source.CalculateRate())
	c.metrics.SetBufferDepth(float64(c.source.BufferDepth()))
}

// Stop ends sampling and waits for the sampling goroutine
func (c *MetricsCollector) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
