package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector manages feed-wide statistics. Counters are updated with
// atomic operations and may be read at any time.
type StatsCollector struct {
	StartTime         time.Time
	MessagesReceived  uint64
	MessagesBuffered  uint64
	MessagesDropped   uint64
	DecodeFallbacks   uint64
	ConnectAttempts   uint64
	Reconnects        uint64
	Errors            uint64
	bufferDepth       atomic.Int64
	lastMessageUnixNs atomic.Int64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime: time.Now(),
	}
}

// RecordReceived counts a message handed over by the transport
func (s *StatsCollector) RecordReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
	s.lastMessageUnixNs.Store(time.Now().UnixNano())
}

// RecordBuffered counts a message stored in history and whether it decoded
func (s *StatsCollector) RecordBuffered(structured bool) {
	atomic.AddUint64(&s.MessagesBuffered, 1)
	if !structured {
		atomic.AddUint64(&s.DecodeFallbacks, 1)
	}
}

// RecordDropped counts a message discarded (after stop or as a duplicate)
func (s *StatsCollector) RecordDropped() {
	atomic.AddUint64(&s.MessagesDropped, 1)
}

func (s *StatsCollector) RecordConnectAttempt() {
	atomic.AddUint64(&s.ConnectAttempts, 1)
}

func (s *StatsCollector) RecordReconnect() {
	atomic.AddUint64(&s.Reconnects, 1)
}

func (s *StatsCollector) RecordError() {
	atomic.AddUint64(&s.Errors, 1)
}

// SetBufferDepth records the current history length
func (s *StatsCollector) SetBufferDepth(n int) {
	s.bufferDepth.Store(int64(n))
}

// BufferDepth returns the last recorded history length
func (s *StatsCollector) BufferDepth() int {
	return int(s.bufferDepth.Load())
}

// Uptime returns the time since the collector was created
func (s *StatsCollector) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// LastMessage returns when the last message arrived, zero if none has
func (s *StatsCollector) LastMessage() time.Time {
	ns := s.lastMessageUnixNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"uptime":            s.Uptime().String(),
		"messages_received": atomic.LoadUint64(&s.MessagesReceived),
		"messages_buffered": atomic.LoadUint64(&s.MessagesBuffered),
		"messages_dropped":  atomic.LoadUint64(&s.MessagesDropped),
		"decode_fallbacks":  atomic.LoadUint64(&s.DecodeFallbacks),
		"connect_attempts":  atomic.LoadUint64(&s.ConnectAttempts),
		"reconnects":        atomic.LoadUint64(&s.Reconnects),
		"errors":            atomic.LoadUint64(&s.Errors),
		"buffer_depth":      s.BufferDepth(),
	}
	if last := s.LastMessage(); !last.IsZero() {
		stats["last_message"] = last
	}
	return stats
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates the average received messages per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := s.Uptime().Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesReceived)) / uptime
}
