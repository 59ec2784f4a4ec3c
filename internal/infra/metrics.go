package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	txCommitted  atomic.Uint64
	txReverted   atomic.Uint64
	txRejected   atomic.Uint64
	settlements  atomic.Uint64
	httpRequests atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	feedSubscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTx records one sequenced transaction with its apply latency.
func (m *Metrics) RecordTx(committed bool, latencyNs int64) {
	if committed {
		m.txCommitted.Add(1)
	} else {
		m.txReverted.Add(1)
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejected records a transaction refused before sequencing.
func (m *Metrics) RecordRejected() {
	m.txRejected.Add(1)
}

// RecordSettlements records n paid-out sales.
func (m *Metrics) RecordSettlements(n int) {
	if n > 0 {
		m.settlements.Add(uint64(n))
	}
}

// RecordRequest records one served API request.
func (m *Metrics) RecordRequest() {
	m.httpRequests.Add(1)
}

// IncrementSubscribers increments feed subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.feedSubscribers.Add(1)
}

// DecrementSubscribers decrements feed subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.feedSubscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TxCommitted     uint64    `json:"tx_committed"`
	TxReverted      uint64    `json:"tx_reverted"`
	TxRejected      uint64    `json:"tx_rejected"`
	Settlements     uint64    `json:"settlements"`
	HTTPRequests    uint64    `json:"http_requests"`
	AvgLatencyNs    int64     `json:"avg_latency_ns"`
	FeedSubscribers int32     `json:"feed_subscribers"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TxCommitted:     m.txCommitted.Load(),
		TxReverted:      m.txReverted.Load(),
		TxRejected:      m.txRejected.Load(),
		Settlements:     m.settlements.Load(),
		HTTPRequests:    m.httpRequests.Load(),
		AvgLatencyNs:    avgLatency,
		FeedSubscribers: m.feedSubscribers.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.txCommitted.Store(0)
	m.txReverted.Store(0)
	m.txRejected.Store(0)
	m.settlements.Store(0)
	m.httpRequests.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.feedSubscribers.Store(0)
}
