package liveness

import "sync/atomic"

// DefaultThreshold is the number of consecutive heartbeat failures after
// which a connection is considered dead.
const DefaultThreshold = 10

// Monitor tracks consecutive heartbeat failures for one connection.
// A single success clears the streak; Reset starts a fresh connection.
type Monitor struct {
	failures  atomic.Int32
	threshold int32
	metrics   *Metrics
}

type Metrics struct {
	rounds    atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	trips     atomic.Int32
}

func New(threshold int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{
		threshold: int32(threshold),
		metrics:   &Metrics{},
	}
}

// Success records a completed heartbeat round and clears the failure streak.
func (m *Monitor) Success() {
	m.metrics.rounds.Add(1)
	m.metrics.successes.Add(1)
	m.failures.Store(0)
}

// Failure records a failed heartbeat round and returns the streak length.
func (m *Monitor) Failure() int {
	m.metrics.rounds.Add(1)
	m.metrics.failures.Add(1)
	return int(m.failures.Add(1))
}

// Tripped reports whether the failure streak has reached the threshold.
func (m *Monitor) Tripped() bool {
	if m.failures.Load() >= m.threshold {
		m.metrics.trips.Add(1)
		return true
	}
	return false
}

// Reset clears the streak for a new connection.
func (m *Monitor) Reset() {
	m.failures.Store(0)
}

func (m *Monitor) Failures() int {
	return int(m.failures.Load())
}

func (m *Monitor) Threshold() int {
	return int(m.threshold)
}

// MetricsSnapshot is a point-in-time capture of heartbeat statistics.
type MetricsSnapshot struct {
	Rounds    int64
	Successes int64
	Failures  int64
	Trips     int32
}

func (m *Monitor) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Rounds:    m.metrics.rounds.Load(),
		Successes: m.metrics.successes.Load(),
		Failures:  m.metrics.failures.Load(),
		Trips:     m.metrics.trips.Load(),
	}
}
