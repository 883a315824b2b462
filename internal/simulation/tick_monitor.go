package simulation

import (
	"sync"
	"time"

	"minigolf/engine/internal/physics"
)

// TickMetricsSnapshot summarises tick timing and what the ball touched.
type TickMetricsSnapshot struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Bounces  int
	Captures int
}

// AverageHz is the tick rate the loop could sustain at the average tick cost.
func (s TickMetricsSnapshot) AverageHz() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor aggregates statistics for the simulation loop. A nil monitor ignores
// every call.
type TickMonitor struct {
	mu       sync.Mutex
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	bounces  int
	captures int
}

// NewTickMonitor returns an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the wall-clock cost of one tick.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// Record counts the contact reported by a tick outcome. Surface contacts while rolling
// are not bounces.
func (m *TickMonitor) Record(outcome Outcome) {
	if m == nil {
		return
	}
	m.mu.Lock()
	switch outcome.Contact {
	case physics.ContactSurface:
		if outcome.Prediction == physics.Free {
			m.bounces++
		}
	case physics.ContactHole:
		m.captures++
	}
	m.mu.Unlock()
}

// Snapshot copies the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := TickMetricsSnapshot{
		Samples:  m.samples,
		Max:      m.max,
		Last:     m.last,
		Bounces:  m.bounces,
		Captures: m.captures,
	}
	if m.samples > 0 {
		snapshot.Average = m.total / time.Duration(m.samples)
	}
	return snapshot
}

// Reset clears all counters.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.total, m.max, m.last = 0, 0, 0, 0
	m.bounces, m.captures = 0, 0
	m.mu.Unlock()
}
