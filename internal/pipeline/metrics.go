package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Name string

	// Frame counters (using atomic for thread-safety)
	Received   atomic.Uint64
	Dropped    atomic.Uint64
	Handled    atomic.Uint64
	Errors     atomic.Uint64
	Sent       atomic.Uint64
	SendErrors atomic.Uint64
	Swept      atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics(name string) *Metrics {
	return &Metrics{Name: name}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Dropped.Store(0)
	m.Handled.Store(0)
	m.Errors.Store(0)
	m.Sent.Store(0)
	m.SendErrors.Store(0)
	m.Swept.Store(0)
}
