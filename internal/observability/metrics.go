package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for lifecycle operations and
// errors.
type Metrics struct {
	mu         sync.Mutex
	opCount    map[string]int64
	errorCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		opCount:    make(map[string]int64),
		errorCount: make(map[string]int64),
	}
}

// RecordOp increments the counter for a completed operation.
func (m *Metrics) RecordOp(op string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opCount[op]++
}

// RecordError increments error counters keyed by operation and taxonomy code.
func (m *Metrics) RecordError(op, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[op+"|"+code]++
}

// OpCount returns the current count for an operation.
func (m *Metrics) OpCount(op string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opCount[op]
}

// ErrorCount returns the current count for an operation/code pair.
func (m *Metrics) ErrorCount(op, code string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount[op+"|"+code]
}
