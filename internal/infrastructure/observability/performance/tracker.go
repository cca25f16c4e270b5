// Package performance provides performance tracking for AegisGate
// operations with operation markers and aggregate metrics.
package performance

import (
	"sync"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g. "verify:submit", "engine:score"
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Completed bool           `json:"completed"`
}

// Complete marks the operation as finished and calculates final metrics
func (m *Marker) Complete() {
	if m.Completed {
		return // Prevent double completion
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Tracker manages performance markers and aggregates per-operation stats
type Tracker struct {
	markers    []*Marker
	maxMarkers int
	mu         sync.RWMutex
	started    time.Time
}

// NewTracker creates a performance tracker retaining up to maxMarkers
// completed markers (oldest dropped first).
func NewTracker(maxMarkers int) *Tracker {
	if maxMarkers <= 0 {
		maxMarkers = 10000
	}
	return &Tracker{
		maxMarkers: maxMarkers,
		started:    time.Now(),
	}
}

// StartOperation creates and registers a new marker for an operation
func (t *Tracker) StartOperation(operation string) *Marker {
	marker := &Marker{
		Operation: operation,
		StartTime: time.Now(),
		Success:   true,
	}

	t.mu.Lock()
	t.markers = append(t.markers, marker)
	if len(t.markers) > t.maxMarkers {
		t.markers = t.markers[len(t.markers)-t.maxMarkers:]
	}
	t.mu.Unlock()

	return marker
}

// OperationStats summarizes completed markers for one operation
type OperationStats struct {
	Operation   string        `json:"operation"`
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	TotalTime   time.Duration `json:"totalTime"`
	AverageTime time.Duration `json:"averageTime"`
	MaxTime     time.Duration `json:"maxTime"`
}

// Stats returns aggregate stats keyed by operation name
func (t *Tracker) Stats() map[string]*OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make(map[string]*OperationStats)
	for _, m := range t.markers {
		if !m.Completed {
			continue
		}
		s, ok := stats[m.Operation]
		if !ok {
			s = &OperationStats{Operation: m.Operation}
			stats[m.Operation] = s
		}
		s.Count++
		if !m.Success {
			s.Failures++
		}
		s.TotalTime += m.Duration
		if m.Duration > s.MaxTime {
			s.MaxTime = m.Duration
		}
	}
	for _, s := range stats {
		if s.Count > 0 {
			s.AverageTime = s.TotalTime / time.Duration(s.Count)
		}
	}
	return stats
}

// Uptime returns how long the tracker has been running
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.started)
}
