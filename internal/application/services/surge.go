package services

import (
	"sync"
	"time"
)

// SurgeTracker watches issuance cadence for join floods: when at least
// threshold issuances land inside the window, surge mode is on until the
// window drains. Used as an operator signal only; it never blocks
// issuance.
type SurgeTracker struct {
	window    time.Duration
	threshold int

	mu      sync.Mutex
	recent  []time.Time
	surging bool
}

// NewSurgeTracker creates a surge tracker.
func NewSurgeTracker(window time.Duration, threshold int) *SurgeTracker {
	return &SurgeTracker{
		window:    window,
		threshold: threshold,
	}
}

// Record registers one issuance and reports whether surge mode just
// flipped (in either direction).
func (t *SurgeTracker) Record(now time.Time) (active, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recent = append(t.recent, now)
	t.prune(now)

	was := t.surging
	t.surging = len(t.recent) >= t.threshold
	return t.surging, t.surging != was
}

// Active reports whether surge mode is currently on.
func (t *SurgeTracker) Active(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)
	if len(t.recent) == 0 {
		t.surging = false
	}
	return t.surging
}

func (t *SurgeTracker) prune(now time.Time) {
	cutoff := now.Add(-t.window)
	drop := 0
	for drop < len(t.recent) && t.recent[drop].Before(cutoff) {
		drop++
	}
	t.recent = t.recent[drop:]
}
