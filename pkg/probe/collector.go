// Package probe is the client side of the verification gate: a Collector
// that accumulates behavioral evidence for one token and submits it once,
// and a Poller that waits for the asynchronous outcome.
package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// Buffer caps. The server rejects anything larger, so the collector
// drops samples past the cap instead of growing.
const (
	maxPointerSamples   = 200
	maxKeystrokeSamples = 40
)

// ErrMissingToken is returned when a collector is built or submitted
// without a verification token. No network call is made.
var ErrMissingToken = errors.New("probe: missing verification token")

// ErrAlreadySubmitted is returned on a second Submit call for the same
// collector. The collector never auto-retries.
var ErrAlreadySubmitted = errors.New("probe: evidence already submitted")

// Collector accumulates behavioral evidence for a single verification
// session. It records only inter-event intervals; raw coordinates and
// key identities never enter the buffers. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	token       string
	fingerprint string
	timezone    string

	typing   []int
	pointer  []int
	honeypot bool

	submitted bool

	baseURL  string
	client   *http.Client
	maxDelay time.Duration
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithHTTPClient overrides the HTTP client used for submission.
func WithHTTPClient(client *http.Client) CollectorOption {
	return func(c *Collector) { c.client = client }
}

// WithMaxSubmitDelay bounds the randomized pre-submission delay. Zero
// disables the delay entirely.
func WithMaxSubmitDelay(d time.Duration) CollectorOption {
	return func(c *Collector) { c.maxDelay = d }
}

// WithFingerprint attaches the opaque environment fingerprint blob.
func WithFingerprint(fp string) CollectorOption {
	return func(c *Collector) { c.fingerprint = fp }
}

// WithTimezone records the client timezone name.
func WithTimezone(tz string) CollectorOption {
	return func(c *Collector) { c.timezone = tz }
}

// NewCollector creates a collector bound to one verification token.
func NewCollector(baseURL, token string, opts ...CollectorOption) (*Collector, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Collector{
		token:    token,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		maxDelay: 1200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RecordKeystroke records the interval in milliseconds since the
// previous keystroke. Samples past the cap are dropped.
func (c *Collector) RecordKeystroke(intervalMS int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.typing) < maxKeystrokeSamples {
		c.typing = append(c.typing, intervalMS)
	}
}

// RecordPointer records the interval in milliseconds since the previous
// pointer or scroll event. Samples past the cap are dropped.
func (c *Collector) RecordPointer(intervalMS int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pointer) < maxPointerSamples {
		c.pointer = append(c.pointer, intervalMS)
	}
}

// TriggerHoneypot marks the honeypot as touched. The flag is monotonic;
// nothing clears it.
func (c *Collector) TriggerHoneypot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.honeypot = true
}

type submitPayload struct {
	Token       string       `json:"token"`
	Fingerprint string       `json:"fingerprint"`
	Trace       tracePayload `json:"behavioralTrace"`
	Honeypot    bool         `json:"honeypotTriggered"`
}

type tracePayload struct {
	Typing   []int  `json:"typing"`
	Pointer  []int  `json:"mouse"`
	Timezone string `json:"timezone"`
}

// Submit sends the accumulated evidence exactly once, after a randomized
// delay within the configured window. Empty buffers are valid evidence.
// A failed submission is reported once and never retried.
func (c *Collector) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrMissingToken
	}
	if c.submitted {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	c.submitted = true

	payload := submitPayload{
		Token:       c.token,
		Fingerprint: c.fingerprint,
		Honeypot:    c.honeypot,
		Trace: tracePayload{
			Typing:   append([]int(nil), c.typing...),
			Pointer:  append([]int(nil), c.pointer...),
			Timezone: c.timezone,
		},
	}
	delay := c.randomDelay()
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("probe: encode evidence: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/verify/submit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: submit evidence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("probe: submit rejected with status %d", resp.StatusCode)
	}
	return nil
}

// randomDelay picks a uniform delay in [0, maxDelay]. Jitter makes
// scripted submissions harder to distinguish by wall clock alone.
func (c *Collector) randomDelay() time.Duration {
	if c.maxDelay <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.maxDelay)))
	if err != nil {
		return c.maxDelay / 2
	}
	return time.Duration(n.Int64())
}
