package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Outcome is the final state a poll run reports.
type Outcome string

const (
	// OutcomeVerified means the session resolved in the user's favor.
	OutcomeVerified Outcome = "verified"
	// OutcomeQuarantined means the session resolved to a quarantine.
	OutcomeQuarantined Outcome = "quarantined"
	// OutcomeBanned means the session resolved to a ban.
	OutcomeBanned Outcome = "banned"
	// OutcomeNotFound means the token is unknown or expired.
	OutcomeNotFound Outcome = "not_found"
	// OutcomePending means attempts ran out while the session was still
	// unresolved. Not an error; the caller may poll again later.
	OutcomePending Outcome = "pending"
)

// Terminal reports whether the outcome ends polling for good.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

// PollResult carries the outcome plus the server's action and reason
// tags when the session resolved.
type PollResult struct {
	Outcome Outcome
	Status  string
	Action  string
	Reason  string
}

// Poller polls the status endpoint until the session resolves or
// attempts run out.
type Poller struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	attempts int
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the delay between attempts.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithPollAttempts overrides how many polls are made before giving up.
func WithPollAttempts(n int) PollerOption {
	return func(p *Poller) { p.attempts = n }
}

// WithPollClient overrides the HTTP client.
func WithPollClient(client *http.Client) PollerOption {
	return func(p *Poller) { p.client = client }
}

// NewPoller creates a poller with a 1s interval and 30 attempts.
func NewPoller(baseURL string, opts ...PollerOption) *Poller {
	p := &Poller{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: time.Second,
		attempts: 30,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait polls until the session reaches a terminal status, the token
// turns out to be unknown or expired, attempts run out, or the context
// is cancelled. Transient errors consume an attempt and keep waiting;
// exhaustion yields OutcomePending, never an error.
func (p *Poller) Wait(ctx context.Context, token string) (*PollResult, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.attempts; attempt++ {
		result, err := p.check(ctx, token)
		if result != nil {
			return result, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return &PollResult{Outcome: OutcomePending, Status: "pending"}, nil
}

// check performs one status request. A nil result means "keep polling",
// whether from a transient error or a still-unresolved status.
func (p *Poller) check(ctx context.Context, token string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/verify/status/"+token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &PollResult{Outcome: OutcomeNotFound, Status: "not_found"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe: status returned %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	switch body.Status {
	case "pending", "submitted":
		return nil, nil
	default:
		return &PollResult{
			Outcome: classifyOutcome(body.Status),
			Status:  body.Status,
			Action:  body.Action,
			Reason:  body.Reason,
		}, nil
	}
}

// classifyOutcome folds a server verdict tag into an Outcome. Verdict
// tags are open strings; anything outside pending/submitted is terminal,
// and extended quarantine or ban variants keep their family.
func classifyOutcome(status string) Outcome {
	switch {
	case status == "verified":
		return OutcomeVerified
	case strings.Contains(status, "quarantine"):
		return OutcomeQuarantined
	case strings.Contains(status, "ban"):
		return OutcomeBanned
	default:
		return Outcome(status)
	}
}
