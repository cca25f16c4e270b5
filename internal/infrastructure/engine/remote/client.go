// Package remote provides the HTTP client for an external decision
// engine. Requests carry an HMAC signature over the token so the engine
// can authenticate the caller; the engine answers with a verdict document
// or calls back on the resolve endpoint later.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// Client implements services.DecisionEngine against a remote scorer.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// New creates a remote engine client.
func New(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type scoreRequest struct {
	Token                string                       `json:"token"`
	Identity             string                       `json:"identity"`
	Fingerprint          string                       `json:"fingerprint"`
	Trace                verification.BehavioralTrace `json:"behavioralTrace"`
	Honeypot             bool                         `json:"honeypotTriggered"`
	NetBlock             string                       `json:"netBlock"`
	SameNetBlockCount    int                          `json:"sameNetBlockCount"`
	SameFingerprintCount int                          `json:"sameFingerprintCount"`
	PriorBanCount        int                          `json:"priorBanCount"`
	ProfileHistory       []*verification.Profile      `json:"profileHistory"`
}

type scoreResponse struct {
	OK                   bool     `json:"ok"`
	Error                string   `json:"error,omitempty"`
	Verdict              string   `json:"verdict"`
	Action               string   `json:"action"`
	Reason               string   `json:"reason"`
	CorrelatedIdentities []string `json:"correlatedIdentities,omitempty"`
}

// Score implements services.DecisionEngine. Any transport or protocol
// failure maps to ErrEngineUnavailable so the session stays submitted.
func (c *Client) Score(ctx context.Context, input *domainservices.EngineInput) (*domainservices.Verdict, error) {
	payload := scoreRequest{
		Token:                input.Session.Token,
		Identity:             input.Session.Identity,
		Fingerprint:          input.Evidence.Fingerprint,
		Trace:                input.Evidence.Trace,
		Honeypot:             input.Evidence.Honeypot,
		NetBlock:             input.Evidence.NetBlock,
		SameNetBlockCount:    input.SameNetBlockCount,
		SameFingerprintCount: input.SameFingerprintCount,
		PriorBanCount:        input.PriorBanCount,
		ProfileHistory:       input.ProfileHistory,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", security.SignToken(c.secret, input.Session.Token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verification.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: engine returned status %d", verification.ErrEngineUnavailable, resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: undecodable engine response: %v", verification.ErrEngineUnavailable, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("%w: %s", verification.ErrEngineUnavailable, decoded.Error)
	}

	status := verification.Status(decoded.Verdict)
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: non-terminal verdict %q", verification.ErrEngineUnavailable, decoded.Verdict)
	}

	action := decoded.Action
	if action == "" {
		action = decoded.Verdict
	}

	return &domainservices.Verdict{
		Status:               status,
		Action:               action,
		Reason:               decoded.Reason,
		CorrelatedIdentities: decoded.CorrelatedIdentities,
	}, nil
}
