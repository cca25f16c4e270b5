package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRequiresToken(t *testing.T) {
	_, err := NewCollector("http://localhost", "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestCollectorCapsBuffers(t *testing.T) {
	c, err := NewCollector("http://localhost", "tok", WithMaxSubmitDelay(0))
	require.NoError(t, err)

	for i := 0; i < maxKeystrokeSamples*2; i++ {
		c.RecordKeystroke(100)
	}
	for i := 0; i < maxPointerSamples*2; i++ {
		c.RecordPointer(15)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.typing, maxKeystrokeSamples)
	assert.Len(t, c.pointer, maxPointerSamples)
}

func TestCollectorHoneypotIsMonotonic(t *testing.T) {
	c, err := NewCollector("http://localhost", "tok")
	require.NoError(t, err)

	assert.False(t, c.honeypot)
	c.TriggerHoneypot()
	c.TriggerHoneypot()
	assert.True(t, c.honeypot)
}

func TestSubmitSendsEvidenceOnce(t *testing.T) {
	var calls int32
	var got submitPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "/api/v1/verify/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewCollector(srv.URL, "tok-1",
		WithMaxSubmitDelay(0),
		WithFingerprint("fp-blob"),
		WithTimezone("Europe/Vienna"))
	require.NoError(t, err)

	c.RecordKeystroke(120)
	c.RecordKeystroke(140)
	c.RecordPointer(18)
	c.TriggerHoneypot()

	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, "fp-blob", got.Fingerprint)
	assert.Equal(t, []int{120, 140}, got.Trace.Typing)
	assert.Equal(t, []int{18}, got.Trace.Pointer)
	assert.Equal(t, "Europe/Vienna", got.Trace.Timezone)
	assert.True(t, got.Honeypot)

	// Second call never reaches the network.
	err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitEmptyBuffersAreValidEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewCollector(srv.URL, "tok-empty", WithMaxSubmitDelay(0))
	require.NoError(t, err)
	assert.NoError(t, c.Submit(context.Background()))
}

func TestSubmitFailureIsReportedOnceNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, err := NewCollector(srv.URL, "tok-used", WithMaxSubmitDelay(0))
	require.NoError(t, err)

	assert.Error(t, c.Submit(context.Background()))
	assert.ErrorIs(t, c.Submit(context.Background()), ErrAlreadySubmitted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitHonorsCancellationDuringDelay(t *testing.T) {
	c, err := NewCollector("http://localhost:1", "tok", WithMaxSubmitDelay(10*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.Submit(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func statusServer(t *testing.T, responses ...func(w http.ResponseWriter)) (*httptest.Server, *int32) {
	t.Helper()

	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(atomic.AddInt32(&call, 1)) - 1
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		responses[idx](w)
	}))
	t.Cleanup(srv.Close)
	return srv, &call
}

func respondStatus(status string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "status": status, "action": status, "reason": "r"})
	}
}

func respond404(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	srv, calls := statusServer(t,
		respondStatus("pending"),
		respondStatus("submitted"),
		respondStatus("verified"),
	)

	p := NewPoller(srv.URL, WithPollInterval(5*time.Millisecond), WithPollAttempts(10))
	result, err := p.Wait(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Outcome)
	assert.True(t, result.Outcome.Terminal())
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestPollerStopsOnExtendedVerdictTags(t *testing.T) {
	cases := []struct {
		status  string
		outcome Outcome
	}{
		{"quarantine_auto", OutcomeQuarantined},
		{"ban_auto", OutcomeBanned},
		{"rejected", Outcome("rejected")},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			srv, calls := statusServer(t, respondStatus(tc.status))

			p := NewPoller(srv.URL, WithPollInterval(2*time.Millisecond), WithPollAttempts(5))
			result, err := p.Wait(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, result.Outcome)
			assert.Equal(t, tc.status, result.Status)
			assert.True(t, result.Outcome.Terminal())
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestPollerTreats404AsTerminal(t *testing.T) {
	srv, calls := statusServer(t, respond404)

	p := NewPoller(srv.URL, WithPollInterval(5*time.Millisecond), WithPollAttempts(10))
	result, err := p.Wait(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestPollerExhaustionYieldsPending(t *testing.T) {
	srv, calls := statusServer(t, respondStatus("submitted"))

	p := NewPoller(srv.URL, WithPollInterval(2*time.Millisecond), WithPollAttempts(4))
	result, err := p.Wait(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.False(t, result.Outcome.Terminal())
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
}

func TestPollerKeepsWaitingThroughTransientErrors(t *testing.T) {
	srv, _ := statusServer(t,
		func(w http.ResponseWriter) { w.WriteHeader(http.StatusInternalServerError) },
		respondStatus("banned"),
	)

	p := NewPoller(srv.URL, WithPollInterval(2*time.Millisecond), WithPollAttempts(10))
	result, err := p.Wait(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBanned, result.Outcome)
}

func TestPollerCancellation(t *testing.T) {
	srv, _ := statusServer(t, respondStatus("pending"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(srv.URL, WithPollInterval(time.Hour), WithPollAttempts(5))
	_, err := p.Wait(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollerRequiresToken(t *testing.T) {
	p := NewPoller("http://localhost")
	_, err := p.Wait(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
