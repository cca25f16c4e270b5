package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
)

func scoreInput(mutate func(*domainservices.EngineInput)) *domainservices.EngineInput {
	input := &domainservices.EngineInput{
		Session: &verification.Session{
			Token:    "tok-1",
			Identity: "alice",
			Status:   verification.StatusSubmitted,
		},
		Evidence: &verification.Evidence{
			ID:    "ev-1",
			Token: "tok-1",
			Trace: verification.BehavioralTrace{
				Typing:  []int{120, 95, 140, 110},
				Pointer: []int{16, 18, 14, 20},
			},
		},
	}
	if mutate != nil {
		mutate(input)
	}
	return input
}

func TestCleanEvidenceIsVerified(t *testing.T) {
	engine := New(DefaultConfig())

	verdict, err := engine.Score(context.Background(), scoreInput(nil))
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, verdict.Status)
	assert.Equal(t, verification.ActionVerified, verdict.Action)
	assert.Empty(t, verdict.CorrelatedIdentities)
}

func TestHoneypotAloneQuarantines(t *testing.T) {
	engine := New(DefaultConfig())

	verdict, err := engine.Score(context.Background(), scoreInput(func(in *domainservices.EngineInput) {
		in.Evidence.Honeypot = true
	}))
	require.NoError(t, err)
	assert.Equal(t, verification.StatusQuarantined, verdict.Status)
	assert.Equal(t, verification.ActionQuarantineAuto, verdict.Action)
	assert.Contains(t, verdict.Reason, "honeypot triggered")
}

func TestAutoBanAboveThreshold(t *testing.T) {
	config := DefaultConfig()
	config.AutoBan = true
	engine := New(config)

	verdict, err := engine.Score(context.Background(), scoreInput(func(in *domainservices.EngineInput) {
		in.Evidence.Honeypot = true
		in.SameFingerprintCount = 2
	}))
	require.NoError(t, err)
	assert.Equal(t, verification.StatusBanned, verdict.Status)
	assert.Equal(t, verification.ActionBan, verdict.Action)
}

func TestAutoBanDisabledCapsAtQuarantine(t *testing.T) {
	engine := New(DefaultConfig())

	verdict, err := engine.Score(context.Background(), scoreInput(func(in *domainservices.EngineInput) {
		in.Evidence.Honeypot = true
		in.SameFingerprintCount = 3
		in.SameNetBlockCount = 4
		in.PriorBanCount = 5
	}))
	require.NoError(t, err)
	assert.Equal(t, verification.StatusQuarantined, verdict.Status)
}

func TestCorrelationSignalsStack(t *testing.T) {
	engine := New(DefaultConfig())

	// 50 from the shared fingerprint plus 20 from the shared net block
	// lands at 70, over the quarantine threshold of 60.
	verdict, err := engine.Score(context.Background(), scoreInput(func(in *domainservices.EngineInput) {
		in.SameFingerprintCount = 2
		in.SameNetBlockCount = 2
	}))
	require.NoError(t, err)
	assert.Equal(t, verification.StatusQuarantined, verdict.Status)
}

func TestCadenceMatchReportsCorrelatedIdentity(t *testing.T) {
	engine := New(DefaultConfig())

	verdict, err := engine.Score(context.Background(), scoreInput(func(in *domainservices.EngineInput) {
		in.ProfileHistory = []*verification.Profile{
			{
				ID:       "p1",
				Identity: "bob",
				Typing:   in.Evidence.Trace.Typing,
				Pointer:  in.Evidence.Trace.Pointer,
			},
			{
				ID:       "p2",
				Identity: "alice", // own profile never correlates
				Typing:   in.Evidence.Trace.Typing,
				Pointer:  in.Evidence.Trace.Pointer,
			},
		}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, verdict.CorrelatedIdentities)
	assert.Contains(t, verdict.Reason, "cadence match to bob")
}

func TestScoringIsDeterministic(t *testing.T) {
	engine := New(DefaultConfig())
	input := scoreInput(func(in *domainservices.EngineInput) {
		in.SameFingerprintCount = 1
		in.PriorBanCount = 2
	})

	first, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	second, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]int{1, 2, 3}, []int{1, 2, 3}), 1e-9)
	assert.InDelta(t, 1.0, Cosine([]int{1, 2, 3}, []int{2, 4, 6}), 1e-9)
	assert.Zero(t, Cosine(nil, []int{1}))
	assert.Zero(t, Cosine([]int{1, 2}, nil))
	assert.Zero(t, Cosine([]int{0, 0}, []int{1, 1}))
}

func TestCadenceSimilarityBlend(t *testing.T) {
	trace := &verification.BehavioralTrace{Typing: []int{10, 20}, Pointer: []int{5, 5}}
	profile := &verification.Profile{Typing: []int{10, 20}}

	// Identical typing, empty pointer history: only the typing share counts.
	assert.InDelta(t, 0.6, CadenceSimilarity(trace, profile), 1e-9)
}
