// Package risk implements the built-in decision engine: a deterministic
// weighted scorer over behavioral evidence and correlation signals. It is
// the default DecisionEngine; deployments with an external classifier use
// the remote engine client instead.
package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
)

// Signal weights, tuned against the quarantine threshold of 60. Honeypot
// alone is enough; correlation signals have to stack.
const (
	weightDupFingerprint = 25.0
	weightDupNetBlock    = 20.0
	weightPriorBans      = 25.0
	weightHoneypot       = 90.0
	weightCadenceMatch   = 35.0
)

// Similarity blend: typing cadence is the stronger signal of the two.
const (
	typingSimWeight  = 0.6
	pointerSimWeight = 0.4
)

// Config holds the thresholds that turn a score into a verdict.
type Config struct {
	QuarantineThreshold int
	AutoBan             bool
	AutoBanThreshold    int
	SimilarityThreshold float64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		QuarantineThreshold: 60,
		AutoBan:             false,
		AutoBanThreshold:    95,
		SimilarityThreshold: 0.78,
	}
}

// Engine is a deterministic scorer; the same input always yields the same
// verdict, which keeps resolution replayable in tests.
type Engine struct {
	config Config
}

// New creates a risk engine with the given thresholds.
func New(config Config) *Engine {
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.78
	}
	return &Engine{config: config}
}

// Score implements services.DecisionEngine.
func (e *Engine) Score(_ context.Context, input *domainservices.EngineInput) (*domainservices.Verdict, error) {
	var score float64
	var reasons []string
	var correlated []string

	if input.SameFingerprintCount > 0 {
		delta := math.Min(3, float64(input.SameFingerprintCount))
		add := weightDupFingerprint * delta
		score += add
		reasons = append(reasons, fmt.Sprintf("duplicate fingerprint across %d tokens (+%.0f)", input.SameFingerprintCount, add))
	}

	if input.SameNetBlockCount > 0 {
		delta := math.Min(4, float64(input.SameNetBlockCount))
		add := weightDupNetBlock * (delta / 2.0)
		score += add
		reasons = append(reasons, fmt.Sprintf("network block shared with %d tokens (+%.0f)", input.SameNetBlockCount, add))
	}

	if input.PriorBanCount > 0 {
		add := math.Min(weightPriorBans, float64(input.PriorBanCount)*10)
		score += add
		reasons = append(reasons, fmt.Sprintf("%d prior bans on same origin (+%.0f)", input.PriorBanCount, add))
	}

	if input.Evidence.Honeypot {
		score += weightHoneypot
		reasons = append(reasons, "honeypot triggered")
	}

	// Cross-account cadence comparison against the stored profile corpus.
	seen := make(map[string]bool)
	for _, profile := range input.ProfileHistory {
		if profile.Identity == "" || profile.Identity == input.Session.Identity || seen[profile.Identity] {
			continue
		}
		sim := CadenceSimilarity(&input.Evidence.Trace, profile)
		if sim > e.config.SimilarityThreshold {
			seen[profile.Identity] = true
			correlated = append(correlated, profile.Identity)
			score += weightCadenceMatch
			reasons = append(reasons, fmt.Sprintf("cadence match to %s sim=%.2f (+%.0f)", profile.Identity, sim, weightCadenceMatch))
		}
	}

	final := int(math.Round(math.Max(0, math.Min(100, score))))

	verdict := &domainservices.Verdict{
		Status:               verification.StatusVerified,
		Action:               verification.ActionVerified,
		CorrelatedIdentities: correlated,
	}
	if final >= e.config.QuarantineThreshold {
		verdict.Status = verification.StatusQuarantined
		verdict.Action = verification.ActionQuarantineAuto
	}
	if e.config.AutoBan && final >= e.config.AutoBanThreshold {
		verdict.Status = verification.StatusBanned
		verdict.Action = verification.ActionBan
	}

	if len(reasons) == 0 {
		verdict.Reason = fmt.Sprintf("score=%d", final)
	} else {
		verdict.Reason = fmt.Sprintf("score=%d: %s", final, strings.Join(reasons, "; "))
	}

	return verdict, nil
}

// CadenceSimilarity blends typing and pointer cosine similarity between a
// submitted trace and a stored profile.
func CadenceSimilarity(trace *verification.BehavioralTrace, profile *verification.Profile) float64 {
	t := Cosine(trace.Typing, profile.Typing)
	p := Cosine(trace.Pointer, profile.Pointer)
	return typingSimWeight*t + pointerSimWeight*p
}

// Cosine computes cosine similarity between two interval vectors. Vectors
// are compared over their overlapping prefix; empty input yields 0.
func Cosine(a, b []int) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
