// Package services defines domain-level service contracts that the
// application layer consumes but does not implement itself.
package services

import (
	"context"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
)

// EngineInput is everything a decision engine may consult when scoring a
// submission.
type EngineInput struct {
	Session  *verification.Session
	Evidence *verification.Evidence

	// ProfileHistory is the cadence-profile corpus for all identities,
	// used for cross-account similarity.
	ProfileHistory []*verification.Profile

	// Correlation counts computed server-side from stored evidence.
	SameNetBlockCount    int
	SameFingerprintCount int
	PriorBanCount        int
}

// Verdict is the engine's decision for one submission. Verdict statuses
// are open string tags; anything terminal is honored as-is.
type Verdict struct {
	Status verification.Status `json:"verdict"`
	Action string              `json:"action"`
	Reason string              `json:"reason"`

	// CorrelatedIdentities are other identities the engine believes share
	// an operator with this one; each produces an identity-link bump.
	CorrelatedIdentities []string `json:"correlatedIdentities,omitempty"`
}

// DecisionEngine turns an evidence bundle into a verdict. Implementations
// may take unbounded time; callers invoke them asynchronously and treat
// any error as verification.ErrEngineUnavailable (the session stays
// submitted, never auto-fails).
type DecisionEngine interface {
	Score(ctx context.Context, input *EngineInput) (*Verdict, error)
}
