// Package services provides application-level orchestration services
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/netutil"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// SessionService owns the token lifecycle: issuance, evidence submission,
// status reads, and the TTL sweep. Verdict application lives in the
// ResolutionService; this service only schedules scoring.
type SessionService struct {
	sessions   verification.SessionRepository
	evidence   verification.EvidenceRepository
	profiles   verification.ProfileRepository
	actions    verification.ActionRepository
	engine     domainservices.DecisionEngine
	resolution *ResolutionService
	surge      *SurgeTracker
	logger     *logging.ChanneledLogger

	tokenTTL      time.Duration
	engineTimeout time.Duration
}

// NewSessionService creates a new session service.
func NewSessionService(
	sessions verification.SessionRepository,
	evidence verification.EvidenceRepository,
	profiles verification.ProfileRepository,
	actions verification.ActionRepository,
	engine domainservices.DecisionEngine,
	resolution *ResolutionService,
	surge *SurgeTracker,
	logger *logging.ChanneledLogger,
	tokenTTL, engineTimeout time.Duration,
) *SessionService {
	return &SessionService{
		sessions:      sessions,
		evidence:      evidence,
		profiles:      profiles,
		actions:       actions,
		engine:        engine,
		resolution:    resolution,
		surge:         surge,
		logger:        logger,
		tokenTTL:      tokenTTL,
		engineTimeout: engineTimeout,
	}
}

// SubmitRequest is the evidence payload accepted from the client probe.
type SubmitRequest struct {
	Token       string                       `json:"token"`
	Fingerprint string                       `json:"fingerprint"`
	Trace       verification.BehavioralTrace `json:"behavioralTrace"`
	Honeypot    bool                         `json:"honeypotTriggered"`

	// Attached by the handler from the connection, never from the body.
	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// StatusResult is the read-only view returned by the status endpoint.
type StatusResult struct {
	Identity string `json:"identity,omitempty"`
	Status   string `json:"status"`
	Action   string `json:"action,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Used     bool   `json:"used"`
}

// Issue creates a new verification session for an identity. An identity
// holding an unresolved token cannot receive a second one.
func (s *SessionService) Issue(identity string) (*verification.Session, error) {
	now := time.Now().UTC()

	if identity != "" {
		live, err := s.sessions.FindLiveByIdentity(identity, now)
		if err != nil {
			return nil, fmt.Errorf("failed to check live sessions: %w", err)
		}
		if live != nil {
			return nil, verification.ErrDuplicateIssuance
		}
	}

	token, err := security.GenerateVerificationToken()
	if err != nil {
		return nil, err
	}

	session := &verification.Session{
		Token:     token,
		Identity:  identity,
		Status:    verification.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL).Unix(),
	}
	err = s.sessions.Create(session)
	if errors.Is(err, verification.ErrDuplicateIssuance) && identity != "" {
		// The live-session index also counts stale unswept tokens; sweep
		// and retry once. A racing Issue that won still holds the slot.
		if _, sweepErr := s.sessions.ExpireOlderThan(now); sweepErr == nil {
			err = s.sessions.Create(session)
		}
	}
	if err != nil {
		if errors.Is(err, verification.ErrDuplicateIssuance) {
			return nil, verification.ErrDuplicateIssuance
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if active, changed := s.surge.Record(now); changed {
		if active {
			s.logger.Alert().Warn("Issuance surge detected, entering surge mode")
		} else {
			s.logger.Alert().Info("Issuance surge ended")
		}
	}

	s.logger.Session().Info("Verification token issued", "identity", identity)
	return session, nil
}

// Submit validates and persists one evidence bundle, then schedules
// scoring. The pending -> submitted claim is atomic at the store, so
// concurrent submissions for one token yield exactly one acceptance.
// Submit returns once the bundle is durably stored; scoring runs in the
// background and the caller polls status for the outcome.
func (s *SessionService) Submit(req *SubmitRequest) error {
	if req.Token == "" {
		return verification.ErrMalformedEvidence
	}
	if err := req.Trace.ValidateBounds(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.sessions.ClaimForSubmission(req.Token, now); err != nil {
		return err
	}

	session, err := s.sessions.FindByToken(req.Token)
	if err != nil {
		return err
	}

	ev := &verification.Evidence{
		ID:          security.GenerateULID(),
		Token:       req.Token,
		Fingerprint: req.Fingerprint,
		Trace:       req.Trace,
		Honeypot:    req.Honeypot,
		IP:          req.ClientIP,
		NetBlock:    netutil.DeriveNetBlock(req.ClientIP),
		UserAgent:   req.UserAgent,
		CreatedAt:   now,
	}
	if err := s.evidence.Store(ev); err != nil {
		// Hand the token back so the client's retry is not stuck behind
		// a claim with no bundle.
		if releaseErr := s.sessions.ReleaseClaim(req.Token); releaseErr != nil {
			s.logger.Evidence().Error("Failed to release claim after store failure",
				"token", req.Token, "error", releaseErr.Error())
		}
		return fmt.Errorf("failed to store evidence: %w", err)
	}

	s.logger.Evidence().Info("Evidence accepted",
		"identity", session.Identity,
		"honeypot", ev.Honeypot,
		"typingSamples", len(ev.Trace.Typing),
		"pointerSamples", len(ev.Trace.Pointer))

	go s.score(session, ev)
	return nil
}

// score gathers correlation inputs and invokes the decision engine. Any
// failure leaves the session in submitted; it is retried by ReScore, not
// silently failed into a verdict.
func (s *SessionService) score(session *verification.Session, ev *verification.Evidence) {
	ctx, cancel := context.WithTimeout(context.Background(), s.engineTimeout)
	defer cancel()

	input, err := s.buildEngineInput(session, ev)
	if err != nil {
		s.logger.Engine().Error("Failed to assemble engine input", "token", session.Token, "error", err.Error())
		return
	}

	verdict, err := s.engine.Score(ctx, input)
	if err != nil {
		if errors.Is(err, verification.ErrEngineUnavailable) {
			s.logger.Engine().Warn("Decision engine unavailable, session stays submitted", "error", err.Error())
		} else {
			s.logger.Engine().Error("Decision engine failed, session stays submitted", "error", err.Error())
		}
		return
	}

	if err := s.resolution.Resolve(session.Token, verdict); err != nil {
		s.logger.Engine().Error("Failed to apply verdict", "token", session.Token, "error", err.Error())
	}
}

// ReScore re-invokes the engine for a submitted session whose original
// scoring attempt failed. Exposed to operators.
func (s *SessionService) ReScore(token string) error {
	session, err := s.sessions.FindByToken(token)
	if err != nil {
		return err
	}
	if session.Status != verification.StatusSubmitted {
		return verification.ErrAlreadySubmitted
	}

	bundles, err := s.evidence.FindByToken(token)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		return verification.ErrMalformedEvidence
	}

	s.score(session, bundles[0])
	return nil
}

func (s *SessionService) buildEngineInput(session *verification.Session, ev *verification.Evidence) (*domainservices.EngineInput, error) {
	sameBlock, err := s.evidence.CountTokensWithNetBlock(ev.NetBlock, ev.Token)
	if err != nil {
		return nil, err
	}
	sameFp, err := s.evidence.CountTokensWithFingerprint(ev.Fingerprint, ev.Token)
	if err != nil {
		return nil, err
	}

	var priorBans int
	if ev.NetBlock != "" {
		priorBans, err = s.actions.CountBansMatching("%" + ev.NetBlock + "%")
		if err != nil {
			return nil, err
		}
	}

	history, err := s.profiles.FindAll()
	if err != nil {
		return nil, err
	}

	return &domainservices.EngineInput{
		Session:              session,
		Evidence:             ev,
		ProfileHistory:       history,
		SameNetBlockCount:    sameBlock,
		SameFingerprintCount: sameFp,
		PriorBanCount:        priorBans,
	}, nil
}

// Status returns the session view for polling clients. Unknown and
// expired tokens are reported identically as not found so callers cannot
// probe which tokens ever existed.
func (s *SessionService) Status(token string) (*StatusResult, error) {
	session, err := s.sessions.FindByToken(token)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.Status == verification.StatusExpired {
		return nil, verification.ErrTokenNotFound
	}
	if !session.Status.Terminal() && session.Expired(now) {
		// Past TTL but not yet swept; indistinguishable from unknown.
		return nil, verification.ErrTokenNotFound
	}

	return &StatusResult{
		Identity: session.Identity,
		Status:   string(session.Status),
		Action:   session.Action,
		Reason:   session.Reason,
		Used:     session.Used,
	}, nil
}

// Sweep expires unresolved sessions past their TTL. It never invokes the
// decision engine.
func (s *SessionService) Sweep() (int, error) {
	now := time.Now().UTC()
	expired, err := s.sessions.ExpireOlderThan(now)
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}

	if len(expired) > 0 {
		identities := make([]string, 0, len(expired))
		for _, session := range expired {
			if session.Identity != "" {
				identities = append(identities, session.Identity)
			}
		}
		s.logger.Sweep().Info("Expired unresolved sessions",
			"count", len(expired),
			"identities", strings.Join(identities, ","))
	}

	return len(expired), nil
}

// SurgeActive reports whether issuance surge mode is currently on.
func (s *SessionService) SurgeActive() bool {
	return s.surge.Active(time.Now().UTC())
}
