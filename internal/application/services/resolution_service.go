package services

import (
	"fmt"
	"time"

	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/email"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/messaging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// ResolutionService applies verdicts to submitted sessions. Finalization
// is idempotent; only the first verdict for a token takes effect and
// every later one is a logged no-op.
type ResolutionService struct {
	sessions   verification.SessionRepository
	evidence   verification.EvidenceRepository
	profiles   verification.ProfileRepository
	actions    verification.ActionRepository
	quarantine verification.QuarantineRepository
	links      verification.LinkRepository
	mailer     email.Service
	feed       *messaging.ActionBroadcaster
	logger     *logging.ChanneledLogger

	quarantineHours   int
	profileHistoryCap int
}

// NewResolutionService creates a new resolution service.
func NewResolutionService(
	sessions verification.SessionRepository,
	evidence verification.EvidenceRepository,
	profiles verification.ProfileRepository,
	actions verification.ActionRepository,
	quarantine verification.QuarantineRepository,
	links verification.LinkRepository,
	mailer email.Service,
	feed *messaging.ActionBroadcaster,
	logger *logging.ChanneledLogger,
	quarantineHours, profileHistoryCap int,
) *ResolutionService {
	return &ResolutionService{
		sessions:          sessions,
		evidence:          evidence,
		profiles:          profiles,
		actions:           actions,
		quarantine:        quarantine,
		links:             links,
		mailer:            mailer,
		feed:              feed,
		logger:            logger,
		quarantineHours:   quarantineHours,
		profileHistoryCap: profileHistoryCap,
	}
}

// Resolve finalizes a submitted session with the given verdict and
// applies its side effects: exactly one action record, quarantine or
// link bookkeeping where the verdict calls for it, and a profile for
// first-time verified identities.
func (r *ResolutionService) Resolve(token string, verdict *domainservices.Verdict) error {
	if verdict == nil || !verdict.Status.Terminal() {
		return fmt.Errorf("verdict status %q is not terminal", statusOf(verdict))
	}

	now := time.Now().UTC()
	transitioned, err := r.sessions.Finalize(token, verdict.Status, verdict.Action, verdict.Reason, now)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	if !transitioned {
		// Duplicate callback or a token that never reached submitted.
		r.logger.Session().Warn("Resolve ignored, session not in submitted state",
			"token", token, "status", string(verdict.Status))
		return nil
	}

	session, err := r.sessions.FindByToken(token)
	if err != nil {
		return err
	}

	action := &verification.Action{
		ID:        security.GenerateULID(),
		Identity:  session.Identity,
		Action:    verdict.Action,
		Reason:    verdict.Reason,
		CreatedAt: now,
	}
	if err := r.actions.Append(action); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	r.feed.Broadcast(action)

	switch verdict.Status {
	case verification.StatusQuarantined, verification.StatusBanned:
		r.applyContainment(session, verdict, now)
	case verification.StatusVerified:
		r.captureProfile(session, now)
	}

	r.logger.Session().Info("Session resolved",
		"identity", session.Identity,
		"status", string(verdict.Status),
		"action", verdict.Action)
	return nil
}

func (r *ResolutionService) applyContainment(session *verification.Session, verdict *domainservices.Verdict, now time.Time) {
	if session.Identity != "" {
		entry := &verification.Quarantine{
			ID:        security.GenerateULID(),
			Identity:  session.Identity,
			UntilTS:   now.Add(time.Duration(r.quarantineHours) * time.Hour).Unix(),
			CreatedAt: now,
		}
		if err := r.quarantine.Upsert(entry); err != nil {
			r.logger.Session().Error("Failed to quarantine identity",
				"identity", session.Identity, "error", err.Error())
		}
	}

	r.bumpLinks(session, verdict, now)

	if verdict.Status == verification.StatusBanned && r.mailer != nil {
		identity := session.Identity
		reason := verdict.Reason
		go func() {
			if err := r.mailer.SendBanAlert(identity, reason); err != nil {
				r.logger.Alert().Error("Failed to send ban alert", "error", err.Error())
			}
		}()
	}
}

// bumpLinks strengthens correlation edges between the resolved identity
// and identities the engine or shared infrastructure tie it to.
func (r *ResolutionService) bumpLinks(session *verification.Session, verdict *domainservices.Verdict, now time.Time) {
	if session.Identity == "" {
		return
	}

	related := make(map[string]struct{})
	for _, other := range verdict.CorrelatedIdentities {
		related[other] = struct{}{}
	}

	bundles, err := r.evidence.FindByToken(session.Token)
	if err == nil && len(bundles) > 0 && bundles[0].NetBlock != "" {
		neighbors, err := r.evidence.IdentitiesSharingNetBlock(bundles[0].NetBlock, session.Identity)
		if err != nil {
			r.logger.Session().Error("Failed to find net-block neighbors", "error", err.Error())
		}
		for _, other := range neighbors {
			related[other] = struct{}{}
		}
	}

	for other := range related {
		if err := r.links.Bump(session.Identity, other, now); err != nil {
			r.logger.Session().Error("Failed to bump identity link",
				"identityA", session.Identity, "identityB", other, "error", err.Error())
		}
	}
}

// captureProfile stores a behavioral DNA profile for a verified identity
// that has none yet. Identities with history keep their existing samples.
func (r *ResolutionService) captureProfile(session *verification.Session, now time.Time) {
	if session.Identity == "" {
		return
	}

	existing, err := r.profiles.FindByIdentity(session.Identity)
	if err != nil {
		r.logger.Session().Error("Failed to look up profiles", "error", err.Error())
		return
	}
	if len(existing) > 0 {
		return
	}

	bundles, err := r.evidence.FindByToken(session.Token)
	if err != nil || len(bundles) == 0 {
		return
	}

	profile := verification.BuildProfile(session.Identity, bundles[0])
	profile.ID = security.GenerateULID()
	profile.CreatedAt = now
	if err := r.profiles.Store(profile, r.profileHistoryCap); err != nil {
		r.logger.Session().Error("Failed to store profile",
			"identity", session.Identity, "error", err.Error())
	}
}

// ReleaseExpiredQuarantines lifts quarantines past their window. Each
// release is recorded once, even across repeated sweeps.
func (r *ResolutionService) ReleaseExpiredQuarantines() (int, error) {
	now := time.Now().UTC()
	expired, err := r.quarantine.FindExpired(now)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired quarantines: %w", err)
	}

	released := 0
	for _, entry := range expired {
		if err := r.quarantine.Release(entry.ID); err != nil {
			r.logger.Sweep().Error("Failed to release quarantine",
				"identity", entry.Identity, "error", err.Error())
			continue
		}
		action := &verification.Action{
			ID:        security.GenerateULID(),
			Identity:  entry.Identity,
			Action:    verification.ActionQuarantineExpired,
			Reason:    "quarantine window elapsed",
			CreatedAt: now,
		}
		if err := r.actions.Append(action); err != nil {
			r.logger.Sweep().Error("Failed to record quarantine release",
				"identity", entry.Identity, "error", err.Error())
			continue
		}
		r.feed.Broadcast(action)
		released++
	}

	if released > 0 {
		r.logger.Sweep().Info("Released expired quarantines", "count", released)
	}
	return released, nil
}

func statusOf(v *domainservices.Verdict) string {
	if v == nil {
		return ""
	}
	return string(v.Status)
}
