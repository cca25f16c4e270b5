package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// AdminService backs the operator endpoints: corpus export, manual
// quarantine release, and correlation lookups.
type AdminService struct {
	sessions   verification.SessionRepository
	actions    verification.ActionRepository
	quarantine verification.QuarantineRepository
	links      verification.LinkRepository
	logger     *logging.ChanneledLogger
}

// NewAdminService creates a new admin service.
func NewAdminService(
	sessions verification.SessionRepository,
	actions verification.ActionRepository,
	quarantine verification.QuarantineRepository,
	links verification.LinkRepository,
	logger *logging.ChanneledLogger,
) *AdminService {
	return &AdminService{
		sessions:   sessions,
		actions:    actions,
		quarantine: quarantine,
		links:      links,
		logger:     logger,
	}
}

// ExportSessionsCSV streams the full session corpus as CSV. Used by
// operators to train offline models on resolved outcomes.
func (a *AdminService) ExportSessionsCSV(w io.Writer) error {
	sessions, err := a.sessions.FindAll()
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"token", "identity", "status", "used", "action", "reason", "created_at", "expires_at", "resolved_at"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sessions {
		resolvedAt := ""
		if s.ResolvedAt != nil {
			resolvedAt = s.ResolvedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			s.Token,
			s.Identity,
			string(s.Status),
			strconv.FormatBool(s.Used),
			s.Action,
			s.Reason,
			s.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(s.ExpiresAt, 10),
			resolvedAt,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Unquarantine lifts an identity's active quarantine ahead of its window
// and records the override in the audit log.
func (a *AdminService) Unquarantine(identity, operator string) error {
	now := time.Now().UTC()
	entry, err := a.quarantine.FindActiveByIdentity(identity, now)
	if err != nil {
		return fmt.Errorf("failed to look up quarantine: %w", err)
	}
	if entry == nil {
		return verification.ErrTokenNotFound
	}

	if err := a.quarantine.Release(entry.ID); err != nil {
		return fmt.Errorf("failed to release quarantine: %w", err)
	}

	action := &verification.Action{
		ID:        security.GenerateULID(),
		Identity:  identity,
		Action:    verification.ActionUnquarantine,
		Reason:    fmt.Sprintf("released by operator %s", operator),
		CreatedAt: now,
	}
	if err := a.actions.Append(action); err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}

	a.logger.Auth().Info("Quarantine released by operator",
		"identity", identity, "operator", operator)
	return nil
}

// IdentityLinks returns the correlation edges touching an identity.
func (a *AdminService) IdentityLinks(identity string) ([]*verification.Link, error) {
	return a.links.FindByIdentity(identity)
}

// IdentityHistory returns the audit trail for an identity.
func (a *AdminService) IdentityHistory(identity string) ([]*verification.Action, error) {
	return a.actions.FindByIdentity(identity)
}
