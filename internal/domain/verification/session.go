// Package verification defines the entities of the verification session
// protocol: tokens, evidence bundles, cadence profiles, action records,
// quarantine entries, and identity links.
package verification

import "time"

// Status is the lifecycle state of a verification session. It is an open
// string tag rather than a closed enum: the decision engine may extend the
// quarantine/ban family with sub-kinds (e.g. "quarantine_auto") and status
// matching must not reject values it has never seen.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSubmitted   Status = "submitted"
	StatusVerified    Status = "verified"
	StatusQuarantined Status = "quarantined"
	StatusBanned      Status = "banned"
	StatusExpired     Status = "expired"
)

// Terminal reports whether s is past the point of further transitions.
// Anything that is not pending or submitted counts as terminal, so
// engine-extended verdict tags are handled correctly.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusSubmitted
}

// Session represents one verification attempt, identified by an opaque
// unguessable token. Sessions are never deleted, only superseded by status.
type Session struct {
	Token      string     `json:"token"`
	Identity   string     `json:"identity"` // inviting-platform account id, may be empty until bound
	Status     Status     `json:"status"`
	Used       bool       `json:"used"` // evidence accepted at least once
	Action     string     `json:"action,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  int64      `json:"expiresAt"` // unix seconds
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() > s.ExpiresAt
}

// Live reports whether the session still occupies the identity's single
// live-token slot.
func (s *Session) Live(now time.Time) bool {
	return !s.Status.Terminal() && !s.Expired(now)
}
