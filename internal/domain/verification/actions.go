package verification

import "time"

// Well-known action kinds written to the audit log. The column is free
// text; these are the values this service emits itself.
const (
	ActionVerified          = "verified"
	ActionQuarantineAuto    = "quarantine_auto"
	ActionBan               = "ban"
	ActionUnquarantine      = "unquarantine"
	ActionQuarantineExpired = "quarantine_expired"
	ActionTokenExpired      = "token_expired"
)

// Action is one append-only audit entry. Every terminal session
// resolution produces exactly one.
type Action struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quarantine is a time-boxed restriction on an identity. Expired entries
// are inert but retained for audit.
type Quarantine struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	UntilTS   int64     `json:"untilTs"` // unix seconds
	CreatedAt time.Time `json:"createdAt"`
}

// Active reports whether the restriction is still in force.
func (q *Quarantine) Active(now time.Time) bool {
	return q.UntilTS > now.Unix()
}

// Link is a weighted undirected association between two identities,
// inferred from behavioral similarity or shared network origin. Exactly
// one record exists per unordered pair; the pair is stored in canonical
// order (A < B). Weight only ever increases. Links are a signal, never
// sole grounds for an action.
type Link struct {
	IdentityA string    `json:"identityA"`
	IdentityB string    `json:"identityB"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanonicalPair orders two identities for link storage.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
