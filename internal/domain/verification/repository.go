package verification

import "time"

// SessionRepository defines persistence for verification sessions. The
// two Claim/Finalize operations are the correctness-critical pieces: both
// must be implemented as a single atomic conditional transition on status
// so concurrent callers race safely without a store-wide lock.
type SessionRepository interface {
	Create(session *Session) error
	FindByToken(token string) (*Session, error)
	FindLiveByIdentity(identity string, now time.Time) (*Session, error)
	FindAll() ([]*Session, error)

	// ClaimForSubmission transitions pending -> submitted iff the session
	// is exactly pending and not past its TTL. Exactly one concurrent
	// caller wins; everyone else gets ErrAlreadySubmitted, ErrTokenExpired
	// or ErrTokenNotFound.
	ClaimForSubmission(token string, now time.Time) error

	// ReleaseClaim reverts submitted -> pending for a claim whose evidence
	// write failed, so the client can retry. Conditional on status; a
	// session already finalized is left untouched.
	ReleaseClaim(token string) error

	// Finalize transitions submitted -> the verdict status and records the
	// action/reason. It reports false (no error) when the session was not
	// in submitted, making duplicate resolve callbacks a no-op.
	Finalize(token string, verdict Status, action, reason string, now time.Time) (bool, error)

	// ExpireOlderThan sweeps every pending/submitted session past its TTL
	// to expired and returns the affected sessions.
	ExpireOlderThan(now time.Time) ([]*Session, error)
}

// EvidenceRepository persists immutable evidence bundles and answers the
// correlation queries the risk engine consumes.
type EvidenceRepository interface {
	Store(ev *Evidence) error
	FindByToken(token string) ([]*Evidence, error)

	// CountTokensWithNetBlock counts distinct other tokens that submitted
	// from the same network block.
	CountTokensWithNetBlock(netBlock, excludeToken string) (int, error)

	// CountTokensWithFingerprint counts distinct other tokens carrying an
	// identical fingerprint blob.
	CountTokensWithFingerprint(fingerprint, excludeToken string) (int, error)

	// IdentitiesSharingNetBlock returns distinct identities other than the
	// given one whose evidence arrived from the same network block.
	IdentitiesSharingNetBlock(netBlock, excludeIdentity string) ([]string, error)
}

// ProfileRepository persists per-identity cadence profiles with a bounded
// history per identity (oldest entries are dropped past the cap).
type ProfileRepository interface {
	Store(profile *Profile, historyCap int) error
	FindByIdentity(identity string) ([]*Profile, error)
	FindAll() ([]*Profile, error)
}

// ActionRepository is the append-only audit log.
type ActionRepository interface {
	Append(action *Action) error
	FindByIdentity(identity string) ([]*Action, error)
	CountBansMatching(reasonLike string) (int, error)
}

// QuarantineRepository persists time-boxed restrictions.
type QuarantineRepository interface {
	Upsert(q *Quarantine) error
	FindActiveByIdentity(identity string, now time.Time) (*Quarantine, error)
	FindExpired(now time.Time) ([]*Quarantine, error)
	Release(id string) error
}

// LinkRepository persists identity links. Bump must be an atomic
// increment: no lost updates under concurrent writers.
type LinkRepository interface {
	Bump(identityA, identityB string, now time.Time) error
	Find(identityA, identityB string) (*Link, error)
	FindByIdentity(identity string) ([]*Link, error)
}
