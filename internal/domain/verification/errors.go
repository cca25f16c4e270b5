package verification

import "errors"

// Protocol error taxonomy. Handlers map these to HTTP responses at the
// boundary; everything else is an internal error.
var (
	// ErrTokenNotFound covers both unknown and swept-to-expired tokens.
	// Callers must not be able to distinguish the two.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a submission arrives for a token
	// whose TTL elapsed before the sweep caught it.
	ErrTokenExpired = errors.New("token expired")

	// ErrAlreadySubmitted rejects a second submission for a token. The
	// first accepted bundle is never overwritten.
	ErrAlreadySubmitted = errors.New("token already used")

	// ErrDuplicateIssuance rejects issuing a new token while the identity
	// still holds an unresolved one.
	ErrDuplicateIssuance = errors.New("identity already has a live verification token")

	// ErrMalformedEvidence covers schema and bounds violations: oversized
	// trace arrays or missing required fields.
	ErrMalformedEvidence = errors.New("malformed evidence")

	// ErrEngineUnavailable means the decision engine was unreachable or
	// timed out. The session stays submitted; it is never an implicit
	// verdict.
	ErrEngineUnavailable = errors.New("decision engine unavailable")
)
