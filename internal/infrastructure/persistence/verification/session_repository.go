// Package verification provides the concrete SQL-based implementations of
// the verification domain repositories.
package verification

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLSessionRepository is the SQL-based implementation of the SessionRepository.
type SQLSessionRepository struct {
	db *database.DB
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB) *SQLSessionRepository {
	return &SQLSessionRepository{db: db}
}

// Create saves a new Session to the database. A partial unique index on
// live sessions guards one unresolved token per identity at the store,
// so concurrent issuance cannot slip past the service-level check.
func (r *SQLSessionRepository) Create(session *verification.Session) error {
	const query = `
		INSERT INTO sessions (token, identity, status, used, action, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		session.Token,
		session.Identity,
		string(session.Status),
		session.Used,
		session.Action,
		session.Reason,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: sessions.identity") {
		return verification.ErrDuplicateIssuance
	}
	return err
}

// FindByToken retrieves a Session by its token.
func (r *SQLSessionRepository) FindByToken(token string) (*verification.Session, error) {
	const query = `
		SELECT token, identity, status, used, action, reason, created_at, expires_at, resolved_at
		FROM sessions
		WHERE token = ?`

	row := r.db.QueryRow(query, token)
	return r.scanSession(row)
}

// FindLiveByIdentity retrieves the identity's unresolved session, if any.
func (r *SQLSessionRepository) FindLiveByIdentity(identity string, now time.Time) (*verification.Session, error) {
	const query = `
		SELECT token, identity, status, used, action, reason, created_at, expires_at, resolved_at
		FROM sessions
		WHERE identity = ?
		  AND status IN ('pending', 'submitted')
		  AND (expires_at = 0 OR expires_at > ?)
		ORDER BY created_at DESC
		LIMIT 1`

	row := r.db.QueryRow(query, identity, now.Unix())
	session, err := r.scanSession(row)
	if errors.Is(err, verification.ErrTokenNotFound) {
		return nil, nil
	}
	return session, err
}

// FindAll returns every session, newest first. Used by the admin export.
func (r *SQLSessionRepository) FindAll() ([]*verification.Session, error) {
	const query = `
		SELECT token, identity, status, used, action, reason, created_at, expires_at, resolved_at
		FROM sessions
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*verification.Session
	for rows.Next() {
		session, err := r.scanSessionFromRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ClaimForSubmission performs the single atomic pending -> submitted
// transition. The conditional UPDATE is the linearization point: under
// concurrent submissions for the same token exactly one caller observes
// RowsAffected == 1.
func (r *SQLSessionRepository) ClaimForSubmission(token string, now time.Time) error {
	const claim = `
		UPDATE sessions
		SET status = 'submitted', used = 1
		WHERE token = ?
		  AND status = 'pending'
		  AND (expires_at = 0 OR expires_at > ?)`

	result, err := r.db.Exec(claim, token, now.Unix())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Lost the race or the token was never claimable; classify why.
	session, err := r.FindByToken(token)
	if err != nil {
		return err
	}
	switch {
	case session.Status == verification.StatusExpired:
		return verification.ErrTokenExpired
	case session.Status == verification.StatusPending && session.Expired(now):
		return verification.ErrTokenExpired
	default:
		return verification.ErrAlreadySubmitted
	}
}

// ReleaseClaim reverts the submitted -> pending transition when the
// evidence write behind a claim failed. The status condition keeps a
// finalized session from ever reopening.
func (r *SQLSessionRepository) ReleaseClaim(token string) error {
	const release = `
		UPDATE sessions
		SET status = 'pending', used = 0
		WHERE token = ?
		  AND status = 'submitted'`

	_, err := r.db.Exec(release, token)
	return err
}

// Finalize performs the atomic submitted -> verdict transition. A session
// not in submitted is left untouched and reported as not transitioned,
// which makes duplicate or delayed resolve callbacks harmless.
func (r *SQLSessionRepository) Finalize(token string, verdict verification.Status, action, reason string, now time.Time) (bool, error) {
	const finalize = `
		UPDATE sessions
		SET status = ?, action = ?, reason = ?, resolved_at = ?
		WHERE token = ?
		  AND status = 'submitted'`

	result, err := r.db.Exec(finalize, string(verdict), action, reason, now, token)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ExpireOlderThan sweeps unresolved sessions past their TTL to expired.
// Each row is expired with its own conditional UPDATE so a concurrent
// Submit or Resolve winning first is respected.
func (r *SQLSessionRepository) ExpireOlderThan(now time.Time) ([]*verification.Session, error) {
	const candidates = `
		SELECT token, identity, status, used, action, reason, created_at, expires_at, resolved_at
		FROM sessions
		WHERE status IN ('pending', 'submitted')
		  AND expires_at > 0
		  AND expires_at <= ?`

	rows, err := r.db.Query(candidates, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []*verification.Session
	for rows.Next() {
		session, err := r.scanSessionFromRows(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const expire = `
		UPDATE sessions
		SET status = 'expired'
		WHERE token = ? AND status = ?`

	var expired []*verification.Session
	for _, session := range stale {
		result, err := r.db.Exec(expire, session.Token, string(session.Status))
		if err != nil {
			return expired, err
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 1 {
			session.Status = verification.StatusExpired
			expired = append(expired, session)
		}
	}

	return expired, nil
}

// scanSession is a helper function to scan a sql.Row into a Session struct.
func (r *SQLSessionRepository) scanSession(row *sql.Row) (*verification.Session, error) {
	var session verification.Session
	var status string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&session.Token,
		&session.Identity,
		&status,
		&session.Used,
		&session.Action,
		&session.Reason,
		&session.CreatedAt,
		&session.ExpiresAt,
		&resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verification.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	session.Status = verification.Status(status)
	if resolvedAt.Valid {
		session.ResolvedAt = &resolvedAt.Time
	}
	return &session, nil
}

func (r *SQLSessionRepository) scanSessionFromRows(rows *sql.Rows) (*verification.Session, error) {
	var session verification.Session
	var status string
	var resolvedAt sql.NullTime

	err := rows.Scan(
		&session.Token,
		&session.Identity,
		&status,
		&session.Used,
		&session.Action,
		&session.Reason,
		&session.CreatedAt,
		&session.ExpiresAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = verification.Status(status)
	if resolvedAt.Valid {
		session.ResolvedAt = &resolvedAt.Time
	}
	return &session, nil
}
