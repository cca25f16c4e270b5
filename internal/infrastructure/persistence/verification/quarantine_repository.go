package verification

import (
	"database/sql"
	"errors"
	"time"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLQuarantineRepository is the SQL-based implementation of the QuarantineRepository.
type SQLQuarantineRepository struct {
	db *database.DB
}

// NewSQLQuarantineRepository creates a new instance of the repository.
func NewSQLQuarantineRepository(db *database.DB) *SQLQuarantineRepository {
	return &SQLQuarantineRepository{db: db}
}

// Upsert enforces the single-active-entry invariant: an identity with an
// active restriction gets its expiry extended instead of a second row.
func (r *SQLQuarantineRepository) Upsert(q *verification.Quarantine) error {
	const extend = `
		UPDATE quarantine
		SET until_ts = ?
		WHERE identity = ?
		  AND released = 0
		  AND until_ts > ?`

	result, err := r.db.Exec(extend, q.UntilTS, q.Identity, q.CreatedAt.Unix())
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	const insert = `
		INSERT INTO quarantine (id, identity, until_ts, released, created_at)
		VALUES (?, ?, ?, 0, ?)`

	_, err = r.db.Exec(insert, q.ID, q.Identity, q.UntilTS, q.CreatedAt)
	return err
}

// FindActiveByIdentity returns the identity's active restriction, or nil.
func (r *SQLQuarantineRepository) FindActiveByIdentity(identity string, now time.Time) (*verification.Quarantine, error) {
	const query = `
		SELECT id, identity, until_ts, created_at
		FROM quarantine
		WHERE identity = ?
		  AND released = 0
		  AND until_ts > ?
		ORDER BY until_ts DESC
		LIMIT 1`

	row := r.db.QueryRow(query, identity, now.Unix())
	var q verification.Quarantine
	err := row.Scan(&q.ID, &q.Identity, &q.UntilTS, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// FindExpired returns restrictions past their expiry that have not been
// released yet. Released rows stay in the table for audit.
func (r *SQLQuarantineRepository) FindExpired(now time.Time) ([]*verification.Quarantine, error) {
	const query = `
		SELECT id, identity, until_ts, created_at
		FROM quarantine
		WHERE released = 0
		  AND until_ts <= ?`

	rows, err := r.db.Query(query, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*verification.Quarantine
	for rows.Next() {
		var q verification.Quarantine
		if err := rows.Scan(&q.ID, &q.Identity, &q.UntilTS, &q.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &q)
	}
	return entries, rows.Err()
}

// Release marks an expired entry as handled so the sweep emits its
// release action exactly once.
func (r *SQLQuarantineRepository) Release(id string) error {
	const query = `UPDATE quarantine SET released = 1 WHERE id = ?`
	_, err := r.db.Exec(query, id)
	return err
}
