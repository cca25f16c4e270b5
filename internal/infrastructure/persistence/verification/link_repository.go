package verification

import (
	"database/sql"
	"errors"
	"time"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLLinkRepository is the SQL-based implementation of the LinkRepository.
type SQLLinkRepository struct {
	db *database.DB
}

// NewSQLLinkRepository creates a new instance of the repository.
func NewSQLLinkRepository(db *database.DB) *SQLLinkRepository {
	return &SQLLinkRepository{db: db}
}

// Bump increments the weight for an unordered identity pair, creating the
// record on first corroboration. The upsert applies the increment inside
// the database, so concurrent resolvers touching the same pair never lose
// updates.
func (r *SQLLinkRepository) Bump(identityA, identityB string, now time.Time) error {
	if identityA == "" || identityB == "" || identityA == identityB {
		return nil
	}
	a, b := verification.CanonicalPair(identityA, identityB)

	const query = `
		INSERT INTO identity_links (identity_a, identity_b, weight, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(identity_a, identity_b)
		DO UPDATE SET weight = weight + 1, updated_at = excluded.updated_at`

	_, err := r.db.Exec(query, a, b, now, now)
	return err
}

// Find returns the link for an unordered pair, or nil if none exists.
func (r *SQLLinkRepository) Find(identityA, identityB string) (*verification.Link, error) {
	a, b := verification.CanonicalPair(identityA, identityB)

	const query = `
		SELECT identity_a, identity_b, weight, created_at, updated_at
		FROM identity_links
		WHERE identity_a = ? AND identity_b = ?`

	row := r.db.QueryRow(query, a, b)
	var link verification.Link
	err := row.Scan(&link.IdentityA, &link.IdentityB, &link.Weight, &link.CreatedAt, &link.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindByIdentity returns every link touching the given identity, heaviest first.
func (r *SQLLinkRepository) FindByIdentity(identity string) ([]*verification.Link, error) {
	const query = `
		SELECT identity_a, identity_b, weight, created_at, updated_at
		FROM identity_links
		WHERE identity_a = ? OR identity_b = ?
		ORDER BY weight DESC`

	rows, err := r.db.Query(query, identity, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*verification.Link
	for rows.Next() {
		var link verification.Link
		if err := rows.Scan(&link.IdentityA, &link.IdentityB, &link.Weight, &link.CreatedAt, &link.UpdatedAt); err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}
