package verification

import (
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLActionRepository is the SQL-based implementation of the ActionRepository.
// The actions table is append-only.
type SQLActionRepository struct {
	db *database.DB
}

// NewSQLActionRepository creates a new instance of the repository.
func NewSQLActionRepository(db *database.DB) *SQLActionRepository {
	return &SQLActionRepository{db: db}
}

// Append writes one audit entry.
func (r *SQLActionRepository) Append(action *verification.Action) error {
	const query = `
		INSERT INTO actions (id, identity, action, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query, action.ID, action.Identity, action.Action, action.Reason, action.CreatedAt)
	return err
}

// FindByIdentity returns the audit trail for one identity, newest first.
func (r *SQLActionRepository) FindByIdentity(identity string) ([]*verification.Action, error) {
	const query = `
		SELECT id, identity, action, reason, created_at
		FROM actions
		WHERE identity = ?
		ORDER BY id DESC`

	rows, err := r.db.Query(query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*verification.Action
	for rows.Next() {
		var action verification.Action
		if err := rows.Scan(&action.ID, &action.Identity, &action.Action, &action.Reason, &action.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}

// CountBansMatching counts ban actions whose reason matches the LIKE pattern.
// Used for the prior-ban correlation signal ("previously banned on same
// device or network block").
func (r *SQLActionRepository) CountBansMatching(reasonLike string) (int, error) {
	if reasonLike == "" {
		return 0, nil
	}
	const query = `
		SELECT COUNT(*)
		FROM actions
		WHERE action = 'ban' AND reason LIKE ?`

	var count int
	err := r.db.QueryRow(query, reasonLike).Scan(&count)
	return count, err
}
