package verification

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLProfileRepository is the SQL-based implementation of the ProfileRepository.
type SQLProfileRepository struct {
	db *database.DB
}

// NewSQLProfileRepository creates a new instance of the repository.
func NewSQLProfileRepository(db *database.DB) *SQLProfileRepository {
	return &SQLProfileRepository{db: db}
}

// Store saves a cadence profile and enforces the per-identity history cap
// by dropping the oldest rows past it.
func (r *SQLProfileRepository) Store(profile *verification.Profile, historyCap int) error {
	typing, err := json.Marshal(profile.Typing)
	if err != nil {
		return fmt.Errorf("failed to encode typing profile: %w", err)
	}
	pointer, err := json.Marshal(profile.Pointer)
	if err != nil {
		return fmt.Errorf("failed to encode pointer profile: %w", err)
	}

	const insert = `
		INSERT INTO profiles (id, identity, typing, pointer, created_at)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := r.db.Exec(insert, profile.ID, profile.Identity, string(typing), string(pointer), profile.CreatedAt); err != nil {
		return err
	}

	if historyCap <= 0 {
		return nil
	}

	// ULIDs sort chronologically, so ordering by id keeps the newest rows.
	const trim = `
		DELETE FROM profiles
		WHERE identity = ?
		  AND id NOT IN (
			SELECT id FROM profiles WHERE identity = ? ORDER BY id DESC LIMIT ?)`

	_, err = r.db.Exec(trim, profile.Identity, profile.Identity, historyCap)
	return err
}

// FindByIdentity returns the profile history for one identity, newest first.
func (r *SQLProfileRepository) FindByIdentity(identity string) ([]*verification.Profile, error) {
	const query = `
		SELECT id, identity, typing, pointer, created_at
		FROM profiles
		WHERE identity = ?
		ORDER BY id DESC`

	return r.queryProfiles(query, identity)
}

// FindAll returns the full profile corpus for cross-account comparison.
func (r *SQLProfileRepository) FindAll() ([]*verification.Profile, error) {
	const query = `
		SELECT id, identity, typing, pointer, created_at
		FROM profiles
		ORDER BY id DESC`

	return r.queryProfiles(query)
}

func (r *SQLProfileRepository) queryProfiles(query string, args ...any) ([]*verification.Profile, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*verification.Profile
	for rows.Next() {
		profile, err := r.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func (r *SQLProfileRepository) scanProfile(rows *sql.Rows) (*verification.Profile, error) {
	var profile verification.Profile
	var typing, pointer string

	err := rows.Scan(&profile.ID, &profile.Identity, &typing, &pointer, &profile.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(typing), &profile.Typing); err != nil {
		return nil, fmt.Errorf("failed to decode typing profile: %w", err)
	}
	if err := json.Unmarshal([]byte(pointer), &profile.Pointer); err != nil {
		return nil, fmt.Errorf("failed to decode pointer profile: %w", err)
	}
	return &profile, nil
}
