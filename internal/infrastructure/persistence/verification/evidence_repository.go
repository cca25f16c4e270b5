package verification

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// SQLEvidenceRepository is the SQL-based implementation of the EvidenceRepository.
type SQLEvidenceRepository struct {
	db *database.DB
}

// NewSQLEvidenceRepository creates a new instance of the repository.
func NewSQLEvidenceRepository(db *database.DB) *SQLEvidenceRepository {
	return &SQLEvidenceRepository{db: db}
}

// Store saves an immutable evidence bundle. Rows are insert-only.
func (r *SQLEvidenceRepository) Store(ev *verification.Evidence) error {
	typing, err := json.Marshal(ev.Trace.Typing)
	if err != nil {
		return fmt.Errorf("failed to encode typing trace: %w", err)
	}
	pointer, err := json.Marshal(ev.Trace.Pointer)
	if err != nil {
		return fmt.Errorf("failed to encode pointer trace: %w", err)
	}

	const query = `
		INSERT INTO evidence (id, token, fingerprint, typing, pointer, timezone, honeypot, ip, net_block, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(
		query,
		ev.ID,
		ev.Token,
		ev.Fingerprint,
		string(typing),
		string(pointer),
		ev.Trace.Timezone,
		ev.Honeypot,
		ev.IP,
		ev.NetBlock,
		ev.UserAgent,
		ev.CreatedAt,
	)
	return err
}

// FindByToken returns evidence bundles for a token, newest first.
func (r *SQLEvidenceRepository) FindByToken(token string) ([]*verification.Evidence, error) {
	const query = `
		SELECT id, token, fingerprint, typing, pointer, timezone, honeypot, ip, net_block, user_agent, created_at
		FROM evidence
		WHERE token = ?
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []*verification.Evidence
	for rows.Next() {
		ev, err := r.scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, ev)
	}
	return bundles, rows.Err()
}

// CountTokensWithNetBlock counts distinct other tokens seen from the same network block.
func (r *SQLEvidenceRepository) CountTokensWithNetBlock(netBlock, excludeToken string) (int, error) {
	if netBlock == "" {
		return 0, nil
	}
	const query = `
		SELECT COUNT(DISTINCT token)
		FROM evidence
		WHERE net_block = ? AND token != ?`

	var count int
	err := r.db.QueryRow(query, netBlock, excludeToken).Scan(&count)
	return count, err
}

// CountTokensWithFingerprint counts distinct other tokens carrying an identical fingerprint blob.
func (r *SQLEvidenceRepository) CountTokensWithFingerprint(fingerprint, excludeToken string) (int, error) {
	if fingerprint == "" {
		return 0, nil
	}
	const query = `
		SELECT COUNT(DISTINCT token)
		FROM evidence
		WHERE fingerprint = ? AND token != ?`

	var count int
	err := r.db.QueryRow(query, fingerprint, excludeToken).Scan(&count)
	return count, err
}

// IdentitiesSharingNetBlock returns other identities whose evidence arrived
// from the same network block.
func (r *SQLEvidenceRepository) IdentitiesSharingNetBlock(netBlock, excludeIdentity string) ([]string, error) {
	if netBlock == "" {
		return nil, nil
	}
	const query = `
		SELECT DISTINCT s.identity
		FROM evidence e
		JOIN sessions s ON s.token = e.token
		WHERE e.net_block = ?
		  AND s.identity != ''
		  AND s.identity != ?`

	rows, err := r.db.Query(query, netBlock, excludeIdentity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

func (r *SQLEvidenceRepository) scanEvidence(rows *sql.Rows) (*verification.Evidence, error) {
	var ev verification.Evidence
	var typing, pointer string

	err := rows.Scan(
		&ev.ID,
		&ev.Token,
		&ev.Fingerprint,
		&typing,
		&pointer,
		&ev.Trace.Timezone,
		&ev.Honeypot,
		&ev.IP,
		&ev.NetBlock,
		&ev.UserAgent,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(typing), &ev.Trace.Typing); err != nil {
		return nil, fmt.Errorf("failed to decode typing trace: %w", err)
	}
	if err := json.Unmarshal([]byte(pointer), &ev.Trace.Pointer); err != nil {
		return nil, fmt.Errorf("failed to decode pointer trace: %w", err)
	}
	return &ev, nil
}
