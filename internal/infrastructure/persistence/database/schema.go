// Package database provides schema management helpers
package database

import "fmt"

// EnsureSchema creates all verification tables if they do not exist yet.
// Safe to call on every startup.
func (db *DB) EnsureSchema() error {
	tables := []struct {
		name string
		sql  string
	}{
		{"sessions", `CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			identity TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			used INTEGER NOT NULL DEFAULT 0,
			action TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at INTEGER NOT NULL DEFAULT 0,
			resolved_at TIMESTAMP)`},
		{"evidence", `CREATE TABLE IF NOT EXISTS evidence (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL REFERENCES sessions(token),
			fingerprint TEXT NOT NULL DEFAULT '',
			typing TEXT NOT NULL DEFAULT '[]',
			pointer TEXT NOT NULL DEFAULT '[]',
			timezone TEXT NOT NULL DEFAULT '',
			honeypot INTEGER NOT NULL DEFAULT 0,
			ip TEXT NOT NULL DEFAULT '',
			net_block TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`},
		{"profiles", `CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			typing TEXT NOT NULL DEFAULT '[]',
			pointer TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`},
		{"actions", `CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`},
		{"quarantine", `CREATE TABLE IF NOT EXISTS quarantine (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			until_ts INTEGER NOT NULL,
			released INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`},
		{"identity_links", `CREATE TABLE IF NOT EXISTS identity_links (
			identity_a TEXT NOT NULL,
			identity_b TEXT NOT NULL,
			weight INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (identity_a, identity_b))`},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.sql); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_live_identity ON sessions(identity)
			WHERE identity <> '' AND status IN ('pending', 'submitted')`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_token ON evidence(token)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_net_block ON evidence(net_block)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_identity ON profiles(identity)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_identity ON actions(identity)`,
		`CREATE INDEX IF NOT EXISTS idx_quarantine_identity ON quarantine(identity)`,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
