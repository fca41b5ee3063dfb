package store

import "fmt"

func (s *Store) migrate() error {
	var migrations []string
	switch s.driver {
	case DriverPostgres:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS tokens (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT 'basic',
				scopes TEXT NOT NULL DEFAULT '',
				token_hash TEXT UNIQUE NOT NULL,
				token_prefix TEXT NOT NULL,
				revoked BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMPTZ,
				last_used_at TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens (owner_id)`,
			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		}
	default:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS tokens (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT 'basic',
				scopes TEXT NOT NULL DEFAULT '',
				token_hash TEXT UNIQUE NOT NULL,
				token_prefix TEXT NOT NULL,
				revoked INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				expires_at DATETIME,
				last_used_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens (owner_id)`,
			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		}
	}

	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
