// Package store persists API tokens and instance settings. It is backed by
// SQLite (embedded, default) or Postgres, selected by driver name. All
// token mutations rely on the database's native transaction guarantees; no
// in-process locking is layered on top.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/airwavehq/airwave/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store manages Airwave's token and settings state.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects the store. For SQLite, dsn is a data directory (empty for
// in-memory). For Postgres, dsn is a connection string handled by pgx.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		s := &Store{db: db, driver: DriverPostgres}
		if err := s.migrate(); err != nil {
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func openSQLite(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "airwave.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db, driver: DriverSQLite}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashToken returns the hex SHA-256 of a raw token secret, the only form
// ever persisted.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// tokenRow maps 1:1 to the tokens table. Scopes are stored as a
// space-separated list, matching the role-template storage form.
type tokenRow struct {
	ID          string     `db:"id"`
	OwnerID     string     `db:"owner_id"`
	Tier        string     `db:"tier"`
	Scopes      string     `db:"scopes"`
	TokenHash   string     `db:"token_hash"`
	TokenPrefix string     `db:"token_prefix"`
	Revoked     bool       `db:"revoked"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
}

func (r tokenRow) toModel() *model.Token {
	return &model.Token{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Tier:        model.Tier(r.Tier),
		Scopes:      strings.Fields(r.Scopes),
		TokenHash:   r.TokenHash,
		TokenPrefix: r.TokenPrefix,
		Revoked:     r.Revoked,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		LastUsedAt:  r.LastUsedAt,
	}
}

// CreateToken persists a new token record.
func (s *Store) CreateToken(ctx context.Context, t *model.Token) error {
	query := s.db.Rebind(`INSERT INTO tokens
		(id, owner_id, tier, scopes, token_hash, token_prefix, revoked, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, string(t.Tier), strings.Join(t.Scopes, " "),
		t.TokenHash, t.TokenPrefix, t.Revoked, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// GetToken fetches a token by id.
func (s *Store) GetToken(ctx context.Context, id string) (*model.Token, error) {
	var row tokenRow
	query := s.db.Rebind(`SELECT * FROM tokens WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return row.toModel(), nil
}

// GetTokenByHash fetches a token by the SHA-256 of its raw secret. This is
// the resolver's read path.
func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*model.Token, error) {
	var row tokenRow
	query := s.db.Rebind(`SELECT * FROM tokens WHERE token_hash = ?`)
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token by hash: %w", err)
	}
	return row.toModel(), nil
}

// ListTokens returns all tokens, newest first.
func (s *Store) ListTokens(ctx context.Context) ([]*model.Token, error) {
	return s.listTokens(ctx, `SELECT * FROM tokens ORDER BY created_at DESC`)
}

// ListTokensByOwner returns one owner's tokens, newest first.
func (s *Store) ListTokensByOwner(ctx context.Context, ownerID string) ([]*model.Token, error) {
	return s.listTokens(ctx, s.db.Rebind(`SELECT * FROM tokens WHERE owner_id = ? ORDER BY created_at DESC`), ownerID)
}

func (s *Store) listTokens(ctx context.Context, query string, args ...any) ([]*model.Token, error) {
	var rows []tokenRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	tokens := make([]*model.Token, len(rows))
	for i, r := range rows {
		tokens[i] = r.toModel()
	}
	return tokens, nil
}

// RevokeToken marks a token revoked. Revocation is terminal; there is no
// way to reactivate a token.
func (s *Store) RevokeToken(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE tokens SET revoked = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, true, id)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveTokens counts an owner's non-revoked, non-expired tokens,
// used to enforce the per-owner active-token cap at issuance.
func (s *Store) CountActiveTokens(ctx context.Context, ownerID string, now time.Time) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM tokens
		WHERE owner_id = ? AND revoked = ? AND (expires_at IS NULL OR expires_at > ?)`)
	if err := s.db.GetContext(ctx, &count, query, ownerID, false, now); err != nil {
		return 0, fmt.Errorf("count active tokens: %w", err)
	}
	return count, nil
}

// UpdateTokenLastUsed records a successful resolution against the token.
// Called fire-and-forget; callers treat failure as non-fatal.
func (s *Store) UpdateTokenLastUsed(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE tokens SET last_used_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update token last used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	query := s.db.Rebind(`SELECT value FROM settings WHERE key = ?`)
	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := s.db.Rebind(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
