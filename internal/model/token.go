package model

import "time"

// Token represents an API token bound to an owner and a tier. The raw
// secret is never stored; only a SHA-256 hash and a short prefix for
// identification are persisted.
type Token struct {
	ID          string     `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	Tier        Tier       `json:"tier" db:"tier"`
	Scopes      []string   `json:"scopes"`
	TokenHash   string     `json:"-" db:"token_hash"` // SHA-256 hash, never expose
	TokenPrefix string     `json:"token_prefix" db:"token_prefix"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Expired reports whether the token is past its expiry at the given time.
// Expiry is a computed predicate, never a stored state transition.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Authorizes reports whether the token may authorize a request at the
// given time. A revoked token never authorizes, regardless of expiry.
func (t *Token) Authorizes(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
