package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/scope"
	"github.com/airwavehq/airwave/internal/store"
)

var (
	// ErrIssuanceLimit means the owner already holds the maximum number of
	// concurrently active tokens.
	ErrIssuanceLimit = errors.New("active token limit reached")

	// ErrInvalidToken is returned by Validate for unknown, revoked, or
	// expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// CooldownError reports that a sensitive action was attempted again before
// its cooldown elapsed.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry after %s", e.RetryAfter)
}

// IssuerConfig carries the issuance policy constants.
type IssuerConfig struct {
	MaxActiveTokens int
	Cooldown        time.Duration
	TokenPrefix     string
	Now             func() time.Time
}

// Issuer creates, revokes, and validates API tokens, enforcing the
// per-owner active-token cap and the issuance cooldown.
type Issuer struct {
	store *store.Store
	gate  *ratelimit.Gate
	cfg   IssuerConfig
	now   func() time.Time
}

// NewIssuer creates an Issuer. The gate provides the shared cooldown
// bookkeeping so that horizontally scaled instances agree on lastAt.
func NewIssuer(st *store.Store, gate *ratelimit.Gate, cfg IssuerConfig) *Issuer {
	if cfg.MaxActiveTokens < 1 {
		cfg.MaxActiveTokens = 1
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = "awk_"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{store: st, gate: gate, cfg: cfg, now: now}
}

// Issue creates a new token for an owner. The cap on concurrently active
// tokens is checked first, then the time-based cooldown; only then is the
// token persisted. The raw secret is returned exactly once and never
// stored.
func (i *Issuer) Issue(ctx context.Context, ownerID string, tier model.Tier, scopes []string, expiresAt *time.Time) (*model.Token, string, error) {
	if ownerID == "" {
		return nil, "", errors.New("owner id is required")
	}
	if !model.ValidTier(tier) {
		return nil, "", fmt.Errorf("unknown tier %q", tier)
	}
	if _, err := scope.ParseAll(scopes); err != nil {
		return nil, "", err
	}

	now := i.now()

	active, err := i.store.CountActiveTokens(ctx, ownerID, now)
	if err != nil {
		return nil, "", fmt.Errorf("check active tokens: %w", err)
	}
	if active >= i.cfg.MaxActiveTokens {
		return nil, "", ErrIssuanceLimit
	}

	if i.cfg.Cooldown > 0 {
		retryAfter, err := i.gate.CheckCooldown(ctx, "cooldown:issue:"+ownerID, i.cfg.Cooldown)
		if err != nil {
			return nil, "", err
		}
		if retryAfter > 0 {
			return nil, "", &CooldownError{RetryAfter: retryAfter}
		}
	}

	raw, err := i.generateSecret()
	if err != nil {
		return nil, "", err
	}

	tok := &model.Token{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Tier:        tier,
		Scopes:      scopes,
		TokenHash:   store.HashToken(raw),
		TokenPrefix: raw[:len(i.cfg.TokenPrefix)+8],
		CreatedAt:   now.UTC(),
		ExpiresAt:   expiresAt,
	}
	if err := i.store.CreateToken(ctx, tok); err != nil {
		return nil, "", err
	}
	return tok, raw, nil
}

// Revoke permanently deactivates a token. Returns store.ErrNotFound for an
// unknown id.
func (i *Issuer) Revoke(ctx context.Context, id string) error {
	return i.store.RevokeToken(ctx, id)
}

// Validate returns the token record for an id if it still authorizes.
// Expiry is computed against the current time, never written back.
func (i *Issuer) Validate(ctx context.Context, id string) (*model.Token, error) {
	tok, err := i.store.GetToken(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !tok.Authorizes(i.now()) {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

// Get returns the stored token record regardless of its status, for
// ownership checks. Returns store.ErrNotFound for an unknown id.
func (i *Issuer) Get(ctx context.Context, id string) (*model.Token, error) {
	return i.store.GetToken(ctx, id)
}

// List returns an owner's tokens, newest first.
func (i *Issuer) List(ctx context.Context, ownerID string) ([]*model.Token, error) {
	return i.store.ListTokensByOwner(ctx, ownerID)
}

func (i *Issuer) generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return i.cfg.TokenPrefix + hex.EncodeToString(buf), nil
}
