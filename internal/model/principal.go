package model

import (
	"time"

	"github.com/airwavehq/airwave/internal/scope"
)

// Kind identifies which credential source produced a principal.
type Kind string

const (
	KindUser  Kind = "user"
	KindGuest Kind = "guest"
	KindToken Kind = "token"
)

// Tier classifies a caller for rate-limit purposes.
type Tier string

const (
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// ValidTier reports whether t is one of the known tiers.
func ValidTier(t Tier) bool {
	switch t {
	case TierBasic, TierPro, TierUnlimited:
		return true
	}
	return false
}

// Principal is the resolved identity attached to an authorized request.
// It is built once by the credential resolver and never mutated afterward;
// downstream handlers read it from the request context instead of
// re-deriving authorization.
type Principal struct {
	IdentityID string
	Kind       Kind
	Role       string
	Scopes     []scope.Grant
	Tier       Tier
}

// TierLimit is one row of the tier→limit table: how many requests a caller
// of that tier may make per fixed window.
type TierLimit struct {
	Requests int
	Window   time.Duration
}

// Unlimited reports whether this limit row disables charging entirely.
func (l TierLimit) Unlimited() bool {
	return l.Requests <= 0
}
