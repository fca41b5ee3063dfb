package model

import (
	"fmt"
	"time"

	"github.com/airwavehq/airwave/internal/scope"
)

// Role names understood by the role→scope template table.
const (
	RoleGuest     = "guest"
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// DefaultRoleScopes is the built-in role→scope template table, stored as
// space-separated scope lists. Overridable via configuration; parsed and
// validated once at startup.
var DefaultRoleScopes = map[string]string{
	RoleGuest:     "read:stations read:bands read:regions",
	RoleUser:      "read:* write:stations write:operators",
	RoleModerator: "read:* write:*",
	RoleAdmin:     "*",
}

// DefaultTierLimits is the built-in tier→limit table. A zero request count
// means the tier bypasses rate-limit charging entirely.
var DefaultTierLimits = map[Tier]TierLimit{
	TierBasic:     {Requests: 60, Window: time.Minute},
	TierPro:       {Requests: 600, Window: time.Minute},
	TierUnlimited: {Requests: 0},
}

// RoleTable holds the parsed, immutable role→scope templates. Built once
// at startup; lookups afterward are read-only.
type RoleTable struct {
	scopes map[string][]scope.Grant
}

// NewRoleTable parses a role→scope-list mapping. Malformed scope strings
// are a deployment misconfiguration and fail construction, so that startup
// halts rather than degrading per request.
func NewRoleTable(templates map[string]string) (*RoleTable, error) {
	parsed := make(map[string][]scope.Grant, len(templates))
	for role, list := range templates {
		grants, err := scope.ParseList(list)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", role, err)
		}
		parsed[role] = grants
	}
	return &RoleTable{scopes: parsed}, nil
}

// Scopes returns the grants for a role. Unknown roles get no grants.
func (t *RoleTable) Scopes(role string) []scope.Grant {
	return t.scopes[role]
}

// Known reports whether the role exists in the table.
func (t *RoleTable) Known(role string) bool {
	_, ok := t.scopes[role]
	return ok
}
