package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/scope"
	"github.com/airwavehq/airwave/internal/service"
)

type contextKeyAuth string

// PrincipalKey is the context key for the authorized principal.
const PrincipalKey contextKeyAuth = "principal"

// Requirement is a route's declared authorization contract: the scope
// grants a caller must hold, and whether anonymous guest access is allowed.
type Requirement struct {
	Permissions []string
	AllowGuest  bool
}

// Pipeline sequences credential resolution, rate-limit charging, and scope
// matching for every guarded route. Each stage maps its failure to one
// terminal denial; nothing is swallowed silently.
type Pipeline struct {
	auth   *service.AuthService
	gate   *ratelimit.Gate
	tiers  map[model.Tier]model.TierLimit
	logger *slog.Logger

	denials atomic.Int64
}

// Denials reports how many requests this pipeline has denied since start.
func (p *Pipeline) Denials() int64 {
	return p.denials.Load()
}

func (p *Pipeline) deny(w http.ResponseWriter, status int, body model.DenialResponse) {
	p.denials.Add(1)
	writeDenial(w, status, body)
}

// NewPipeline creates a Pipeline over the resolver, the rate-limit gate,
// and the tier→limit table.
func NewPipeline(auth *service.AuthService, gate *ratelimit.Gate, tiers map[model.Tier]model.TierLimit, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{auth: auth, gate: gate, tiers: tiers, logger: logger}
}

// Guard returns the middleware enforcing a route requirement. The declared
// permissions are parsed here, at router construction: a malformed string
// is a programming error in the route table and panics at startup instead
// of degrading per request.
//
// Order per request: resolve credential (401) → charge the tier bucket
// (429) → match scopes (403) → attach the Principal and continue. The
// rate-limit unit is charged before the scope check, so a request denied
// for missing permissions has still consumed quota.
func (p *Pipeline) Guard(req Requirement) func(http.Handler) http.Handler {
	required, err := scope.ParseAll(req.Permissions)
	if err != nil {
		panic(fmt.Sprintf("route requirement: %v", err))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := p.resolve(r, req.AllowGuest)
			if err != nil {
				p.deny(w, http.StatusUnauthorized, model.DenialResponse{
					Error: err.Error(),
				})
				return
			}

			if denied := p.charge(w, r, principal); denied {
				return
			}

			if !scope.Satisfied(required, principal.Scopes) {
				missing := scope.Missing(required, principal.Scopes)
				p.deny(w, http.StatusForbidden, model.DenialResponse{
					Error:              "insufficient permissions",
					MissingPermissions: scope.Strings(missing),
				})
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve runs the credential resolver, substituting the anonymous guest
// principal when the route allows it and no credential is present. An
// invalid credential never falls back to guest access.
func (p *Pipeline) resolve(r *http.Request, allowGuest bool) (*model.Principal, error) {
	principal, err := p.auth.Resolve(r)
	if err == nil {
		return principal, nil
	}
	if errors.Is(err, service.ErrCredentialMissing) && allowGuest {
		return p.auth.GuestPrincipal(), nil
	}
	return nil, err
}

// charge consumes one rate-limit unit for the principal's tier. It writes
// the denial itself and reports whether the request was stopped. An
// unreachable counter store has already been resolved by the gate's
// fail-open/fail-closed policy.
func (p *Pipeline) charge(w http.ResponseWriter, r *http.Request, principal *model.Principal) (denied bool) {
	limit, ok := p.tiers[principal.Tier]
	if !ok {
		limit = p.tiers[model.TierBasic]
	}
	if limit.Unlimited() {
		return false
	}

	key := "rate:" + string(principal.Tier) + ":" + principal.IdentityID
	dec, err := p.gate.Charge(r.Context(), key, limit.Requests, limit.Window)
	if errors.Is(err, ratelimit.ErrStoreUnavailable) {
		p.deny(w, http.StatusTooManyRequests, model.DenialResponse{
			Error: "rate limit store unavailable",
		})
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
	}

	if !dec.Allowed {
		retryAfter := int64(0)
		if !dec.ResetAt.IsZero() {
			if d := time.Until(dec.ResetAt); d > 0 {
				retryAfter = int64(d.Round(time.Second).Seconds())
			}
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		p.deny(w, http.StatusTooManyRequests, model.DenialResponse{
			Error:             "rate limit exceeded",
			RetryAfterSeconds: &retryAfter,
		})
		p.logger.Warn("rate limit exceeded",
			"identity", principal.IdentityID,
			"tier", principal.Tier,
			"reset_at", dec.ResetAt,
		)
		return true
	}
	return false
}

// GetPrincipal extracts the authorized principal from the context. Returns
// nil for unguarded requests.
func GetPrincipal(ctx context.Context) *model.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*model.Principal); ok {
		return p
	}
	return nil
}

func writeDenial(w http.ResponseWriter, status int, body model.DenialResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
