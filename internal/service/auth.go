// Package service implements credential resolution and the token-issuance
// lifecycle. The resolver turns raw request metadata into an immutable
// Principal; the issuer is the write-path counterpart whose records the
// resolver reads back.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/scope"
	"github.com/airwavehq/airwave/internal/store"
)

var (
	// ErrCredentialMissing means no credential source was present on the
	// request.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrCredentialInvalid means a credential source was present but did
	// not validate (bad signature, unknown token, revoked, expired).
	// A present credential commits to its source; there is no fallthrough.
	ErrCredentialInvalid = errors.New("credential invalid or expired")
)

// Header and cookie conventions for the three credential sources.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIToken      = "X-API-Token"
	HeaderGuestToken    = "X-Guest-Token"
	bearerPrefix        = "Bearer "
)

// AuthConfig carries the resolver's validation parameters.
type AuthConfig struct {
	SessionSecret string
	SessionCookie string
	SessionTTL    time.Duration
	GuestTTL      time.Duration
	Now           func() time.Time
}

// AuthService resolves request credentials into Principals and mints the
// session and guest JWTs that the resolver later validates.
type AuthService struct {
	store  *store.Store
	roles  *model.RoleTable
	secret []byte
	cfg    AuthConfig
	now    func() time.Time
}

// NewAuthService creates an AuthService over the given token store and
// role→scope table.
func NewAuthService(st *store.Store, roles *model.RoleTable, cfg AuthConfig) *AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		store:  st,
		roles:  roles,
		secret: []byte(cfg.SessionSecret),
		cfg:    cfg,
		now:    now,
	}
}

// Resolve determines the request's credential source and validates it into
// a Principal. Sources are tried in a fixed order (session cookie, API
// token header, guest token) and the first present source decides the
// outcome. No source present yields ErrCredentialMissing.
func (s *AuthService) Resolve(r *http.Request) (*model.Principal, error) {
	if cookie, err := r.Cookie(s.cfg.SessionCookie); err == nil && cookie.Value != "" {
		return s.ValidateSession(cookie.Value)
	}

	if raw := tokenFromHeaders(r); raw != "" {
		return s.ValidateToken(r.Context(), raw)
	}

	if raw := r.Header.Get(HeaderGuestToken); raw != "" {
		return s.ValidateGuest(raw)
	}

	return nil, ErrCredentialMissing
}

func tokenFromHeaders(r *http.Request) string {
	if auth := r.Header.Get(HeaderAuthorization); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return r.Header.Get(HeaderAPIToken)
}

// ---------------------------------------------------------------------------
// Session credentials
// ---------------------------------------------------------------------------

type sessionClaims struct {
	Role string `json:"role"`
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// ValidateSession verifies a session JWT and derives the Principal's scopes
// from the role→scope template table.
func (s *AuthService) ValidateSession(tokenStr string) (*model.Principal, error) {
	claims := &sessionClaims{}
	if err := s.parseJWT(tokenStr, claims); err != nil {
		return nil, ErrCredentialInvalid
	}
	if !s.roles.Known(claims.Role) {
		return nil, ErrCredentialInvalid
	}

	tier := model.Tier(claims.Tier)
	if !model.ValidTier(tier) {
		tier = model.TierBasic
	}
	return &model.Principal{
		IdentityID: claims.Subject,
		Kind:       model.KindUser,
		Role:       claims.Role,
		Scopes:     s.roles.Scopes(claims.Role),
		Tier:       tier,
	}, nil
}

// IssueSession mints a signed session JWT for an identity.
func (s *AuthService) IssueSession(identityID, role string, tier model.Tier) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Role: role,
		Tier: string(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
			Issuer:    "airwave",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ---------------------------------------------------------------------------
// API token credentials
// ---------------------------------------------------------------------------

// ValidateToken looks up an opaque API token by hash and builds a Principal
// from the token's own scopes and tier, not the owner's role.
func (s *AuthService) ValidateToken(ctx context.Context, raw string) (*model.Principal, error) {
	tok, err := s.store.GetTokenByHash(ctx, store.HashToken(raw))
	if err != nil {
		return nil, ErrCredentialInvalid
	}
	if !tok.Authorizes(s.now()) {
		return nil, ErrCredentialInvalid
	}

	grants, err := scope.ParseAll(tok.Scopes)
	if err != nil {
		return nil, ErrCredentialInvalid
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateTokenLastUsed(context.Background(), tok.ID)

	return &model.Principal{
		IdentityID: tok.OwnerID,
		Kind:       model.KindToken,
		Scopes:     grants,
		Tier:       tok.Tier,
	}, nil
}

// ---------------------------------------------------------------------------
// Guest credentials
// ---------------------------------------------------------------------------

type guestClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateGuest verifies a short-lived guest JWT. The role is fixed to
// guest regardless of what the claim carries; a non-guest role claim is
// rejected outright.
func (s *AuthService) ValidateGuest(tokenStr string) (*model.Principal, error) {
	claims := &guestClaims{}
	if err := s.parseJWT(tokenStr, claims); err != nil {
		return nil, ErrCredentialInvalid
	}
	if claims.Role != model.RoleGuest {
		return nil, ErrCredentialInvalid
	}
	p := s.GuestPrincipal()
	if claims.Subject != "" {
		p.IdentityID = claims.Subject
	}
	return p, nil
}

// IssueGuest mints a short-lived guest JWT.
func (s *AuthService) IssueGuest(guestID string) (string, error) {
	now := s.now()
	claims := guestClaims{
		Role: model.RoleGuest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   guestID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.GuestTTL)),
			Issuer:    "airwave",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GuestPrincipal returns the anonymous guest Principal used on routes that
// allow guest access when no credential is present.
func (s *AuthService) GuestPrincipal() *model.Principal {
	return &model.Principal{
		IdentityID: "guest",
		Kind:       model.KindGuest,
		Role:       model.RoleGuest,
		Scopes:     s.roles.Scopes(model.RoleGuest),
		Tier:       model.TierBasic,
	}
}

func (s *AuthService) parseJWT(tokenStr string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
