package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/service"
	"github.com/airwavehq/airwave/internal/store"
)

func newTestServer(t *testing.T) (*Server, *service.AuthService, *service.Issuer) {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	roles, err := model.NewRoleTable(model.DefaultRoleScopes)
	if err != nil {
		t.Fatalf("role table: %v", err)
	}

	authSvc := service.NewAuthService(st, roles, service.AuthConfig{
		SessionSecret: "test-secret-key",
		SessionCookie: "airwave_session",
		SessionTTL:    time.Hour,
		GuestTTL:      time.Hour,
	})
	gate := ratelimit.NewGate(ratelimit.NewMemoryStore(ratelimit.MemoryConfig{}), false, nil)
	issuer := service.NewIssuer(st, gate, service.IssuerConfig{MaxActiveTokens: 3, Cooldown: 0})

	cfg := DefaultConfig()
	cfg.IPRatePerMinute = 0 // keep the flood guard out of unit tests
	logger := slog.New(slog.DiscardHandler)
	srv := New(cfg, authSvc, issuer, gate, model.DefaultTierLimits, logger)
	return srv, authSvc, issuer
}

func doRequest(srv *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, r)
	return rr
}

func TestHealthAndStatusArePublic(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/v1/system/health", "/v1/system/status"} {
		rr := doRequest(srv, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rr.Code)
		}
	}
}

func TestWriteRouteRejectsAnonymous(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(srv, httptest.NewRequest("POST", "/v1/stations/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestReadRouteAllowsAnonymousGuest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(srv, httptest.NewRequest("GET", "/v1/stations/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
}

func TestGuestTokenFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(srv, httptest.NewRequest("POST", "/v1/auth/guest", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("guest issuance: status = %d", rr.Code)
	}
	var guest struct {
		GuestToken string `json:"guestToken"`
		GuestID    string `json:"guestId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &guest); err != nil {
		t.Fatalf("decode: %v", err)
	}

	r := httptest.NewRequest("GET", "/v1/auth/whoami", nil)
	r.Header.Set("X-Guest-Token", guest.GuestToken)
	rr = doRequest(srv, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("whoami: status = %d (body %s)", rr.Code, rr.Body.String())
	}
	var who struct {
		Kind       string `json:"kind"`
		IdentityID string `json:"identityId"`
	}
	json.Unmarshal(rr.Body.Bytes(), &who)
	if who.Kind != "guest" || who.IdentityID != guest.GuestID {
		t.Errorf("whoami = %+v", who)
	}

	// Guests can read stations but not write them.
	r = httptest.NewRequest("GET", "/v1/stations/", nil)
	r.Header.Set("X-Guest-Token", guest.GuestToken)
	if rr := doRequest(srv, r); rr.Code != http.StatusOK {
		t.Errorf("guest read: status = %d", rr.Code)
	}
	r = httptest.NewRequest("POST", "/v1/stations/", nil)
	r.Header.Set("X-Guest-Token", guest.GuestToken)
	if rr := doRequest(srv, r); rr.Code != http.StatusForbidden {
		t.Errorf("guest write: status = %d, want 403", rr.Code)
	}
}

func TestSessionWriteFlow(t *testing.T) {
	srv, authSvc, _ := newTestServer(t)

	session, err := authSvc.IssueSession("user-9", model.RoleUser, model.TierBasic)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// The user template grants write:stations; the request clears the
	// pipeline and reaches the (unimplemented) domain handler.
	r := httptest.NewRequest("POST", "/v1/stations/", nil)
	r.AddCookie(&http.Cookie{Name: "airwave_session", Value: session})
	rr := doRequest(srv, r)
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501 past the pipeline (body %s)", rr.Code, rr.Body.String())
	}

	// The same template lacks write:bands.
	r = httptest.NewRequest("POST", "/v1/bands/", nil)
	r.AddCookie(&http.Cookie{Name: "airwave_session", Value: session})
	rr = doRequest(srv, r)
	if rr.Code != http.StatusForbidden {
		t.Errorf("bands write: status = %d, want 403", rr.Code)
	}
	var denial model.DenialResponse
	json.Unmarshal(rr.Body.Bytes(), &denial)
	if len(denial.MissingPermissions) != 1 || denial.MissingPermissions[0] != "write:bands" {
		t.Errorf("missingPermissions = %v", denial.MissingPermissions)
	}
}

func TestTokenLifecycleOverHTTP(t *testing.T) {
	srv, authSvc, _ := newTestServer(t)

	admin, err := authSvc.IssueSession("admin-1", model.RoleAdmin, model.TierUnlimited)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	withAdmin := func(r *http.Request) *http.Request {
		r.AddCookie(&http.Cookie{Name: "airwave_session", Value: admin})
		return r
	}

	// Issue a token scoped to station writes.
	body, _ := json.Marshal(map[string]any{
		"tier":   "pro",
		"scopes": []string{"write:stations", "read:stations"},
	})
	r := withAdmin(httptest.NewRequest("POST", "/v1/tokens/", bytes.NewReader(body)))
	r.Header.Set("Content-Type", "application/json")
	rr := doRequest(srv, r)
	if rr.Code != http.StatusCreated {
		t.Fatalf("issue: status = %d (body %s)", rr.Code, rr.Body.String())
	}
	var issued struct {
		Token  model.Token `json:"token"`
		Secret string      `json:"secret"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode issue: %v", err)
	}
	if issued.Secret == "" {
		t.Fatal("expected one-time raw secret")
	}

	// The bearer secret authorizes station writes but not operator writes.
	r = httptest.NewRequest("POST", "/v1/stations/", nil)
	r.Header.Set("Authorization", "Bearer "+issued.Secret)
	if rr := doRequest(srv, r); rr.Code != http.StatusNotImplemented {
		t.Errorf("bearer write: status = %d, want 501 past the pipeline", rr.Code)
	}
	r = httptest.NewRequest("POST", "/v1/operators/", nil)
	r.Header.Set("Authorization", "Bearer "+issued.Secret)
	if rr := doRequest(srv, r); rr.Code != http.StatusForbidden {
		t.Errorf("bearer operator write: status = %d, want 403", rr.Code)
	}

	// List shows the token for its owner.
	rr = doRequest(srv, withAdmin(httptest.NewRequest("GET", "/v1/tokens/", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rr.Code)
	}

	// Revoke, then the bearer secret stops working everywhere.
	rr = doRequest(srv, withAdmin(httptest.NewRequest("DELETE", "/v1/tokens/"+issued.Token.ID, nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke: status = %d (body %s)", rr.Code, rr.Body.String())
	}
	r = httptest.NewRequest("POST", "/v1/stations/", nil)
	r.Header.Set("Authorization", "Bearer "+issued.Secret)
	if rr := doRequest(srv, r); rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked bearer: status = %d, want 401", rr.Code)
	}
}

func TestRevokeUnknownTokenReturns404(t *testing.T) {
	srv, authSvc, _ := newTestServer(t)

	admin, _ := authSvc.IssueSession("admin-1", model.RoleAdmin, model.TierUnlimited)
	r := httptest.NewRequest("DELETE", "/v1/tokens/nope", nil)
	r.AddCookie(&http.Cookie{Name: "airwave_session", Value: admin})
	if rr := doRequest(srv, r); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestRevokeRequiresOwnership(t *testing.T) {
	srv, authSvc, issuer := newTestServer(t)

	tok, _, err := issuer.Issue(httptest.NewRequest("GET", "/", nil).Context(), "owner-1", model.TierBasic, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A moderator session that is not the owner may not revoke it.
	other, _ := authSvc.IssueSession("user-2", model.RoleModerator, model.TierBasic)
	r := httptest.NewRequest("DELETE", "/v1/tokens/"+tok.ID, nil)
	r.AddCookie(&http.Cookie{Name: "airwave_session", Value: other})
	if rr := doRequest(srv, r); rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}
