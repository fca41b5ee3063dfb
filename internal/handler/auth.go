// Package handler exposes the HTTP surface of the authorization core:
// guest/session issuance, token management, and introspection endpoints.
// Domain record handlers (stations, bands, operators, regions) are thin
// consumers of the pipeline and live with the routing layer.
package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/airwavehq/airwave/internal/scope"
	"github.com/airwavehq/airwave/internal/server/middleware"
	"github.com/airwavehq/airwave/internal/service"
)

// AuthHandler serves guest-token issuance and principal introspection.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type guestResponse struct {
	Success    bool   `json:"success"`
	GuestToken string `json:"guestToken"`
	GuestID    string `json:"guestId"`
}

// Guest mints a short-lived guest token for anonymous browsing.
// POST /v1/auth/guest
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	guestID := "g-" + uuid.NewString()
	token, err := h.auth.IssueGuest(guestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue guest token")
		return
	}
	writeJSON(w, http.StatusCreated, guestResponse{
		Success:    true,
		GuestToken: token,
		GuestID:    guestID,
	})
}

type whoamiResponse struct {
	Success    bool     `json:"success"`
	IdentityID string   `json:"identityId"`
	Kind       string   `json:"kind"`
	Role       string   `json:"role,omitempty"`
	Tier       string   `json:"tier"`
	Scopes     []string `json:"scopes"`
}

// Whoami echoes the authorized principal attached by the pipeline.
// GET /v1/auth/whoami
func (h *AuthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "no principal on request")
		return
	}
	writeJSON(w, http.StatusOK, whoamiResponse{
		Success:    true,
		IdentityID: p.IdentityID,
		Kind:       string(p.Kind),
		Role:       p.Role,
		Tier:       string(p.Tier),
		Scopes:     scope.Strings(p.Scopes),
	})
}
