package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/server/middleware"
	"github.com/airwavehq/airwave/internal/service"
	"github.com/airwavehq/airwave/internal/store"
)

// TokenHandler serves the API-token lifecycle: issue, list, revoke.
// Tokens are always owned by the requesting principal; there is no
// cross-owner management surface.
type TokenHandler struct {
	issuer *service.Issuer
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(issuer *service.Issuer) *TokenHandler {
	return &TokenHandler{issuer: issuer}
}

type issueRequest struct {
	Tier      string   `json:"tier"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expiresIn,omitempty"` // duration, e.g. "720h"
}

type issueResponse struct {
	Success bool         `json:"success"`
	Token   *model.Token `json:"token"`
	Secret  string       `json:"secret"` // shown once, never retrievable again
}

// Issue creates a new API token for the requesting principal.
// POST /v1/tokens
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req issueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier := model.Tier(req.Tier)
	if req.Tier == "" {
		tier = p.Tier
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid expiresIn")
			return
		}
		t := time.Now().Add(d).UTC()
		expiresAt = &t
	}

	tok, secret, err := h.issuer.Issue(r.Context(), p.IdentityID, tier, req.Scopes, expiresAt)
	if err != nil {
		writeIssueError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueResponse{Success: true, Token: tok, Secret: secret})
}

func writeIssueError(w http.ResponseWriter, err error) {
	var cdErr *service.CooldownError
	switch {
	case errors.Is(err, service.ErrIssuanceLimit):
		writeError(w, http.StatusConflict, "active token limit reached")
	case errors.As(err, &cdErr):
		retryAfter := int64(cdErr.RetryAfter.Round(time.Second).Seconds())
		writeJSON(w, http.StatusTooManyRequests, model.DenialResponse{
			Error:             "issuance cooldown active",
			RetryAfterSeconds: &retryAfter,
		})
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		writeError(w, http.StatusTooManyRequests, "cooldown store unavailable")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

type listResponse struct {
	Success bool           `json:"success"`
	Tokens  []*model.Token `json:"tokens"`
}

// List returns the requesting principal's tokens, newest first.
// GET /v1/tokens
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	tokens, err := h.issuer.List(r.Context(), p.IdentityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list tokens")
		return
	}
	if tokens == nil {
		tokens = []*model.Token{}
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Tokens: tokens})
}

// Revoke permanently deactivates one of the principal's tokens.
// DELETE /v1/tokens/{id}
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	// Ownership check before revocation; admins may revoke any token.
	tok, err := h.issuer.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load token")
		return
	}
	if tok.OwnerID != p.IdentityID && p.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "not the token owner")
		return
	}

	if err := h.issuer.Revoke(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "could not revoke token")
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}
