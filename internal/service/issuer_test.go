package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/airwavehq/airwave/internal/model"
)

func TestIssueReturnsRawSecretOnce(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	tok, raw, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, []string{"read:stations"}, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(raw, "awk_") {
		t.Errorf("raw secret %q missing prefix", raw)
	}
	if tok.TokenHash == raw {
		t.Error("raw secret must not be stored")
	}
	if !strings.HasPrefix(raw, tok.TokenPrefix) {
		t.Errorf("prefix %q does not identify secret %q", tok.TokenPrefix, raw)
	}

	stored, err := fx.store.GetToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if stored.TokenHash != tok.TokenHash {
		t.Error("stored hash mismatch")
	}
}

func TestIssueRejectsMalformedScopes(t *testing.T) {
	fx := newAuthFixture(t)

	_, _, err := fx.issuer.Issue(context.Background(), "owner-1", model.TierBasic, []string{"read:"}, nil)
	if err == nil {
		t.Fatal("expected error for malformed scope")
	}
}

func TestIssueActiveTokenCap(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	tok, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}

	// Cap of 1: a second issuance is blocked while the first is active,
	// even after the cooldown window.
	fx.clock.Advance(8 * 24 * time.Hour)
	if _, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil); !errors.Is(err, ErrIssuanceLimit) {
		t.Errorf("expected ErrIssuanceLimit, got %v", err)
	}

	// Revoking the first token frees the cap.
	if err := fx.issuer.Revoke(ctx, tok.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil); err != nil {
		t.Errorf("issue after revoke: %v", err)
	}
}

func TestIssueCooldown(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	tok, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	// Free the cap so only the cooldown gates the second issuance.
	fx.issuer.Revoke(ctx, tok.ID)

	fx.clock.Advance(24 * time.Hour)
	_, _, err = fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil)
	var cdErr *CooldownError
	if !errors.As(err, &cdErr) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cdErr.RetryAfter != 6*24*time.Hour {
		t.Errorf("RetryAfter = %v, want %v", cdErr.RetryAfter, 6*24*time.Hour)
	}

	// After the full cooldown elapses, issuance succeeds.
	fx.clock.Advance(6 * 24 * time.Hour)
	if _, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil); err != nil {
		t.Errorf("issue after cooldown: %v", err)
	}
}

func TestCooldownIsPerOwner(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	if _, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, nil); err != nil {
		t.Fatalf("owner-1 issue: %v", err)
	}
	if _, _, err := fx.issuer.Issue(ctx, "owner-2", model.TierBasic, nil, nil); err != nil {
		t.Errorf("owner-2 issue should not share owner-1 cooldown: %v", err)
	}
}

func TestValidate(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	expiry := fx.clock.Now().Add(48 * time.Hour)
	tok, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierPro, []string{"read:*"}, &expiry)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := fx.issuer.Validate(ctx, tok.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.ID != tok.ID {
		t.Errorf("Validate returned %q", got.ID)
	}

	if _, err := fx.issuer.Validate(ctx, "unknown-id"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown id: expected ErrInvalidToken, got %v", err)
	}
}

func TestRevocationIsFinal(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	// Token with an expiry far in the future, revoked now: validation must
	// keep failing at any later time before the expiry.
	expiry := fx.clock.Now().Add(365 * 24 * time.Hour)
	tok, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, &expiry)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := fx.issuer.Revoke(ctx, tok.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	for _, advance := range []time.Duration{0, time.Hour, 30 * 24 * time.Hour} {
		fx.clock.Advance(advance)
		if _, err := fx.issuer.Validate(ctx, tok.ID); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("after %v: expected ErrInvalidToken, got %v", advance, err)
		}
	}
}

func TestValidateExpiredComputedNotStored(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	expiry := fx.clock.Now().Add(time.Hour)
	tok, _, err := fx.issuer.Issue(ctx, "owner-1", model.TierBasic, nil, &expiry)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	fx.clock.Advance(2 * time.Hour)
	if _, err := fx.issuer.Validate(ctx, tok.ID); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	// The stored row is unchanged: expiry is derived, not a transition.
	stored, err := fx.store.GetToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if stored.Revoked {
		t.Error("expiry must not be written back as revocation")
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	fx := newAuthFixture(t)

	err := fx.issuer.Revoke(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown token id")
	}
}
