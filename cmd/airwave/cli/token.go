package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/service"
	"github.com/airwavehq/airwave/internal/store"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
		Long:  "Create, list, and revoke the API tokens used to authenticate against the gateway.",
	}

	cmd.AddCommand(newTokenCreateCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())

	return cmd
}

// ---------- token create ----------

func newTokenCreateCmd() *cobra.Command {
	var (
		owner  string
		tier   string
		scopes string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API token",
		Long:  "Issue a new API token for an owner. The raw secret is shown once and cannot be retrieved again.",
		Example: `  airwave token create --owner alice --tier pro --scopes "read:* write:stations"
  airwave token create --owner ci-bot --scopes "read:stations" --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenCreate(owner, tier, scopes, ttl)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Identity that owns the token (required)")
	cmd.Flags().StringVar(&tier, "tier", string(model.TierBasic), "Rate tier for the token (basic, pro, unlimited)")
	cmd.Flags().StringVar(&scopes, "scopes", "", "Space-separated scope grants (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (0 = never expires)")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("scopes")

	return cmd
}

func runTokenCreate(owner, tierName, scopes string, ttl time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tier, err := parseTier(tierName)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer st.Close()

	gate, err := buildGate(cfg, nil)
	if err != nil {
		return err
	}
	defer gate.Close()
	issuer := buildIssuer(cfg, st, gate)

	ctx := context.Background()
	var expiresAt *time.Time
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		expiresAt = &exp
	}

	tok, raw, err := issuer.Issue(ctx, owner, tier, strings.Fields(scopes), expiresAt)
	if err != nil {
		var cooldown *service.CooldownError
		switch {
		case errors.Is(err, service.ErrIssuanceLimit):
			return fmt.Errorf("owner %q already holds the maximum number of active tokens; revoke one first", owner)
		case errors.As(err, &cooldown):
			return fmt.Errorf("owner %q issued a token too recently; retry in %s", owner, cooldown.RetryAfter)
		default:
			return fmt.Errorf("issue token: %w", err)
		}
	}

	fmt.Println("Token created:")
	fmt.Println()
	fmt.Printf("  Token:  %s\n", raw)
	fmt.Printf("  ID:     %s\n", tok.ID)
	fmt.Printf("  Owner:  %s\n", tok.OwnerID)
	fmt.Printf("  Tier:   %s\n", tok.Tier)
	fmt.Printf("  Scopes: %s\n", strings.Join(tok.Scopes, " "))
	if tok.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this token now - it cannot be retrieved again.")
	return nil
}

// ---------- token list ----------

func newTokenListCmd() *cobra.Command {
	var (
		owner      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenList(owner, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only show tokens for this owner")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTokenList(owner string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	var tokens []*model.Token
	if owner != "" {
		tokens, err = st.ListTokensByOwner(ctx, owner)
	} else {
		tokens, err = st.ListTokens(ctx)
	}
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	}

	if len(tokens) == 0 {
		fmt.Println("No tokens found.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREFIX\tOWNER\tTIER\tSTATUS\tSCOPES")
	for _, t := range tokens {
		status := "active"
		switch {
		case t.Revoked:
			status = "revoked"
		case t.Expired(now):
			status = "expired"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.TokenPrefix, t.OwnerID, t.Tier, status, strings.Join(t.Scopes, " "))
	}
	return w.Flush()
}

// ---------- token revoke ----------

func newTokenRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke an API token",
		Long:  "Permanently revoke a token by ID. Revocation is terminal; a revoked token never authorizes again.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRevoke(args[0])
		},
	}
	return cmd
}

func runTokenRevoke(id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer st.Close()

	if err := st.RevokeToken(context.Background(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("token %q not found", id)
		}
		return fmt.Errorf("revoke token: %w", err)
	}

	fmt.Printf("Token %s revoked.\n", id)
	return nil
}
