package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	var (
		identity string
		role     string
		tier     string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Mint a session JWT",
		Long: `Mint a signed session JWT for an identity, usable as the session cookie
or for testing against a running gateway. The JWT is signed with the
configured session secret, so it only validates against a gateway using
the same secret.`,
		Example: `  airwave session --identity alice --role user
  airwave session --identity ops-1 --role admin --tier unlimited`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(identity, role, tier)
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Identity the session belongs to (required)")
	cmd.Flags().StringVar(&role, "role", "user", "Role granted to the session")
	cmd.Flags().StringVar(&tier, "tier", "basic", "Rate tier for the session (basic, pro, unlimited)")
	cmd.MarkFlagRequired("identity")

	return cmd
}

func runSession(identity, role, tierName string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tier, err := parseTier(tierName)
	if err != nil {
		return err
	}
	roles, err := cfg.RoleTable()
	if err != nil {
		return fmt.Errorf("build role table: %w", err)
	}
	if !roles.Known(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	authSvc, err := buildAuthService(cfg, nil)
	if err != nil {
		return err
	}
	token, err := authSvc.IssueSession(identity, role, tier)
	if err != nil {
		return fmt.Errorf("mint session: %w", err)
	}

	fmt.Printf("Session for %s (role=%s, tier=%s, ttl=%s):\n", identity, role, tier, cfg.Auth.SessionTTL)
	fmt.Println()
	fmt.Println("  " + token)
	fmt.Println()
	fmt.Printf("  Use as cookie: %s=%s\n", cfg.Auth.SessionCookie, token)
	return nil
}
