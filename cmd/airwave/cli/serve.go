package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/airwavehq/airwave/internal/server"
	"github.com/airwavehq/airwave/internal/telemetry"
)

const banner = `
   _   ___ _____      _____   _____
  /_\ |_ _| _ \ \    / /_\ \ / / __|
 / _ \ | ||   /\ \/\/ / _ \ V /| _|
/_/ \_\___|_|_\ \_/\_/_/ \_\_/ |___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Airwave gateway",
		Long:  "Start the HTTP gateway that authorizes and rate-limits every request to the radio directory API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dev {
		cfg.Logging.Level = "debug"
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer st.Close()
	logger.Info("token store opened", "driver", cfg.Store.Driver)

	gate, err := buildGate(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("rate limiter ready",
		"backend", cfg.RateLimit.Backend,
		"fail_open", cfg.RateLimit.FailOpen,
	)

	authSvc, err := buildAuthService(cfg, st)
	if err != nil {
		return err
	}
	issuer := buildIssuer(cfg, st, gate)

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 30 * time.Second
	}
	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		IPRatePerMinute: cfg.Server.IPRatePerMinute,
		Version:         appVersion,
	}
	srv := server.New(srvCfg, authSvc, issuer, gate, cfg.TierLimits(), logger)

	startedAt := time.Now()
	tracker := telemetry.New(context.Background(), st, func() telemetry.Properties {
		active := 0
		if toks, err := st.ListTokens(context.Background()); err == nil {
			now := time.Now()
			for _, t := range toks {
				if t.Authorizes(now) {
					active++
				}
			}
		}
		return telemetry.Properties{
			Version:       appVersion,
			GoVersion:     runtime.Version(),
			OS:            runtime.GOOS,
			Arch:          runtime.GOARCH,
			StoreDriver:   cfg.Store.Driver,
			LimitBackend:  cfg.RateLimit.Backend,
			ActiveTokens:  active,
			DenialsServed: srv.DenialsServed(),
			UptimeHrs:     time.Since(startedAt).Hours(),
		}
	})
	tracker.Start()
	defer tracker.Shutdown()
	telemetry.PrintNotice()

	fmt.Printf("→ Airwave %s\n", appVersion)
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:  http://%s:%d/v1/system/health\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
