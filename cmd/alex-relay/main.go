package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamesacklin/alex/internal/relay"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	listenAddr string
	baseDomain string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "alex-relay",
	Short: "Reverse tunnel relay",
	Long:  `Public-facing relay that terminates HTTP requests for registered subdomains and dispatches them over persistent tunnel-client connections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("alex-relay %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVar(&listenAddr, "listen", envOrDefault("ALEX_RELAY_LISTEN_ADDR", relay.DefaultListenAddr), "address to listen on")
	rootCmd.Flags().StringVar(&baseDomain, "base-domain", envOrDefault("ALEX_RELAY_BASE_DOMAIN", relay.DefaultBaseDomain), "base domain tenants are registered under")
	rootCmd.Flags().StringVar(&logLevel, "log-level", envOrDefault("ALEX_RELAY_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runRelay() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("component", "alex-relay").Logger()

	cfg := relay.Config{ListenAddr: listenAddr, BaseDomain: baseDomain}.Normalize()
	r := relay.New(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().Str("listen", cfg.ListenAddr).Str("base_domain", cfg.BaseDomain).Msg("relay starting")
	return r.ListenAndServe(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
