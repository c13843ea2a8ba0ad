package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamesacklin/alex/internal/tunnelclient"
	"github.com/jamesacklin/alex/internal/wordlist"
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
	subdomain string
	relayURL  string
	localAddr string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "alex-tunnel",
	Short: "Tunnel client",
	Long:  `Connects to a relay and exposes a local HTTP origin under a public subdomain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTunnel()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("alex-tunnel %s\n", Version)
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

	rootCmd.Flags().StringVar(&subdomain, "subdomain", os.Getenv("ALEX_TUNNEL_SUBDOMAIN"), "subdomain to claim (default: randomly generated)")
	rootCmd.Flags().StringVar(&relayURL, "relay", envOrDefault("ALEX_TUNNEL_RELAY_URL", "http://localhost:8080"), "relay base URL")
	rootCmd.Flags().StringVar(&localAddr, "local-addr", envOrDefault("ALEX_TUNNEL_LOCAL_ADDR", tunnelclient.DefaultLocalAddr), "local HTTP origin to proxy to")
	rootCmd.Flags().StringVar(&logLevel, "log-level", envOrDefault("ALEX_TUNNEL_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runTunnel() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("component", "alex-tunnel").Logger()

	if subdomain == "" {
		subdomain = wordlist.Generate()
		logger.Info().Str("subdomain", subdomain).Msg("no subdomain given, generated one")
	}

	cfg := tunnelclient.Config{Subdomain: subdomain, RelayURL: relayURL, LocalAddr: localAddr}.Normalize()
	wsURL := tunnelclient.RelayWebsocketURL(cfg.RelayURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().
		Str("subdomain", cfg.Subdomain).
		Str("relay", cfg.RelayURL).
		Str("local_addr", cfg.LocalAddr).
		Msg("tunnel client starting")

	return tunnelclient.Run(ctx, wsURL, cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
