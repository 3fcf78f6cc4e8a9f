package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	serverURL string
	sessionID string
	timeout   time.Duration
	verbose   bool
	plain     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contractctl",
	Short: "Call an API and check its response against a contract",
	Long: `contractctl calls an HTTP API, then checks the JSON it returns against an
expected contract, either locally with the structural checker or through the
relay's model-backed validator.

Contracts may be JSON or YAML: a list of {field, type} entries, a JSON
Schema style object, or a tagged {"kind": ..., ...} document.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CONTRACT_RELAY_URL", "http://localhost:5000"), "relay base URL")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "test-session-123", "relay session id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 90*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "print results without terminal styling")

	rootCmd.AddCommand(callCmd, checkCmd, validateCmd, sessionCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
