// TrustLens CLI — runs forensic trust audits of web URLs, either
// in-process (audit) or as supervised subprocesses (supervise).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/version"
)

// Exit codes: 0 verdict reached, 1 audit failed/aborted, 2 bad input.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	flagConfigDir string
	flagVerbose   int
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trustlens",
		Short:         "Autonomous forensic trust audits of web URLs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(flagVerbose)
			loadDotEnv(flagConfigDir)
		},
	}

	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir",
		getEnv("CONFIG_DIR", "./config"), "Path to configuration directory")
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v",
		"Increase log verbosity (-v debug on own code, -vv everything)")

	root.AddCommand(newAuditCmd(), newSuperviseCmd(), newVersionCmd())
	return root
}

// setupLogging routes structured logs to stderr; stdout belongs to the
// event stream and the final report.
func setupLogging(verbosity int) {
	level := slog.LevelInfo
	switch {
	case verbosity == 1:
		level = slog.LevelDebug
	case verbosity >= 2:
		level = slog.Level(-8)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func loadDotEnv(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

// initConfig loads configuration, mapping failures to usage errors.
func initConfig() (*config.Config, error) {
	cfg, err := config.Initialize(flagConfigDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInput, err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		if errors.Is(err, models.ErrInput) {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}
