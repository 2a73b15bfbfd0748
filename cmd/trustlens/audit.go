package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/orchestrator"
	"github.com/trustlens/trustlens/pkg/osint"
	"github.com/trustlens/trustlens/pkg/transport"
)

func newAuditCmd() *cobra.Command {
	var (
		flagTier     string
		flagMode     string
		flagQueueIPC bool
		flagStdout   bool
		flagValidate bool
		flagJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Run one audit in this process",
		Long: `Run a complete forensic audit of a URL and print the final report as
JSON on stdout. Progress events stream over the selected transport:
frames on fd 3 when a supervisor provides the pipe (queue mode), or
sentinel-prefixed stdout lines (fallback mode).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagQueueIPC && flagStdout {
				return fmt.Errorf("%w: --use-queue-ipc and --use-stdout are mutually exclusive", models.ErrInput)
			}
			forced := transport.Mode("")
			if flagQueueIPC {
				forced = transport.ModeQueue
			}
			if flagStdout {
				forced = transport.ModeStdout
			}
			return runAudit(cmd.Context(), args[0], models.Tier(flagTier),
				models.VerdictMode(flagMode), forced, flagValidate, flagJSON)
		},
	}

	cmd.Flags().StringVar(&flagTier, "tier", string(models.TierStandard),
		"Audit tier: quick, standard, or deep")
	cmd.Flags().StringVar(&flagMode, "verdict-mode", "",
		"Verdict narrative mode: simple or expert")
	cmd.Flags().BoolVar(&flagQueueIPC, "use-queue-ipc", false,
		"Force the structured queue transport")
	cmd.Flags().BoolVar(&flagStdout, "use-stdout", false,
		"Force the stdout sentinel transport")
	cmd.Flags().BoolVar(&flagValidate, "validate-ipc", false,
		"Emit events on both transports for stream validation")
	cmd.Flags().BoolVar(&flagJSON, "json", false,
		"Print the final report as a single machine-readable JSON line")
	return cmd
}

func runAudit(ctx context.Context, targetURL string, tier models.Tier, mode models.VerdictMode, forced transport.Mode, validate, jsonCompact bool) error {
	if err := checkURL(targetURL); err != nil {
		return err
	}
	if !models.ValidTier(tier) {
		return fmt.Errorf("%w: unknown tier %q", models.ErrInput, tier)
	}

	cfg, err := initConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	emitter := buildEmitter(cfg, forced, validate)
	defer func() {
		if err := emitter.Close(); err != nil {
			slog.Warn("Transport close failed", "error", err)
		}
	}()

	engine, feeds, cleanup := buildOSINT(ctx, cfg)
	defer cleanup()

	orch := orchestrator.New(cfg, emitter, engine, feeds)
	report, state, err := orch.Run(ctx, targetURL, orchestrator.Options{
		Tier:        tier,
		VerdictMode: mode,
	})
	if err != nil {
		return err
	}

	// The final report is the only plain-JSON document on stdout,
	// pretty-printed for humans unless --json asks for one line.
	enc := json.NewEncoder(os.Stdout)
	if !jsonCompact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write final report: %w", err)
	}
	if state.Verdict != nil && state.Verdict.Forced {
		slog.Warn("Verdict was forced", "audit_id", state.AuditID)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not an auditable http(s) URL: %q", models.ErrInput, raw)
	}
	return nil
}

// buildEmitter selects and assembles the transport. Queue mode always
// carries the stdout fallback; validation mode tees both.
func buildEmitter(cfg *config.Config, forced transport.Mode, validate bool) transport.Emitter {
	stdoutEmitter := transport.NewStdoutEmitter(os.Stdout)
	newQueue := func() transport.Emitter {
		pipe := os.NewFile(transport.QueueFD, "eventpipe")
		return transport.NewQueueEmitter(pipe, cfg.Transport.QueueCapacity, cfg.Transport.SendTimeout)
	}

	if validate {
		return transport.NewTeeEmitter(newQueue(), stdoutEmitter)
	}
	if transport.SelectMode(forced, cfg.Transport, nil) == transport.ModeQueue {
		return transport.NewFallbackEmitter(newQueue(), stdoutEmitter)
	}
	return stdoutEmitter
}

// buildOSINT assembles the fanout engine: threat feeds with hot reload,
// the configured cache backend, the reputation tracker, and every
// registrable source.
func buildOSINT(ctx context.Context, cfg *config.Config) (*osint.Engine, *osint.ThreatFeeds, func()) {
	feeds, err := osint.LoadThreatFeeds(cfg.OSINT.FeedsDir)
	if err != nil {
		slog.Warn("Threat feeds unavailable, continuing without them",
			"dir", cfg.OSINT.FeedsDir, "error", err)
		feeds = nil
	} else if err := feeds.Watch(ctx); err != nil {
		slog.Warn("Threat feed watcher unavailable", "error", err)
	}

	cache, cleanup := buildCache(ctx, cfg)
	engine := osint.NewEngine(cfg.OSINT, cache, osint.NewReputationTracker())
	for _, err := range osint.RegisterBuiltins(engine, cfg.OSINT, feeds) {
		slog.Warn("Skipping OSINT source", "error", err)
	}
	return engine, feeds, cleanup
}

// buildCache picks the cache backend by configuration precedence:
// redis > file > per-audit memory.
func buildCache(ctx context.Context, cfg *config.Config) (osint.Cache, func()) {
	if cfg.OSINT.RedisAddr != "" {
		redisCache, err := osint.NewRedisCache(ctx, cfg.OSINT.RedisAddr)
		if err == nil {
			slog.Info("Using redis OSINT cache", "addr", cfg.OSINT.RedisAddr)
			return redisCache, func() { _ = redisCache.Close() }
		}
		slog.Warn("Redis cache unavailable, falling back", "addr", cfg.OSINT.RedisAddr, "error", err)
	}
	if cfg.OSINT.CacheDir != "" {
		fileCache, err := osint.NewFileCache(cfg.OSINT.CacheDir)
		if err == nil {
			slog.Info("Using file OSINT cache", "dir", cfg.OSINT.CacheDir)
			return fileCache, func() {}
		}
		slog.Warn("File cache unavailable, falling back to memory", "dir", cfg.OSINT.CacheDir, "error", err)
	}
	return osint.NewMemoryCache(), func() {}
}
