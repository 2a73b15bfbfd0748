package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/supervisor"
	"github.com/trustlens/trustlens/pkg/transport"
)

func newSuperviseCmd() *cobra.Command {
	var (
		flagTier        string
		flagMode        string
		flagQueueIPC    bool
		flagStdout      bool
		flagValidate    bool
		flagJSON        bool
		flagMetricsAddr string
	)

	var flagWorkers int

	cmd := &cobra.Command{
		Use:   "supervise <url> [url...]",
		Short: "Run audits as supervised subprocesses",
		Long: `Spawn each audit in a subprocess, consume its progress-event stream
(frames over a dedicated pipe, or sentinel stdout lines), and print
either human-readable progress or the raw event stream as JSON.
Multiple URLs run through a bounded worker pool.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagQueueIPC && flagStdout {
				return fmt.Errorf("%w: --use-queue-ipc and --use-stdout are mutually exclusive", models.ErrInput)
			}
			mode := transport.Mode("")
			if flagQueueIPC {
				mode = transport.ModeQueue
			}
			if flagStdout {
				mode = transport.ModeStdout
			}
			return runSupervised(cmd.Context(), args, superviseOptions{
				tier:        models.Tier(flagTier),
				verdictMode: models.VerdictMode(flagMode),
				mode:        mode,
				validate:    flagValidate,
				jsonEvents:  flagJSON,
				metricsAddr: flagMetricsAddr,
				workers:     flagWorkers,
			})
		},
	}

	cmd.Flags().IntVar(&flagWorkers, "workers", 2,
		"Concurrent audit subprocesses when supervising multiple URLs")

	cmd.Flags().StringVar(&flagTier, "tier", string(models.TierStandard),
		"Audit tier: quick, standard, or deep")
	cmd.Flags().StringVar(&flagMode, "verdict-mode", "",
		"Verdict narrative mode: simple or expert")
	cmd.Flags().BoolVar(&flagQueueIPC, "use-queue-ipc", false,
		"Force the subprocess onto the structured queue transport")
	cmd.Flags().BoolVar(&flagStdout, "use-stdout", false,
		"Force the subprocess onto the stdout sentinel transport")
	cmd.Flags().BoolVar(&flagValidate, "validate-ipc", false,
		"Run in validation mode: both transports, streams must match")
	cmd.Flags().BoolVar(&flagJSON, "json", false,
		"Print raw progress events as JSON lines instead of progress text")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "",
		"Expose prometheus metrics on this address (e.g. :9102)")
	return cmd
}

type superviseOptions struct {
	tier        models.Tier
	verdictMode models.VerdictMode
	mode        transport.Mode
	validate    bool
	jsonEvents  bool
	metricsAddr string
	workers     int
}

func runSupervised(ctx context.Context, urls []string, opts superviseOptions) error {
	for _, u := range urls {
		if err := checkURL(u); err != nil {
			return err
		}
	}
	if !models.ValidTier(opts.tier) {
		return fmt.Errorf("%w: unknown tier %q", models.ErrInput, opts.tier)
	}

	cfg, err := initConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if opts.metricsAddr != "" {
		go func() {
			if err := supervisor.ServeMetrics(ctx, opts.metricsAddr); err != nil {
				slog.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	sup, err := supervisor.New(cfg, "")
	if err != nil {
		return err
	}
	auditOpts := supervisor.Options{
		Tier:        opts.tier,
		VerdictMode: opts.verdictMode,
		Mode:        opts.mode,
		Validate:    opts.validate,
		OnEvent:     eventPrinter(opts.jsonEvents),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if len(urls) == 1 {
		report, err := sup.RunAudit(ctx, urls[0], auditOpts)
		if err != nil {
			return err
		}
		return enc.Encode(report)
	}

	pool := supervisor.NewPool(sup, opts.workers)
	results := pool.Run(ctx, urls, auditOpts)
	if err := enc.Encode(results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("%d of %d audits failed", countFailed(results), len(results))
		}
	}
	return nil
}

func countFailed(results []supervisor.PoolResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// eventPrinter renders progress events to stderr, keeping stdout clean
// for the final report.
func eventPrinter(jsonEvents bool) supervisor.EventHandler {
	if jsonEvents {
		enc := json.NewEncoder(os.Stderr)
		return func(ev models.ProgressEvent) {
			_ = enc.Encode(ev)
		}
	}
	return func(ev models.ProgressEvent) {
		switch ev.Type {
		case models.EventPhaseStart:
			fmt.Fprintf(os.Stderr, "→ %s\n", ev.Phase)
		case models.EventPhaseComplete:
			fmt.Fprintf(os.Stderr, "✓ %s\n", ev.Phase)
		case models.EventPhaseError:
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", ev.Phase, ev.Detail)
		case models.EventFinding:
			fmt.Fprintf(os.Stderr, "  finding: %s (%s)\n", ev.Detail, ev.Summary["severity"])
		case models.EventModeSwitch:
			fmt.Fprintf(os.Stderr, "! transport switched to %s\n", ev.Summary["to"])
		case models.EventAuditComplete:
			fmt.Fprintf(os.Stderr, "done: score %s (%s)\n", ev.Summary["score"], ev.Summary["risk_level"])
		case models.EventAuditError:
			fmt.Fprintf(os.Stderr, "audit failed: %s\n", ev.Detail)
		}
	}
}
