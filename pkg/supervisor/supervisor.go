// Package supervisor runs audits as subprocesses and consumes their
// progress-event streams: frames on a dedicated pipe in queue mode,
// sentinel-prefixed stdout lines in fallback mode. It owns subprocess
// lifecycle (spawn, cooperative termination, kill) and stream validation.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/transport"
)

// termGrace is how long a SIGTERMed audit gets to wind down before
// SIGKILL.
const termGrace = 10 * time.Second

// EventHandler receives every progress event as it arrives, in order.
type EventHandler func(ev models.ProgressEvent)

// Options configure one supervised audit.
type Options struct {
	Tier        models.Tier
	VerdictMode models.VerdictMode

	// Mode forces the subprocess transport. Empty lets the subprocess
	// apply its own flag > env > rollout selection.
	Mode transport.Mode

	// Validate makes the subprocess emit on both transports and fails
	// the run if the streams diverge.
	Validate bool

	// OnEvent receives progress events. May be nil.
	OnEvent EventHandler
}

// Supervisor spawns and babysits audit subprocesses.
type Supervisor struct {
	cfg *config.Config

	// binary is the audit executable, normally the running binary itself.
	binary string
}

// New creates a supervisor that re-executes the current binary for
// audits. An explicit binary path overrides (tests).
func New(cfg *config.Config, binary string) (*Supervisor, error) {
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own binary: %w", err)
		}
		binary = self
	}
	return &Supervisor{cfg: cfg, binary: binary}, nil
}

// RunAudit executes one audit subprocess and returns its final report.
// Cancelling ctx sends SIGTERM and escalates to SIGKILL after a grace
// period.
func (s *Supervisor) RunAudit(ctx context.Context, targetURL string, opts Options) (report *models.FinalReport, err error) {
	began := time.Now()
	defer func() {
		metricAuditSeconds.Observe(time.Since(began).Seconds())
		result := "completed"
		if err != nil {
			result = "failed"
		}
		metricAudits.WithLabelValues(result).Inc()
	}()

	args := []string{"audit", targetURL, "--tier", string(opts.Tier)}
	if opts.VerdictMode != "" {
		args = append(args, "--verdict-mode", string(opts.VerdictMode))
	}
	switch {
	case opts.Validate:
		args = append(args, "--validate-ipc")
	case opts.Mode == transport.ModeQueue:
		args = append(args, "--use-queue-ipc")
	case opts.Mode == transport.ModeStdout:
		args = append(args, "--use-stdout")
	}

	cmd := exec.Command(s.binary, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	// The frame pipe lands on fd 3 in the child (first ExtraFiles slot).
	frameRead, frameWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("frame pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{frameWrite}

	if err := cmd.Start(); err != nil {
		_ = frameRead.Close()
		_ = frameWrite.Close()
		return nil, fmt.Errorf("start audit subprocess: %w", err)
	}
	_ = frameWrite.Close() // child holds the write end now

	slog.Info("Audit subprocess started",
		"pid", cmd.Process.Pid, "url", targetURL, "tier", opts.Tier)

	collector := newCollector(opts.OnEvent)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drainFrames(frameRead, collector)
	}()
	go func() {
		defer wg.Done()
		drainLines(stdout, collector)
	}()

	waitErr := s.waitWithCancel(ctx, cmd)
	_ = frameRead.Close()
	wg.Wait()

	if opts.Validate {
		if err := transport.CompareStreams(collector.queueEvents, collector.stdoutEvents); err != nil {
			return nil, fmt.Errorf("%w: transport validation failed: %v", models.ErrTransport, err)
		}
		slog.Info("Transport validation passed",
			"events", len(collector.queueEvents))
	}

	report = collector.report()
	if waitErr != nil {
		if report != nil {
			// Forced verdicts can coexist with a non-zero exit.
			slog.Warn("Audit subprocess exited non-zero but produced a report", "error", waitErr)
			return report, nil
		}
		return nil, fmt.Errorf("audit subprocess: %w", waitErr)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: subprocess ended without a result event", models.ErrTransport)
	}
	return report, nil
}

// waitWithCancel waits for the subprocess, translating ctx cancellation
// into SIGTERM then SIGKILL.
func (s *Supervisor) waitWithCancel(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	slog.Info("Cancelling audit subprocess", "pid", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-done:
		return err
	case <-time.After(termGrace):
		slog.Warn("Audit subprocess ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		return <-done
	}
}

// collector funnels both streams, preserves them for validation, and
// captures the final report from the audit_result event.
type collector struct {
	mu           sync.Mutex
	onEvent      EventHandler
	queueEvents  []models.ProgressEvent
	stdoutEvents []models.ProgressEvent
	resultData   []byte
	passthrough  strings.Builder
}

func newCollector(onEvent EventHandler) *collector {
	return &collector{onEvent: onEvent}
}

func (c *collector) add(ev models.ProgressEvent, mode transport.Mode) {
	metricEvents.WithLabelValues(ev.Type, string(mode)).Inc()

	c.mu.Lock()
	if mode == transport.ModeQueue {
		c.queueEvents = append(c.queueEvents, ev)
	} else {
		c.stdoutEvents = append(c.stdoutEvents, ev)
	}
	if ev.Type == models.EventAuditResult && len(ev.Data) > 0 {
		c.resultData = ev.Data
	}
	handler := c.onEvent
	c.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

func (c *collector) addPassthrough(line string) {
	c.mu.Lock()
	c.passthrough.WriteString(line)
	c.passthrough.WriteByte('\n')
	c.mu.Unlock()
}

// report decodes the final report, preferring the audit_result payload
// and falling back to the JSON document on plain stdout.
func (c *collector) report() *models.FinalReport {
	c.mu.Lock()
	data := c.resultData
	plain := c.passthrough.String()
	c.mu.Unlock()

	if len(data) > 0 {
		var r models.FinalReport
		if err := json.Unmarshal(data, &r); err == nil {
			return &r
		}
		slog.Warn("Unparsable audit_result payload, trying stdout")
	}
	if idx := strings.Index(plain, "{"); idx >= 0 {
		var r models.FinalReport
		if err := json.Unmarshal([]byte(plain[idx:]), &r); err == nil {
			return &r
		}
	}
	return nil
}

func drainFrames(r io.Reader, c *collector) {
	fr := transport.NewFrameReader(r)
	for {
		ev, err := fr.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Frame stream ended abnormally", "error", err)
			}
			return
		}
		c.add(ev, transport.ModeQueue)
	}
}

func drainLines(r io.Reader, c *collector) {
	ls := transport.NewLineScanner(r, c.addPassthrough)
	for {
		ev, err := ls.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Stdout stream ended abnormally", "error", err)
			}
			return
		}
		c.add(ev, transport.ModeStdout)
	}
}
