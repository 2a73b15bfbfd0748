// Package orchestrator drives the audit state machine: the cyclic
// scout → security → vision → graph → judge pipeline with budget
// enforcement, forced-verdict fallback, and progress-event emission.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/osint"
	"github.com/trustlens/trustlens/pkg/phases"
	"github.com/trustlens/trustlens/pkg/transport"
	"github.com/trustlens/trustlens/pkg/trust"
)

// consecutiveScoutFailureLimit triggers the forced-verdict path when the
// scout keeps failing and no evidence exists at all.
const consecutiveScoutFailureLimit = 3

// Phase handlers share this contract: mutate the state, report progress,
// return an error only for phase-level failure.
type phaseHandler interface {
	Run(ctx context.Context, state *models.AuditState) error
}

// Options tune a single audit run.
type Options struct {
	Tier        models.Tier
	VerdictMode models.VerdictMode

	// Scout and Vision replace the built-in collaborators (browser
	// scouts, model-backed analyzers). Nil selects the built-ins.
	Scout  phases.Scout
	Vision phases.Vision
}

// Orchestrator owns one audit at a time. Safe for a single Run with
// concurrent Cancel.
type Orchestrator struct {
	cfg     *config.Config
	emitter transport.Emitter
	engine  *osint.Engine
	feeds   *osint.ThreatFeeds

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds an orchestrator. The engine and feeds may be shared across
// audits; the emitter belongs to this audit process.
func New(cfg *config.Config, emitter transport.Emitter, engine *osint.Engine, feeds *osint.ThreatFeeds) *Orchestrator {
	return &Orchestrator{cfg: cfg, emitter: emitter, engine: engine, feeds: feeds}
}

// Cancel aborts the running audit cooperatively.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// reporter adapts the emitter to the phases.Reporter contract. Emit
// failures after fallback are recorded and abort the audit via cancel.
type reporter struct {
	emitter transport.Emitter
	state   *models.AuditState
	cancel  context.CancelFunc
}

func (r *reporter) Emit(ev models.ProgressEvent) {
	if err := r.emitter.Emit(ev); err != nil {
		slog.Error("Transport dead, aborting audit", "error", err)
		r.state.AddError(models.ErrorRecord{
			Phase: ev.Phase, Kind: models.KindTransport, Message: err.Error(), At: time.Now(),
		})
		r.cancel()
	}
}

// Run executes one complete audit. The returned report is non-nil
// whenever a verdict was reached, including forced verdicts; a nil
// report means the audit aborted.
func (o *Orchestrator) Run(ctx context.Context, targetURL string, opts Options) (*models.FinalReport, *models.AuditState, error) {
	tier := opts.Tier
	if !models.ValidTier(tier) {
		return nil, nil, fmt.Errorf("%w: unknown tier %q", models.ErrInput, tier)
	}
	mode := opts.VerdictMode
	if mode == "" {
		mode = o.cfg.Defaults.VerdictMode
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Defaults.AuditTimeout)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	state := models.NewAuditState(uuid.NewString(), targetURL, tier, mode, o.cfg.BudgetFor(tier))
	rep := &reporter{emitter: o.emitter, state: state, cancel: cancel}

	scout := opts.Scout
	if scout == nil {
		scout = phases.NewHTTPScout(nil, o.cfg.Defaults.ScoutTimeout)
	}
	vision := opts.Vision
	if vision == nil {
		vision = phases.NewHeuristicVision()
	}
	scorer := trust.NewScorer(o.cfg.Trust, o.cfg.Defaults.SiteTypeThreshold)
	analyzers := phases.BuiltinAnalyzers(o.enabledAnalyzers())

	handlers := map[string]phaseHandler{
		models.PhaseScout:        phases.NewScoutPhase(scout, rep),
		models.PhaseSecurity:     phases.NewSecurityPhase(analyzers, rep),
		models.PhaseVision:       phases.NewVisionPhase(vision, o.cfg.Defaults.ConfidenceThreshold, rep),
		models.PhaseGraph:        phases.NewGraphPhase(o.engine, o.feeds, rep),
		models.PhaseJudge:        phases.NewJudgePhase(scorer, o.cfg.Defaults.ConfidenceThreshold, rep),
		models.PhaseForceVerdict: phases.NewForceVerdictPhase(scorer, rep),
	}

	slog.Info("Audit started",
		"audit_id", state.AuditID, "url", targetURL, "tier", tier,
		"max_iterations", state.Budget.MaxIterations,
		"max_pages", state.Budget.MaxPages,
		"transport", o.emitter.Mode())

	o.runMachine(ctx, state, rep, handlers)

	report := o.finish(ctx, state, rep)
	if report == nil {
		return nil, state, fmt.Errorf("%w: audit aborted", models.ErrCancelled)
	}
	return report, state, nil
}

// runMachine walks the pipeline until a verdict is set or the audit
// aborts. Transitions, not phases, own the budget gate.
func (o *Orchestrator) runMachine(ctx context.Context, state *models.AuditState, rep *reporter, handlers map[string]phaseHandler) {
	scoutFailures := 0
	phase := models.PhaseScout
	state.Iteration = 1

	for {
		// The forced verdict still runs under a cancelled context so the
		// supervisor receives a final result instead of silence.
		if ctx.Err() != nil && phase != models.PhaseForceVerdict {
			state.SetStatus(models.StatusAborted)
			return
		}

		// Budget gate. Iterations and pages are hard; AI calls are soft
		// and shunt to the forced verdict instead of aborting.
		if phase != models.PhaseForceVerdict {
			if state.Iteration > state.Budget.MaxIterations {
				slog.Warn("Iteration budget exhausted, forcing verdict",
					"audit_id", state.AuditID, "iteration", state.Iteration)
				phase = models.PhaseForceVerdict
			} else if phase == models.PhaseScout && state.Counters.PagesScouted >= state.Budget.MaxPages {
				slog.Warn("Page budget exhausted, forcing verdict",
					"audit_id", state.AuditID, "pages", state.Counters.PagesScouted)
				phase = models.PhaseForceVerdict
			} else if state.Counters.AICalls >= state.Budget.MaxAICalls {
				slog.Warn("AI call budget exhausted, forcing verdict",
					"audit_id", state.AuditID, "ai_calls", state.Counters.AICalls)
				phase = models.PhaseForceVerdict
			}
		}

		err := o.runPhase(ctx, phase, state, rep, handlers[phase])

		switch phase {
		case models.PhaseScout:
			if err != nil {
				scoutFailures++
				if scoutFailures >= consecutiveScoutFailureLimit && len(state.ScoutEvidence) == 0 {
					slog.Warn("Repeated scout failure with no evidence, forcing verdict",
						"audit_id", state.AuditID, "failures", scoutFailures)
					phase = models.PhaseForceVerdict
					continue
				}
				if len(state.ScoutEvidence) == 0 {
					// Nothing to analyze yet; requeue the target and retry.
					// Retries ride on the failure counter, not the
					// iteration budget.
					delete(state.InvestigatedURLs, state.TargetURL)
					state.EnqueueURL(state.TargetURL)
					continue
				}
			} else {
				scoutFailures = 0
			}
			phase = models.PhaseSecurity

		case models.PhaseSecurity:
			phase = models.PhaseVision

		case models.PhaseVision:
			// A failed vision pass is a missing signal, not a dead audit.
			phase = models.PhaseGraph

		case models.PhaseGraph:
			phase = models.PhaseJudge

		case models.PhaseJudge:
			if err != nil {
				// Includes cancellation mid-judge: the forced verdict is
				// exempt from the abort check above.
				phase = models.PhaseForceVerdict
				continue
			}
			if state.Verdict != nil {
				state.SetStatus(models.StatusCompleted)
				return
			}
			// Judge asked for more evidence: next iteration.
			state.Iteration++
			phase = models.PhaseScout

		case models.PhaseForceVerdict:
			if state.Verdict != nil {
				state.SetStatus(models.StatusCompleted)
			} else {
				state.SetStatus(models.StatusAborted)
			}
			return
		}
	}
}

// runPhase executes one handler with its timeout and emits the
// phase_start / phase_complete / phase_error envelope.
func (o *Orchestrator) runPhase(ctx context.Context, phase string, state *models.AuditState, rep *reporter, handler phaseHandler) error {
	start := models.NewProgressEvent(models.EventPhaseStart, phase)
	start.Summary = map[string]string{"iteration": strconv.Itoa(state.Iteration)}
	rep.Emit(start)

	phaseCtx := ctx
	if phase == models.PhaseGraph && o.cfg.Defaults.GraphTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, o.cfg.Defaults.GraphTimeout)
		defer cancel()
	}

	began := time.Now()
	err := handler.Run(phaseCtx, state)
	elapsed := time.Since(began)

	if err != nil {
		slog.Warn("Phase failed", "audit_id", state.AuditID, "phase", phase,
			"elapsed", elapsed.Round(time.Millisecond), "error", err)
		ev := models.NewProgressEvent(models.EventPhaseError, phase)
		ev.Detail = err.Error()
		ev.Summary = map[string]string{"kind": string(models.KindOf(err))}
		rep.Emit(ev)
		return err
	}

	ev := models.NewProgressEvent(models.EventPhaseComplete, phase)
	ev.Pct = 100
	ev.Summary = map[string]string{
		"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
		"pages":      strconv.Itoa(state.Counters.PagesScouted),
		"ai_calls":   strconv.Itoa(state.Counters.AICalls),
	}
	rep.Emit(ev)
	return nil
}

// finish emits the terminal events and assembles the report.
func (o *Orchestrator) finish(ctx context.Context, state *models.AuditState, rep *reporter) *models.FinalReport {
	elapsed := time.Since(state.StartedAt).Seconds()

	if state.Status != models.StatusCompleted || state.Verdict == nil {
		ev := models.NewProgressEvent(models.EventAuditError, "")
		ev.Detail = "audit aborted before reaching a verdict"
		if err := ctx.Err(); err != nil {
			// "cancelled" or "timeout", matching the error taxonomy.
			ev.Detail = string(models.KindOf(err))
		}
		ev.Summary = map[string]string{"errors": strconv.Itoa(len(state.Errors))}
		rep.Emit(ev)
		slog.Error("Audit aborted", "audit_id", state.AuditID,
			"elapsed_s", fmt.Sprintf("%.1f", elapsed), "errors", len(state.Errors))
		return nil
	}

	report := models.BuildFinalReport(state, elapsed)

	// audit_result carries the full report; audit_complete closes the
	// stream. Result before completion, always.
	resultEv := models.NewProgressEvent(models.EventAuditResult, "")
	if payload, err := json.Marshal(report); err == nil {
		resultEv.Data = payload
	} else {
		resultEv.Detail = "report serialization failed: " + err.Error()
	}
	rep.Emit(resultEv)

	doneEv := models.NewProgressEvent(models.EventAuditComplete, "")
	doneEv.Pct = 100
	doneEv.Summary = map[string]string{
		"score":      strconv.Itoa(report.TrustScore),
		"risk_level": string(report.RiskLevel),
		"forced":     strconv.FormatBool(state.Verdict.Forced),
	}
	rep.Emit(doneEv)

	slog.Info("Audit completed", "audit_id", state.AuditID,
		"score", report.TrustScore, "risk", report.RiskLevel,
		"pages", report.PagesScanned, "elapsed_s", fmt.Sprintf("%.1f", elapsed))
	return report
}

func (o *Orchestrator) enabledAnalyzers() []string {
	if len(o.cfg.Defaults.EnabledAnalyzers) > 0 {
		return o.cfg.Defaults.EnabledAnalyzers
	}
	return []string{phases.AnalyzerHeaders, phases.AnalyzerTLS, phases.AnalyzerForms}
}
