// Package phases implements the audit pipeline's phase handlers: scout,
// security, vision, graph, judge, and the forced-verdict path. Each
// handler mutates the shared audit state and reports progress through a
// Reporter; sequencing and budget enforcement live in the orchestrator.
package phases

import (
	"context"

	"github.com/trustlens/trustlens/pkg/models"
)

// Scout fetches one page and returns what it observed. Implementations
// must honor ctx cancellation.
type Scout interface {
	Fetch(ctx context.Context, url string) (*models.ScoutEvidence, error)
}

// Vision inspects scouted pages for dark patterns. Each call counts
// against the AI-call budget.
type Vision interface {
	Inspect(ctx context.Context, evidence []models.ScoutEvidence) ([]models.Finding, error)
}

// Reporter receives progress events from phase handlers. The
// orchestrator backs it with the active transport emitter.
type Reporter interface {
	Emit(ev models.ProgressEvent)
}

// NopReporter discards all events. Used in tests and dry runs.
type NopReporter struct{}

func (NopReporter) Emit(models.ProgressEvent) {}

// progress emits a step-level progress event for a phase. Pct must be
// monotone within a phase; callers own that invariant.
func progress(r Reporter, phase, step string, pct int, detail string, summary map[string]string) {
	ev := models.NewProgressEvent(models.EventStatsUpdate, phase)
	ev.Step = step
	ev.Pct = pct
	ev.Detail = detail
	ev.Summary = summary
	r.Emit(ev)
}
