package transport

import (
	"log/slog"
	"sync"

	"github.com/trustlens/trustlens/pkg/models"
)

// FallbackEmitter wraps a primary (queue) emitter with a stdout
// fallback. The first unrecoverable primary failure switches to the
// fallback for the remainder of the audit: the switch is an explicit
// state transition announced by a mode_switch event, not a caught
// exception bubble.
type FallbackEmitter struct {
	mu       sync.Mutex
	primary  Emitter
	fallback Emitter
	switched bool
}

// NewFallbackEmitter wraps primary with fallback.
func NewFallbackEmitter(primary, fallback Emitter) *FallbackEmitter {
	return &FallbackEmitter{primary: primary, fallback: fallback}
}

// Emit sends through the active emitter, switching on primary failure.
// An error return means the fallback itself failed — fatal for the audit.
func (f *FallbackEmitter) Emit(ev models.ProgressEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.switched {
		err := f.primary.Emit(ev)
		if err == nil {
			return nil
		}
		f.switched = true
		slog.Warn("Primary transport failed, switching to stdout fallback", "error", err)
		_ = f.primary.Close()

		sw := models.NewProgressEvent(models.EventModeSwitch, "")
		sw.Detail = "queue transport failed; continuing on stdout"
		sw.Summary = map[string]string{
			"from":   string(ModeQueue),
			"to":     string(ModeStdout),
			"reason": err.Error(),
		}
		if swErr := f.fallback.Emit(sw); swErr != nil {
			return swErr
		}
		// Re-send the event that hit the failure so it isn't lost.
	}
	return f.fallback.Emit(ev)
}

// Mode returns the currently active mode.
func (f *FallbackEmitter) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switched {
		return f.fallback.Mode()
	}
	return f.primary.Mode()
}

// Switched reports whether the fallback path is active.
func (f *FallbackEmitter) Switched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.switched
}

// Close closes whichever emitters are still open.
func (f *FallbackEmitter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	if !f.switched {
		firstErr = f.primary.Close()
	}
	if err := f.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
