package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/trustlens/trustlens/pkg/models"
)

// StdoutEmitter is the fallback-mode send side: one sentinel-prefixed
// JSON line per event, flushed immediately. A serialization failure is
// logged and the event skipped; only a write failure on the stream
// itself is returned (and that is fatal, since there is nothing left to
// fall back to).
type StdoutEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutEmitter creates a fallback emitter writing to w
// (the process's standard output in production).
func NewStdoutEmitter(w io.Writer) *StdoutEmitter {
	return &StdoutEmitter{w: w}
}

// Emit writes one event line.
func (e *StdoutEmitter) Emit(ev models.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to serialize progress event, skipping", "type", ev.Type, "error", err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "%s%s\n", Sentinel, payload); err != nil {
		return fmt.Errorf("%w: stdout write: %v", models.ErrTransport, err)
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	return nil
}

// Mode returns ModeStdout.
func (e *StdoutEmitter) Mode() Mode { return ModeStdout }

// Close is a no-op; stdout belongs to the process.
func (e *StdoutEmitter) Close() error { return nil }

// ParseEventLine parses a fallback-mode line. Returns ok=false for lines
// without the sentinel (ordinary log output, the final result JSON).
func ParseEventLine(line string) (models.ProgressEvent, bool, error) {
	var ev models.ProgressEvent
	rest, found := strings.CutPrefix(line, Sentinel)
	if !found {
		return ev, false, nil
	}
	if err := json.Unmarshal([]byte(rest), &ev); err != nil {
		return ev, true, fmt.Errorf("%w: malformed event line: %v", models.ErrTransport, err)
	}
	return ev, true, nil
}
