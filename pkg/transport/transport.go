// Package transport delivers ordered, typed progress events from the
// audit process to its supervisor.
//
// Two modes carry the same event sequence with different wire formats:
//
//   - queue (primary): length-prefixed JSON frames over a dedicated pipe
//     the supervisor passes to the audit subprocess, buffered through a
//     bounded channel drained by a writer goroutine.
//   - stdout (fallback): one sentinel-prefixed JSON line per event on
//     standard output, which the supervisor scans for.
//
// A queue-mode failure mid-audit switches the emitter to stdout for the
// remainder of the audit; the switch itself is an event, and ordering is
// preserved around it (in-flight events may be dropped and are reported
// in the switch event).
package transport

import (
	"github.com/trustlens/trustlens/pkg/models"
)

// Mode identifies a transport wire format.
type Mode string

const (
	ModeQueue  Mode = "queue"
	ModeStdout Mode = "stdout"
)

// Sentinel prefixes every fallback-mode event line. Chosen so that no
// plausible log line collides with it.
const Sentinel = "@@TRUSTLENS_EVT@@"

// Emitter is the non-blocking send side of the transport.
//
// Emit never blocks beyond the configured send timeout and never panics;
// a returned error means the emitter is unusable and the caller should
// fall back (see FallbackEmitter). Close flushes buffered events.
type Emitter interface {
	Emit(ev models.ProgressEvent) error
	Mode() Mode
	Close() error
}

// QueueFD is the file descriptor number the supervisor attaches the
// frame pipe to in the audit subprocess (first ExtraFiles entry).
const QueueFD = 3
