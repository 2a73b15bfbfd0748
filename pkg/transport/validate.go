package transport

import (
	"fmt"

	"github.com/trustlens/trustlens/pkg/models"
)

// CompareStreams checks that two event streams are identical on every
// field except timestamps. Used by validation mode (--validate-ipc),
// where the audit emits every event on both transports at once and the
// supervisor requires matching streams. The mode_switch event is
// excluded from comparison since it exists only on a degraded run.
func CompareStreams(queueEvents, stdoutEvents []models.ProgressEvent) error {
	a := stripModeSwitch(queueEvents)
	b := stripModeSwitch(stdoutEvents)

	if len(a) != len(b) {
		return fmt.Errorf("stream length mismatch: queue=%d stdout=%d", len(a), len(b))
	}
	for i := range a {
		if !a[i].EqualIgnoringTimestamp(b[i]) {
			return fmt.Errorf("streams diverge at event %d: queue=%s/%s stdout=%s/%s",
				i, a[i].Type, a[i].Step, b[i].Type, b[i].Step)
		}
	}
	return nil
}

func stripModeSwitch(events []models.ProgressEvent) []models.ProgressEvent {
	out := make([]models.ProgressEvent, 0, len(events))
	for _, ev := range events {
		if ev.Type == models.EventModeSwitch {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// TeeEmitter sends every event through both transports. Validation mode
// only: the queue side failing is itself the signal validation exists to
// catch, so only a stdout failure is fatal.
type TeeEmitter struct {
	queue  Emitter
	stdout Emitter
}

// NewTeeEmitter duplicates events to queue and stdout emitters.
func NewTeeEmitter(queue, stdout Emitter) *TeeEmitter {
	return &TeeEmitter{queue: queue, stdout: stdout}
}

func (t *TeeEmitter) Emit(ev models.ProgressEvent) error {
	_ = t.queue.Emit(ev)
	return t.stdout.Emit(ev)
}

// Mode reports the primary mode under validation.
func (t *TeeEmitter) Mode() Mode { return ModeQueue }

func (t *TeeEmitter) Close() error {
	qErr := t.queue.Close()
	if err := t.stdout.Close(); err != nil {
		return err
	}
	return qErr
}
