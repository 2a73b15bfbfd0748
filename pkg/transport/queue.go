package transport

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trustlens/trustlens/pkg/models"
)

// QueueEmitter is the queue-mode send side: events enter a bounded
// channel and a writer goroutine encodes them as frames on w (the pipe
// to the supervisor).
//
// Emit is non-blocking on the happy path. When the buffer is full it
// waits up to the send timeout, then drops the oldest buffered event and
// retries once, logging a warning. A write failure on the pipe is
// unrecoverable: every subsequent Emit returns the error so the caller
// can fall back.
type QueueEmitter struct {
	ch          chan models.ProgressEvent
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	writeErr atomic.Value // error
	dropped  atomic.Int64
}

// NewQueueEmitter creates a queue emitter writing frames to w.
func NewQueueEmitter(w io.Writer, capacity int, sendTimeout time.Duration) *QueueEmitter {
	e := &QueueEmitter{
		ch:          make(chan models.ProgressEvent, capacity),
		sendTimeout: sendTimeout,
	}
	e.wg.Add(1)
	go e.writeLoop(w)
	return e
}

func (e *QueueEmitter) writeLoop(w io.Writer) {
	defer e.wg.Done()
	for ev := range e.ch {
		if e.writeErr.Load() != nil {
			continue // drain without writing after a failure
		}
		if err := WriteFrame(w, ev); err != nil {
			e.writeErr.Store(err)
			slog.Warn("Queue transport write failed", "error", err)
		}
	}
}

// Emit enqueues an event for frame delivery.
func (e *QueueEmitter) Emit(ev models.ProgressEvent) error {
	if err, ok := e.writeErr.Load().(error); ok && err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("%w: emitter closed", models.ErrTransport)
	}

	select {
	case e.ch <- ev:
		return nil
	default:
	}

	// Buffer full: bounded wait, then drop-oldest with a single retry.
	timer := time.NewTimer(e.sendTimeout)
	defer timer.Stop()
	select {
	case e.ch <- ev:
		return nil
	case <-timer.C:
	}

	select {
	case old := <-e.ch:
		e.dropped.Add(1)
		slog.Warn("Queue transport full, dropped oldest event",
			"dropped_type", old.Type, "dropped_total", e.dropped.Load())
	default:
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
		slog.Warn("Queue transport full, event lost", "type", ev.Type)
	}
	return nil
}

// Dropped returns the number of events dropped due to backpressure.
func (e *QueueEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Mode returns ModeQueue.
func (e *QueueEmitter) Mode() Mode { return ModeQueue }

// Close flushes buffered events and stops the writer goroutine.
func (e *QueueEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	e.wg.Wait()
	if err, ok := e.writeErr.Load().(error); ok {
		return err
	}
	return nil
}

// ChannelEmitter is the in-process variant of queue mode: the supervisor
// (or a test) consumes the bounded channel directly. Same backpressure
// contract as QueueEmitter.
type ChannelEmitter struct {
	ch          chan models.ProgressEvent
	sendTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewChannelEmitter creates an in-process queue emitter.
func NewChannelEmitter(capacity int, sendTimeout time.Duration) *ChannelEmitter {
	return &ChannelEmitter{
		ch:          make(chan models.ProgressEvent, capacity),
		sendTimeout: sendTimeout,
	}
}

// Events is the receive side consumed by the supervisor reader.
func (e *ChannelEmitter) Events() <-chan models.ProgressEvent { return e.ch }

// Emit enqueues an event, dropping the oldest on sustained backpressure.
func (e *ChannelEmitter) Emit(ev models.ProgressEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("%w: emitter closed", models.ErrTransport)
	}

	select {
	case e.ch <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(e.sendTimeout)
	defer timer.Stop()
	select {
	case e.ch <- ev:
		return nil
	case <-timer.C:
	}

	select {
	case <-e.ch:
		e.dropped.Add(1)
		slog.Warn("Event channel full, dropped oldest event", "dropped_total", e.dropped.Load())
	default:
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
	return nil
}

// Mode returns ModeQueue.
func (e *ChannelEmitter) Mode() Mode { return ModeQueue }

// Close closes the channel; the reader drains whatever is buffered.
func (e *ChannelEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.ch)
	return nil
}
