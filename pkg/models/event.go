package models

import "time"

// Progress-event types emitted by the audit process.
const (
	EventPhaseStart    = "phase_start"
	EventPhaseComplete = "phase_complete"
	EventPhaseError    = "phase_error"
	EventFinding       = "finding"
	EventScreenshot    = "screenshot"
	EventStatsUpdate   = "stats_update"
	EventModeSwitch    = "mode_switch"
	EventAuditResult   = "audit_result"
	EventAuditComplete = "audit_complete"
	EventAuditError    = "audit_error"
)

// Phase names used in progress events.
const (
	PhaseScout        = "scout"
	PhaseSecurity     = "security"
	PhaseVision       = "vision"
	PhaseGraph        = "graph"
	PhaseJudge        = "judge"
	PhaseForceVerdict = "force_verdict"
)

// ProgressEvent is the transport message between the audit process and
// its supervisor. Both transport modes carry the same event sequence;
// only the wire representation differs.
type ProgressEvent struct {
	Type   string `json:"type"`
	Phase  string `json:"phase,omitempty"`
	Step   string `json:"step,omitempty"`
	Pct    int    `json:"pct"` // 0..100, monotone within a phase
	Detail string `json:"detail,omitempty"`
	// Summary is a small flat key-value map (counts, statuses).
	Summary map[string]string `json:"summary,omitempty"`
	// Timestamp is RFC3339Nano. Excluded from stream equality checks.
	Timestamp string `json:"timestamp"`
	// Data carries binary payloads (screenshot bytes); JSON-base64 encoded.
	Data []byte `json:"data,omitempty"`
}

// NewProgressEvent creates an event stamped with the current time.
func NewProgressEvent(eventType, phase string) ProgressEvent {
	return ProgressEvent{
		Type:      eventType,
		Phase:     phase,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// EqualIgnoringTimestamp compares two events on every field except the
// timestamp. Used by transport validation mode.
func (e ProgressEvent) EqualIgnoringTimestamp(other ProgressEvent) bool {
	if e.Type != other.Type || e.Phase != other.Phase || e.Step != other.Step ||
		e.Pct != other.Pct || e.Detail != other.Detail {
		return false
	}
	if len(e.Summary) != len(other.Summary) {
		return false
	}
	for k, v := range e.Summary {
		if other.Summary[k] != v {
			return false
		}
	}
	if len(e.Data) != len(other.Data) {
		return false
	}
	for i := range e.Data {
		if e.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Terminal reports whether this event ends the stream for an audit.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventAuditComplete || e.Type == EventAuditError
}
