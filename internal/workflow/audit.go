package workflow

import (
	"context"
	"log/slog"
)

// Audit event names.
const (
	EventStageTransition  = "stage_transition"
	EventToolSelected     = "tool_selected"
	EventToolAttempt      = "tool_attempt"
	EventRouteDecision    = "route_decision"
	EventCheckpoint       = "checkpoint_created"
	EventDecisionRecorded = "decision_recorded"
	EventNotification     = "notification_sent"
	EventNotifyFailed     = "notification_failed"
	EventArchived         = "payload_archived"
	EventArchiveFailed    = "archive_failed"
	EventRunCreated       = "run_created"
	EventRunCancelled     = "run_cancelled"
	EventRunRecovered     = "run_recovered"
	EventRunResumed       = "run_resumed"
	EventFlagRaised       = "flag_raised"
)

// record appends an audit entry to s and mirrors it to the structured log.
func (rt *Runtime) record(ctx context.Context, s *RunState, event string, details map[string]any) {
	s.Audit = append(s.Audit, AuditEntry{
		RunID:     s.RunID,
		Stage:     s.Stage,
		Event:     event,
		Timestamp: rt.now(),
		Details:   details,
	})

	attrs := make([]any, 0, 6+2*len(details))
	attrs = append(attrs, "run_id", s.RunID, "stage", s.Stage, "event", event)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	if event == EventNotifyFailed || event == EventArchiveFailed {
		level = slog.LevelWarn
	}
	rt.Logger.Log(ctx, level, "audit", attrs...)
}
