package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateCheckpoint pauses the run for human review of a failed match.
// The engine persists the checkpoint record atomically with the paused state.
func CreateCheckpoint(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	reason := "match score below threshold"
	if s.MatchScore != nil {
		reason = fmt.Sprintf("match score %.4f below threshold %.2f", *s.MatchScore, rt.Config.MatchThreshold)
	}
	rt.pause(ctx, &s, PauseReview, StageDecision, reason)
	return s, Pause, nil
}

// ApplyDecision routes an accepted run on to RECONCILE and sends a rejected
// run to manual handling.
func ApplyDecision(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Decision == nil {
		return s, Halt, fmt.Errorf("%w: no decision recorded", ErrInternal)
	}

	rt.record(ctx, &s, EventRouteDecision, map[string]any{
		"decision":   string(*s.Decision),
		"decided_by": s.DecidedBy,
	})

	if *s.Decision == Reject {
		s.Status = StatusRequiresManual
		return s, Halt, nil
	}
	return s, Advance, nil
}

func (rt *Runtime) pause(ctx context.Context, s *RunState, kind PauseKind, resume Stage, reason string) {
	id := uuid.New()
	s.Status = StatusPaused
	s.Pause = &PauseRef{
		Kind:         kind,
		CheckpointID: id,
		ReviewURL:    fmt.Sprintf("%s/%s", strings.TrimRight(rt.Config.ReviewBaseURL, "/"), id),
		ResumeStage:  resume,
		Reason:       reason,
		CreatedAt:    rt.now(),
	}
	rt.record(ctx, s, EventCheckpoint, map[string]any{
		"checkpoint_id": id.String(),
		"kind":          string(kind),
		"resume_stage":  string(resume),
		"review_url":    s.Pause.ReviewURL,
		"reason":        reason,
	})
}
