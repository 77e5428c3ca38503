package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// selectTool asks the registry for a tool, then logs the choice on the run
// before anything is invoked.
func (rt *Runtime) selectTool(ctx context.Context, s *RunState, c tools.Capability) (tools.Selection, error) {
	sel, err := rt.Tools.Select(c, s.Payload.selectionContext(c))
	if err != nil {
		rt.record(ctx, s, EventToolSelected, map[string]any{
			"capability": string(c),
			"tool":       "",
			"rejected":   len(sel.Rejected),
			"error":      err.Error(),
		})
		return sel, err
	}

	s.ToolSelections = append(s.ToolSelections, ToolSelection{
		Stage:      s.Stage,
		Capability: c,
		Tool:       sel.Tool,
		Reason:     sel.Reason,
		Rejected:   sel.Rejected,
		At:         rt.now(),
	})
	rt.record(ctx, s, EventToolSelected, map[string]any{
		"capability": string(c),
		"tool":       sel.Tool,
		"reason":     sel.Reason,
	})
	return sel, nil
}

// backoff returns the delay before attempt+1: base doubled per attempt, capped.
func (rt *Runtime) backoff(attempt int) time.Duration {
	base := rt.Config.BaseBackoffDuration()
	ceiling := rt.Config.MaxBackoffDuration()
	d := base << (attempt - 1)
	if d <= 0 || (ceiling > 0 && d > ceiling) {
		return ceiling
	}
	return d
}

// invoke calls fn up to Config.MaxAttempts times, each bounded by the tool
// timeout. Only transient failures are retried. Every attempt is audited.
func invoke[T any](ctx context.Context, rt *Runtime, s *RunState, tool, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	timeout := rt.Config.ToolTimeoutDuration()
	limit := rt.Config.MaxAttempts

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		out, err := fn(callCtx)
		cancel()

		if err != nil && ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s %s after %s", ErrToolTimeout, tool, op, timeout)
		}

		details := map[string]any{
			"tool":      tool,
			"operation": op,
			"attempt":   attempt,
		}
		if err == nil {
			details["outcome"] = "ok"
			rt.record(ctx, s, EventToolAttempt, details)
			return out, nil
		}

		retry := retryable(err) && attempt < limit
		details["outcome"] = "error"
		details["error"] = err.Error()
		details["retry"] = retry
		rt.record(ctx, s, EventToolAttempt, details)

		if !retry {
			if retryable(err) {
				return zero, fmt.Errorf("%s %s: %d attempts: %w", tool, op, attempt, err)
			}
			return zero, fmt.Errorf("%s %s: %w", tool, op, err)
		}

		if err := rt.Sleep(ctx, rt.backoff(attempt)); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return zero, cause
			}
			return zero, err
		}
	}
}
