package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/pkg/pagination"
)

// Engine drives runs through the stage graph. Each run is driven by at most
// one goroutine at a time; state is persisted after every stage.
type Engine struct {
	rt     *Runtime
	store  Store
	stages map[Stage]StageFunc
	locks  *keyedMutex
	base   context.Context
	logger *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelCauseFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBaseContext ties in-flight drives to ctx: when it is done, drives stop
// after persisting the current stage and the run stays RUNNING for recovery.
func WithBaseContext(ctx context.Context) EngineOption {
	return func(e *Engine) { e.base = ctx }
}

// WithStage replaces the implementation of one stage.
func WithStage(stage Stage, fn StageFunc) EngineOption {
	return func(e *Engine) { e.stages[stage] = fn }
}

// NewEngine creates an engine over rt and store.
func NewEngine(rt *Runtime, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		rt:     rt,
		store:  store,
		stages: maps.Clone(DefaultStages()),
		locks:  newKeyedMutex(),
		base:   context.Background(),
		logger: rt.Logger.With("component", "engine"),
		active: make(map[uuid.UUID]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates a run for payload and drives it until it pauses or ends.
// A run that fails a stage or is cancelled while driving is returned with a
// nil error; the failure is on the state.
func (e *Engine) Start(ctx context.Context, payload Payload) (RunState, error) {
	s := NewRunState(uuid.New(), payload, e.rt.now())
	e.rt.record(ctx, &s, EventRunCreated, map[string]any{"source": payload.Source})

	unlock := e.locks.lock(s.RunID)
	defer unlock()

	created, err := e.store.Create(ctx, s)
	if err != nil {
		return s, fmt.Errorf("create run: %w", err)
	}

	e.logger.InfoContext(ctx, "run started", "run_id", created.RunID)
	return e.drive(ctx, created)
}

// Get returns the persisted state of a run.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (RunState, error) {
	return e.store.Load(ctx, id)
}

// Checkpoints returns the review checkpoints of a run, oldest first.
func (e *Engine) Checkpoints(ctx context.Context, id uuid.UUID) ([]Checkpoint, error) {
	if _, err := e.store.Load(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Checkpoints(ctx, id)
}

// List returns run summaries matching filter.
func (e *Engine) List(ctx context.Context, filter ListFilter, page pagination.PageRequest) ([]Summary, int, error) {
	return e.store.List(ctx, filter, page)
}

// Resume records the review decision on a paused run and drives it from the
// checkpoint's resume stage. It only decides a run that has no decision yet;
// later pauses of the same run are decided through ResumeCheckpoint so a
// repeated submission cannot be taken for a different checkpoint. Runs that
// are not paused are left untouched: ErrAlreadyDecided if a decision was
// recorded earlier, otherwise ErrInvalidStateTransition.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID, d Decision, decidedBy string) (RunState, error) {
	return e.resume(ctx, id, uuid.Nil, d, decidedBy)
}

// ResumeCheckpoint records a decision against one checkpoint. It fails with
// ErrAlreadyDecided unless that checkpoint is the run's open one.
func (e *Engine) ResumeCheckpoint(ctx context.Context, checkpointID uuid.UUID, d Decision, decidedBy string) (RunState, error) {
	cp, err := e.store.FindCheckpoint(ctx, checkpointID)
	if err != nil {
		return RunState{}, err
	}
	return e.resume(ctx, cp.RunID, cp.ID, d, decidedBy)
}

// FindCheckpoint returns a checkpoint by ID.
func (e *Engine) FindCheckpoint(ctx context.Context, checkpointID uuid.UUID) (Checkpoint, error) {
	return e.store.FindCheckpoint(ctx, checkpointID)
}

func (e *Engine) resume(ctx context.Context, id, checkpointID uuid.UUID, d Decision, decidedBy string) (RunState, error) {
	if !d.Valid() {
		return RunState{}, fmt.Errorf("%w: %q", ErrInvalidDecision, d)
	}

	unlock := e.locks.lock(id)
	defer unlock()

	s, err := e.store.Load(ctx, id)
	if err != nil {
		return RunState{}, err
	}

	if s.Status != StatusPaused {
		if s.Decided() {
			return s, ErrAlreadyDecided
		}
		return s, fmt.Errorf("%w: run is %s", ErrInvalidStateTransition, s.Status)
	}

	cp, err := e.store.LatestCheckpoint(ctx, id)
	if err != nil {
		return s, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.Status != CheckpointOpen {
		return s, ErrAlreadyDecided
	}

	switch {
	case checkpointID != uuid.Nil && checkpointID != cp.ID:
		return s, fmt.Errorf("%w: checkpoint %s is not open", ErrAlreadyDecided, checkpointID)
	case checkpointID == uuid.Nil && s.Decided():
		return s, fmt.Errorf("%w: open checkpoint %s must be decided by id", ErrAlreadyDecided, cp.ID)
	}

	now := e.rt.now()
	next := s.Clone()

	switch cp.Kind {
	case PauseEscalation:
		if next.EscalationDecision != nil {
			return s, ErrAlreadyDecided
		}
		next.EscalationDecision = &d
		approval := Approval{}
		if next.Approval != nil {
			approval = *next.Approval
		}
		approval.ApprovedBy = decidedBy
		next.Approval = &approval
	default:
		if next.Decision != nil {
			return s, ErrAlreadyDecided
		}
		next.Decision = &d
		next.DecidedBy = decidedBy
		next.DecidedAt = &now
	}

	from := next.Stage
	next.Status = StatusRunning
	next.Stage = cp.ResumeStage
	next.Pause = nil
	next.UpdatedAt = now

	e.rt.record(ctx, &next, EventDecisionRecorded, map[string]any{
		"checkpoint_id": cp.ID.String(),
		"kind":          string(cp.Kind),
		"decision":      string(d),
		"decided_by":    decidedBy,
	})
	e.transition(ctx, &next, from, "resumed")

	saved, err := e.store.Resolve(ctx, next, cp)
	if err != nil {
		if errors.Is(err, ErrStaleWrite) || errors.Is(err, ErrCheckpointResolved) {
			return s, ErrAlreadyDecided
		}
		return s, fmt.Errorf("resolve checkpoint: %w", err)
	}

	e.logger.InfoContext(ctx, "run resumed", "run_id", id, "decision", d, "resume_stage", cp.ResumeStage)
	return e.drive(ctx, saved)
}

// Recover re-drives a RUNNING run from its last persisted stage.
func (e *Engine) Recover(ctx context.Context, id uuid.UUID) (RunState, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	s, err := e.store.Load(ctx, id)
	if err != nil {
		return RunState{}, err
	}
	if s.Status != StatusRunning {
		return s, fmt.Errorf("%w: run is %s", ErrInvalidStateTransition, s.Status)
	}

	next := s.Clone()
	next.UpdatedAt = e.rt.now()
	details := map[string]any{"stage": string(s.Stage)}
	if s.InProgress != nil {
		details["in_progress"] = string(s.InProgress.Stage)
	}
	e.rt.record(ctx, &next, EventRunRecovered, details)

	saved, err := e.store.Save(ctx, next)
	if err != nil {
		return s, fmt.Errorf("record recovery: %w", err)
	}
	return e.drive(ctx, saved)
}

// RecoverAll recovers every RUNNING run and returns how many were driven.
// Individual failures are logged and do not stop the sweep.
func (e *Engine) RecoverAll(ctx context.Context) (int, error) {
	ids, err := e.store.Running(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running runs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		s, err := e.Recover(ctx, id)
		if err != nil {
			if errors.Is(err, ErrInvalidStateTransition) {
				continue
			}
			e.logger.ErrorContext(ctx, "recover run", "run_id", id, "error", err)
			continue
		}
		recovered++
		e.logger.InfoContext(ctx, "run recovered", "run_id", id, "status", s.Status, "stage", s.Stage)
	}
	return recovered, nil
}

// Cancel fails a non-terminal run. An in-flight drive is interrupted and
// records the cancellation itself before Cancel returns; effects already
// applied by completed stages are not rolled back.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string) (RunState, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	interrupted := e.interrupt(id, reason)

	unlock := e.locks.lock(id)
	defer unlock()

	s, err := e.store.Load(ctx, id)
	if err != nil {
		return RunState{}, err
	}
	if interrupted && s.Status == StatusFailed && s.Error != nil && s.Error.Kind == KindCancelled {
		return s, nil
	}
	if !s.Status.CanTransition(StatusFailed) {
		return s, fmt.Errorf("%w: run is %s", ErrInvalidStateTransition, s.Status)
	}

	return e.cancel(ctx, s.Clone(), reason)
}

func (e *Engine) cancel(ctx context.Context, s RunState, reason string) (RunState, error) {
	previous := s.Status
	stage := s.Stage
	s.InProgress = nil
	s.Status = StatusFailed
	s.Error = &RunError{Stage: stage, Kind: KindCancelled, Message: reason}
	s.UpdatedAt = e.rt.now()

	e.rt.record(ctx, &s, EventRunCancelled, map[string]any{
		"reason":          reason,
		"previous_status": string(previous),
	})
	e.transition(ctx, &s, stage, "cancelled")

	saved, err := e.store.Save(ctx, s)
	if err != nil {
		return s, fmt.Errorf("cancel run: %w", err)
	}

	e.logger.InfoContext(ctx, "run cancelled", "run_id", s.RunID, "stage", stage, "reason", reason)
	return saved, nil
}

// halted handles a drive stopped by its context. A cancellation is persisted
// as the run's terminal state; on shutdown the run stays RUNNING for recovery.
func (e *Engine) halted(ctx context.Context, s RunState, cause error) (RunState, error) {
	var c cancellation
	if !errors.As(cause, &c) {
		return s, cause
	}
	return e.cancel(ctx, s.Clone(), c.reason)
}

// drive executes stages while the run is RUNNING. It runs on a context
// detached from ctx's cancellation so an abandoned request does not abort a
// stage midway; Cancel and the base context interrupt it instead.
func (e *Engine) drive(ctx context.Context, s RunState) (RunState, error) {
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)
	stop := context.AfterFunc(e.base, func() { cancel(ErrShutdown) })
	defer stop()

	e.track(s.RunID, cancel)
	defer e.untrack(s.RunID)

	persistCtx := context.WithoutCancel(ctx)

	for s.Status == StatusRunning {
		if cause := context.Cause(runCtx); cause != nil {
			return e.halted(persistCtx, s, cause)
		}

		stage := s.Stage
		fn, ok := e.stages[stage]
		if !ok {
			return e.fail(persistCtx, s.Clone(), stage, fmt.Errorf("%w: unknown stage %s", ErrInternal, stage))
		}

		if SideEffecting(stage) {
			if s.InProgress != nil && s.InProgress.Stage == stage {
				return e.interrupted(persistCtx, s.Clone())
			}
			marked := s.Clone()
			marked.InProgress = &StageMarker{Stage: stage, StartedAt: e.rt.now()}
			saved, err := e.store.Save(persistCtx, marked)
			if err != nil {
				return s, fmt.Errorf("mark %s in progress: %w", stage, err)
			}
			s = saved
		}

		out, outcome, err := fn(runCtx, e.rt, s.Clone())
		if err != nil {
			if cause := context.Cause(runCtx); cause != nil {
				return e.halted(persistCtx, s, cause)
			}
			return e.fail(persistCtx, out, stage, err)
		}

		out.InProgress = nil
		out.Stage = stage

		switch outcome {
		case Advance:
			if next := Successor(stage); next != "" && out.Status == StatusRunning {
				out.Stage = next
			}
		case NeedsReview:
			out.Stage = StageCheckpoint
		case Pause:
			if out.Status != StatusPaused || out.Pause == nil {
				return e.fail(persistCtx, out, stage, fmt.Errorf("%w: %s paused without checkpoint", ErrInternal, stage))
			}
		case Halt:
			if !out.Status.Terminal() {
				return e.fail(persistCtx, out, stage, fmt.Errorf("%w: %s halted while %s", ErrInternal, stage, out.Status))
			}
		}

		out.UpdatedAt = e.rt.now()
		e.transition(persistCtx, &out, stage, outcome.String())

		var saved RunState
		if outcome == Pause {
			saved, err = e.store.Pause(persistCtx, out, checkpointOf(out))
		} else {
			saved, err = e.store.Save(persistCtx, out)
		}
		if err != nil {
			return s, fmt.Errorf("persist %s: %w", stage, err)
		}
		s = saved
	}

	e.logger.InfoContext(ctx, "run stopped", "run_id", s.RunID, "status", s.Status, "stage", s.Stage)
	return s, nil
}

// fail ends the run at stage with err. Posting failures require manual
// handling; everything else is FAILED.
func (e *Engine) fail(ctx context.Context, s RunState, stage Stage, err error) (RunState, error) {
	s.Stage = stage
	s.InProgress = nil
	s.Status = terminalStatus(err)
	s.Error = &RunError{Stage: stage, Kind: KindOf(err), Message: err.Error()}
	s.UpdatedAt = e.rt.now()
	e.transition(ctx, &s, stage, "failed")

	e.logger.WarnContext(ctx, "stage failed",
		"run_id", s.RunID,
		"stage", stage,
		"kind", s.Error.Kind,
		"status", s.Status,
		"error", err,
	)

	saved, serr := e.store.Save(ctx, s)
	if serr != nil {
		return s, fmt.Errorf("persist failure of %s: %w", stage, serr)
	}
	return saved, nil
}

// interrupted fails closed when a side-effecting stage was started but
// never recorded a result: the external system may or may not have applied it.
func (e *Engine) interrupted(ctx context.Context, s RunState) (RunState, error) {
	stage := s.Stage
	marker := s.InProgress

	s.InProgress = nil
	s.Status = StatusRequiresManual
	s.Error = &RunError{
		Stage:   stage,
		Kind:    KindStageInterrupted,
		Message: fmt.Sprintf("%s started at %s did not complete; external outcome unknown", stage, marker.StartedAt.Format("2006-01-02T15:04:05Z07:00")),
	}
	s.UpdatedAt = e.rt.now()
	e.transition(ctx, &s, stage, "interrupted")

	e.logger.WarnContext(ctx, "side-effecting stage interrupted", "run_id", s.RunID, "stage", stage)

	saved, err := e.store.Save(ctx, s)
	if err != nil {
		return s, fmt.Errorf("persist interruption of %s: %w", stage, err)
	}
	return saved, nil
}

func (e *Engine) transition(ctx context.Context, s *RunState, from Stage, outcome string) {
	e.rt.record(ctx, s, EventStageTransition, map[string]any{
		"from":    string(from),
		"to":      string(s.Stage),
		"status":  string(s.Status),
		"outcome": outcome,
	})
}

func (e *Engine) track(id uuid.UUID, cancel context.CancelCauseFunc) {
	e.mu.Lock()
	e.active[id] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(id uuid.UUID) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// interrupt cancels the active drive of a run and reports whether there was one.
func (e *Engine) interrupt(id uuid.UUID, reason string) bool {
	e.mu.Lock()
	cancel, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		cancel(cancellation{reason: reason})
	}
	return ok
}

// cancellation is the cause attached to a drive interrupted by Cancel.
type cancellation struct {
	reason string
}

func (c cancellation) Error() string { return fmt.Sprintf("%s: %s", ErrCancelled, c.reason) }

func (c cancellation) Unwrap() error { return ErrCancelled }

func checkpointOf(s RunState) Checkpoint {
	return Checkpoint{
		ID:          s.Pause.CheckpointID,
		RunID:       s.RunID,
		Kind:        s.Pause.Kind,
		ResumeStage: s.Pause.ResumeStage,
		ReviewURL:   s.Pause.ReviewURL,
		Status:      CheckpointOpen,
		CreatedAt:   s.Pause.CreatedAt,
	}
}
