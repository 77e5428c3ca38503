// Package runs is the decision gateway: it exposes run submission, the run
// projection, the review queue, and reviewer decisions over the workflow
// engine.
package runs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
)

// DefaultReviewer is recorded when a decision carries no reviewer identity.
const DefaultReviewer = "anonymous"

// Engine is the subset of the workflow engine the gateway drives.
type Engine interface {
	Start(ctx context.Context, payload workflow.Payload) (workflow.RunState, error)
	Get(ctx context.Context, id uuid.UUID) (workflow.RunState, error)
	Checkpoints(ctx context.Context, id uuid.UUID) ([]workflow.Checkpoint, error)
	List(ctx context.Context, filter workflow.ListFilter, page pagination.PageRequest) ([]workflow.Summary, int, error)
	Resume(ctx context.Context, id uuid.UUID, d workflow.Decision, decidedBy string) (workflow.RunState, error)
	ResumeCheckpoint(ctx context.Context, checkpointID uuid.UUID, d workflow.Decision, decidedBy string) (workflow.RunState, error)
	FindCheckpoint(ctx context.Context, checkpointID uuid.UUID) (workflow.Checkpoint, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (workflow.RunState, error)
	Recover(ctx context.Context, id uuid.UUID) (workflow.RunState, error)
	RecoverAll(ctx context.Context) (int, error)
}

// System defines the public contract for run operations.
type System interface {
	Handler(maxBodySize int64) *Handler

	Create(ctx context.Context, payload workflow.Payload) (*Created, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[workflow.Summary], error)
	Find(ctx context.Context, id uuid.UUID) (*Projection, error)
	Decide(ctx context.Context, id uuid.UUID, cmd DecideCommand) (*Acknowledgement, error)
	Review(ctx context.Context, checkpointID uuid.UUID) (*Review, error)
	DecideReview(ctx context.Context, checkpointID uuid.UUID, cmd DecideCommand) (*Acknowledgement, error)
	Cancel(ctx context.Context, id uuid.UUID, cmd CancelCommand) (*Projection, error)
	Checkpoints(ctx context.Context, id uuid.UUID) ([]workflow.Checkpoint, error)
	Recover(ctx context.Context, id uuid.UUID) (*Projection, error)
	RecoverAll(ctx context.Context) (int, error)
}

type system struct {
	engine     Engine
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the run gateway over engine.
func New(engine Engine, logger *slog.Logger, pagination pagination.Config) System {
	return &system{
		engine:     engine,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
}

func (s *system) Handler(maxBodySize int64) *Handler {
	return NewHandler(s, s.logger, s.pagination, maxBodySize)
}

func (s *system) Create(ctx context.Context, payload workflow.Payload) (*Created, error) {
	st, err := s.engine.Start(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", mapError(err))
	}

	s.logger.InfoContext(ctx, "run submitted", "run_id", st.RunID, "status", st.Status, "stage", st.Stage)
	return &Created{
		RunID:  st.RunID,
		Status: st.Status,
		Stage:  st.Stage,
		Pause:  st.Pause,
		Error:  st.Error,
	}, nil
}

func (s *system) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[workflow.Summary], error) {
	page.Normalize(s.pagination)

	items, total, err := s.engine.List(ctx, filters.ListFilter(), page)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *system) Find(ctx context.Context, id uuid.UUID) (*Projection, error) {
	st, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return Project(st), nil
}

func (s *system) Decide(ctx context.Context, id uuid.UUID, cmd DecideCommand) (*Acknowledgement, error) {
	if cmd.CheckpointID == uuid.Nil {
		return s.decide(ctx, cmd, func(d workflow.Decision, reviewer string) (workflow.RunState, error) {
			return s.engine.Resume(ctx, id, d, reviewer)
		})
	}

	cp, err := s.engine.FindCheckpoint(ctx, cmd.CheckpointID)
	if err != nil {
		return nil, mapError(err)
	}
	if cp.RunID != id {
		return nil, fmt.Errorf("%w: checkpoint %s belongs to another run", ErrCheckpointNotFound, cp.ID)
	}
	return s.DecideReview(ctx, cp.ID, cmd)
}

func (s *system) Review(ctx context.Context, checkpointID uuid.UUID) (*Review, error) {
	cp, err := s.engine.FindCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, mapError(err)
	}

	st, err := s.engine.Get(ctx, cp.RunID)
	if err != nil {
		return nil, mapError(err)
	}
	return &Review{Checkpoint: cp, Run: Project(st)}, nil
}

func (s *system) DecideReview(ctx context.Context, checkpointID uuid.UUID, cmd DecideCommand) (*Acknowledgement, error) {
	ack, err := s.decide(ctx, cmd, func(d workflow.Decision, reviewer string) (workflow.RunState, error) {
		return s.engine.ResumeCheckpoint(ctx, checkpointID, d, reviewer)
	})
	if err != nil {
		return nil, err
	}
	ack.CheckpointID = checkpointID
	return ack, nil
}

func (s *system) decide(
	ctx context.Context,
	cmd DecideCommand,
	resume func(workflow.Decision, string) (workflow.RunState, error),
) (*Acknowledgement, error) {
	d := workflow.Decision(strings.ToUpper(strings.TrimSpace(string(cmd.Decision))))
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, cmd.Decision)
	}

	reviewer := strings.TrimSpace(cmd.Reviewer)
	if reviewer == "" {
		reviewer = DefaultReviewer
	}

	st, err := resume(d, reviewer)
	if err != nil {
		return nil, mapError(err)
	}

	ack := &Acknowledgement{
		RunID:     st.RunID,
		Decision:  d,
		DecidedBy: reviewer,
		Status:    st.Status,
		Stage:     st.Stage,
		Pause:     st.Pause,
	}
	if st.Error != nil {
		ack.ErrorKind = st.Error.Kind
	}

	s.logger.InfoContext(ctx, "decision accepted",
		"run_id", st.RunID, "decision", d, "reviewer", reviewer, "status", st.Status)
	return ack, nil
}

func (s *system) Cancel(ctx context.Context, id uuid.UUID, cmd CancelCommand) (*Projection, error) {
	st, err := s.engine.Cancel(ctx, id, strings.TrimSpace(cmd.Reason))
	if err != nil {
		return nil, mapError(err)
	}
	return Project(st), nil
}

func (s *system) Checkpoints(ctx context.Context, id uuid.UUID) ([]workflow.Checkpoint, error) {
	cps, err := s.engine.Checkpoints(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if cps == nil {
		cps = []workflow.Checkpoint{}
	}
	return cps, nil
}

func (s *system) Recover(ctx context.Context, id uuid.UUID) (*Projection, error) {
	st, err := s.engine.Recover(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	s.logger.InfoContext(ctx, "run recovered", "run_id", id, "status", st.Status, "stage", st.Stage)
	return Project(st), nil
}

func (s *system) RecoverAll(ctx context.Context) (int, error) {
	n, err := s.engine.RecoverAll(ctx)
	if err != nil {
		return n, fmt.Errorf("recover runs: %w", err)
	}
	return n, nil
}
