package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/pkg/pagination"
)

// CheckpointStatus is the lifecycle of a review checkpoint record.
type CheckpointStatus string

const (
	CheckpointOpen       CheckpointStatus = "OPEN"
	CheckpointResolved   CheckpointStatus = "RESOLVED"
	CheckpointSuperseded CheckpointStatus = "SUPERSEDED"
)

// Checkpoint is the durable record written when a run pauses for review.
type Checkpoint struct {
	ID          uuid.UUID        `json:"checkpoint_id"`
	RunID       uuid.UUID        `json:"run_id"`
	Seq         int64            `json:"seq"`
	Kind        PauseKind        `json:"kind"`
	ResumeStage Stage            `json:"resume_stage"`
	ReviewURL   string           `json:"review_url"`
	Status      CheckpointStatus `json:"status"`
	Decision    *Decision        `json:"decision,omitempty"`
	DecidedBy   string           `json:"decided_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`

	// State is the run snapshot taken at pause.
	State RunState `json:"-"`
}

// Summary is the list view of a run.
type Summary struct {
	RunID         uuid.UUID `json:"run_id"`
	Status        Status    `json:"status"`
	Stage         Stage     `json:"stage"`
	PauseKind     PauseKind `json:"pause_kind,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	VendorName    string    `json:"vendor_name,omitempty"`
	Amount        float64   `json:"amount"`
	MatchScore    *float64  `json:"match_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summarize derives the list view of s.
func Summarize(s RunState) Summary {
	sum := Summary{
		RunID:         s.RunID,
		Status:        s.Status,
		Stage:         s.Stage,
		InvoiceNumber: s.Payload.InvoiceNumber,
		VendorName:    s.Payload.VendorName,
		Amount:        s.Payload.Amount,
		MatchScore:    s.MatchScore,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Invoice != nil {
		sum.InvoiceNumber = s.Invoice.Number
		sum.VendorName = s.Invoice.VendorName
		sum.Amount = s.Invoice.Total
	}
	if s.Status == StatusPaused && s.Pause != nil {
		sum.PauseKind = s.Pause.Kind
	}
	return sum
}

// ListFilter narrows a run listing. Empty fields match everything.
type ListFilter struct {
	Status    Status    `json:"status,omitempty"`
	Stage     Stage     `json:"stage,omitempty"`
	PauseKind PauseKind `json:"pause_kind,omitempty"`
}

// Store persists run state. Every write is a compare-and-swap on Seq: the
// caller passes the state it loaded, and the store rejects the write with
// ErrStaleWrite if another writer advanced the run first. Writes return the
// state as persisted, with Seq incremented.
type Store interface {
	// Create persists a new run at Seq 1. Returns ErrDuplicateRun if the ID exists.
	Create(ctx context.Context, s RunState) (RunState, error)
	// Load returns the latest state. Returns ErrNotFound if the run does not exist.
	Load(ctx context.Context, id uuid.UUID) (RunState, error)
	// Save writes s and appends a snapshot.
	Save(ctx context.Context, s RunState) (RunState, error)
	// Pause saves s and records cp as the open checkpoint, superseding earlier ones.
	Pause(ctx context.Context, s RunState, cp Checkpoint) (RunState, error)
	// Resolve saves s and marks the open checkpoint resolved with s's decision.
	// Returns ErrCheckpointResolved if it was already resolved.
	Resolve(ctx context.Context, s RunState, cp Checkpoint) (RunState, error)
	// LatestCheckpoint returns the newest checkpoint for a run.
	// Returns ErrCheckpointNotFound if the run never paused.
	LatestCheckpoint(ctx context.Context, runID uuid.UUID) (Checkpoint, error)
	// FindCheckpoint returns a checkpoint by its ID.
	// Returns ErrCheckpointNotFound if no run wrote it.
	FindCheckpoint(ctx context.Context, id uuid.UUID) (Checkpoint, error)
	// Checkpoints returns every checkpoint for a run, oldest first.
	Checkpoints(ctx context.Context, runID uuid.UUID) ([]Checkpoint, error)
	// List returns run summaries, most recently updated first, with the total match count.
	List(ctx context.Context, filter ListFilter, page pagination.PageRequest) ([]Summary, int, error)
	// Running returns the IDs of runs in RUNNING status.
	Running(ctx context.Context) ([]uuid.UUID, error)
}

// Resolution returns the decision and decider recorded on s for a checkpoint
// of the given kind.
func Resolution(s RunState, kind PauseKind) (*Decision, string) {
	if kind == PauseEscalation {
		var by string
		if s.Approval != nil {
			by = s.Approval.ApprovedBy
		}
		return s.EscalationDecision, by
	}
	return s.Decision, s.DecidedBy
}
