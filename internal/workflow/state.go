// Package workflow implements the invoice processing engine: a fixed stage
// graph (intake through finalize) driven over a persisted RunState, with a
// human-review pause after a failed two-way match.
package workflow

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Stage identifies a node in the stage graph.
type Stage string

const (
	StageIntake          Stage = "INTAKE"
	StageUnderstand      Stage = "UNDERSTAND"
	StagePrepare         Stage = "PREPARE"
	StageRetrieve        Stage = "RETRIEVE"
	StageMatch           Stage = "MATCH_TWO_WAY"
	StageCheckpoint      Stage = "HITL_CHECKPOINT"
	StageDecision        Stage = "HITL_DECISION"
	StageReconcile       Stage = "RECONCILE"
	StageApprove         Stage = "APPROVE"
	StagePost            Stage = "POST"
	StageSchedulePayment Stage = "SCHEDULE_PAYMENT"
	StageNotify          Stage = "NOTIFY"
	StageFinalize        Stage = "FINALIZE"
)

// Status is the run lifecycle state.
type Status string

const (
	StatusRunning        Status = "RUNNING"
	StatusPaused         Status = "PAUSED"
	StatusCompleted      Status = "COMPLETED"
	StatusRequiresManual Status = "REQUIRES_MANUAL_HANDLING"
	StatusFailed         Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRequiresManual || s == StatusFailed
}

// CanTransition reports whether a run may move from s to next.
// Terminal states never change.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusRunning:
		return true
	case StatusPaused:
		return next == StatusRunning || next == StatusFailed
	default:
		return false
	}
}

// Decision is a reviewer's verdict on a paused run.
type Decision string

const (
	Accept Decision = "ACCEPT"
	Reject Decision = "REJECT"
)

// Valid reports whether d is ACCEPT or REJECT.
func (d Decision) Valid() bool {
	return d == Accept || d == Reject
}

// PauseKind distinguishes the review a paused run is waiting on.
type PauseKind string

const (
	PauseReview     PauseKind = "HITL_REVIEW"
	PauseEscalation PauseKind = "APPROVAL_ESCALATION"
)

// ApprovalStatus is the APPROVE stage verdict.
type ApprovalStatus string

const (
	Approved  ApprovalStatus = "APPROVED"
	Escalated ApprovalStatus = "ESCALATED"
)

// Flags are validation findings raised during PREPARE.
type Flags struct {
	TaxIDMismatch bool `json:"tax_id_mismatch"`
	HighAmount    bool `json:"high_amount"`
	MissingPO     bool `json:"missing_po"`
	HighRisk      bool `json:"high_risk"`
}

// Any reports whether any flag is raised.
func (f Flags) Any() bool {
	return f.TaxIDMismatch || f.HighAmount || f.MissingPO || f.HighRisk
}

// MatchBreakdown holds the per-field match components, each in [0,1].
type MatchBreakdown struct {
	Amount  float64  `json:"amount"`
	Lines   float64  `json:"lines"`
	Vendor  float64  `json:"vendor"`
	Receipt float64  `json:"receipt"`
	Notes   []string `json:"notes,omitempty"`
}

// PauseRef locates the review a paused run is waiting on.
type PauseRef struct {
	Kind         PauseKind `json:"kind"`
	CheckpointID uuid.UUID `json:"checkpoint_id"`
	ReviewURL    string    `json:"review_url"`
	ResumeStage  Stage     `json:"resume_stage"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Approval is the APPROVE stage outcome.
type Approval struct {
	Status       ApprovalStatus `json:"status"`
	Reason       string         `json:"reason"`
	ApproverRole string         `json:"approver_role,omitempty"`
	ApprovedBy   string         `json:"approved_by,omitempty"`
}

// NotificationResult records one NOTIFY delivery.
type NotificationResult struct {
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// ToolSelection records which tool served a stage and why.
type ToolSelection struct {
	Stage      Stage             `json:"stage"`
	Capability tools.Capability  `json:"capability"`
	Tool       string            `json:"tool"`
	Reason     string            `json:"reason"`
	Rejected   []tools.Rejection `json:"rejected,omitempty"`
	At         time.Time         `json:"at"`
}

// AuditEntry is one line of a run's audit log.
type AuditEntry struct {
	RunID     uuid.UUID      `json:"run_id"`
	Stage     Stage          `json:"stage"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// RunError describes why a run ended FAILED or REQUIRES_MANUAL_HANDLING.
type RunError struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// StageMarker is written before a side-effecting stage runs and cleared with
// its result. A marker found on recovery means the outcome is unknown.
type StageMarker struct {
	Stage     Stage     `json:"stage"`
	StartedAt time.Time `json:"started_at"`
}

// FinalPayload summarizes a completed run.
type FinalPayload struct {
	RunID         uuid.UUID                 `json:"run_id"`
	InvoiceNumber string                    `json:"invoice_number"`
	Vendor        string                    `json:"vendor"`
	Currency      string                    `json:"currency"`
	Total         float64                   `json:"total"`
	MatchScore    float64                   `json:"match_score"`
	Decision      *Decision                 `json:"decision,omitempty"`
	Approval      Approval                  `json:"approval"`
	ERPInvoiceID  string                    `json:"erp_invoice_id"`
	PaymentID     string                    `json:"payment_id"`
	PaymentDate   string                    `json:"payment_date"`
	Entries       []invoice.AccountingEntry `json:"accounting_entries"`
	Notifications []NotificationResult      `json:"notifications,omitempty"`
	ArchiveKey    string                    `json:"archive_key,omitempty"`
	CompletedAt   time.Time                 `json:"completed_at"`
}

// RunState is the full persisted state of one invoice run.
//
// Stage functions receive a Clone and return a new value. They may append to
// slices and replace pointer fields but never mutate a pointee in place.
type RunState struct {
	RunID  uuid.UUID `json:"run_id"`
	Stage  Stage     `json:"stage"`
	Status Status    `json:"status"`

	Payload Payload `json:"payload"`

	OCRText       string                 `json:"ocr_text,omitempty"`
	OCRConfidence float64                `json:"ocr_confidence,omitempty"`
	Invoice       *invoice.Invoice       `json:"invoice,omitempty"`
	Vendor        *invoice.VendorProfile `json:"vendor,omitempty"`
	Flags         Flags                  `json:"flags"`
	ERP           *invoice.ERPRecords    `json:"erp,omitempty"`

	MatchScore     *float64        `json:"match_score,omitempty"`
	MatchCount     int             `json:"match_count,omitempty"`
	MatchBreakdown *MatchBreakdown `json:"match_breakdown,omitempty"`

	Decision           *Decision  `json:"decision,omitempty"`
	DecidedBy          string     `json:"decided_by,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	EscalationDecision *Decision  `json:"escalation_decision,omitempty"`
	Pause              *PauseRef  `json:"pause,omitempty"`

	Accounting    []invoice.AccountingEntry `json:"accounting_entries,omitempty"`
	Approval      *Approval                 `json:"approval,omitempty"`
	Posting       *invoice.PostingReceipt   `json:"posting,omitempty"`
	Payment       *invoice.PaymentSchedule  `json:"payment,omitempty"`
	Notifications []NotificationResult      `json:"notifications,omitempty"`

	ToolSelections []ToolSelection `json:"tool_selections,omitempty"`
	Audit          []AuditEntry    `json:"audit"`

	Final      *FinalPayload `json:"final_payload,omitempty"`
	Error      *RunError     `json:"error,omitempty"`
	InProgress *StageMarker  `json:"in_progress,omitempty"`

	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRunState returns the initial RUNNING(INTAKE) state for payload.
func NewRunState(id uuid.UUID, payload Payload, now time.Time) RunState {
	return RunState{
		RunID:     id,
		Stage:     StageIntake,
		Status:    StatusRunning,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Decided reports whether any reviewer decision has been recorded.
func (s RunState) Decided() bool {
	return s.Decision != nil || s.EscalationDecision != nil
}

// Clone returns a copy of s that shares no slices or pointers with it.
func (s RunState) Clone() RunState {
	c := s
	c.Payload = s.Payload.clone()
	c.Invoice = clonePtr(s.Invoice)
	if c.Invoice != nil {
		c.Invoice.LineItems = slices.Clone(s.Invoice.LineItems)
	}
	c.Vendor = clonePtr(s.Vendor)
	c.ERP = clonePtr(s.ERP)
	if c.ERP != nil {
		c.ERP.PO = clonePtr(s.ERP.PO)
		c.ERP.GRN = clonePtr(s.ERP.GRN)
		c.ERP.History = slices.Clone(s.ERP.History)
	}
	c.MatchScore = clonePtr(s.MatchScore)
	c.MatchBreakdown = clonePtr(s.MatchBreakdown)
	c.Decision = clonePtr(s.Decision)
	c.DecidedAt = clonePtr(s.DecidedAt)
	c.EscalationDecision = clonePtr(s.EscalationDecision)
	c.Pause = clonePtr(s.Pause)
	c.Accounting = slices.Clone(s.Accounting)
	c.Approval = clonePtr(s.Approval)
	c.Posting = clonePtr(s.Posting)
	c.Payment = clonePtr(s.Payment)
	c.Notifications = slices.Clone(s.Notifications)
	c.ToolSelections = slices.Clone(s.ToolSelections)
	c.Audit = slices.Clone(s.Audit)
	c.Final = clonePtr(s.Final)
	c.Error = clonePtr(s.Error)
	c.InProgress = clonePtr(s.InProgress)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
