package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

// Projection is the read-only view of a run returned by the gateway.
type Projection struct {
	RunID              uuid.UUID                     `json:"run_id"`
	Status             workflow.Status               `json:"status"`
	Stage              workflow.Stage                `json:"stage"`
	Seq                int64                         `json:"seq"`
	MatchScore         *float64                      `json:"match_score,omitempty"`
	MatchBreakdown     *workflow.MatchBreakdown      `json:"match_breakdown,omitempty"`
	ErrorKind          workflow.ErrorKind            `json:"error_kind,omitempty"`
	Error              *workflow.RunError            `json:"error,omitempty"`
	Pause              *workflow.PauseRef            `json:"pause,omitempty"`
	Decision           *workflow.Decision            `json:"decision,omitempty"`
	DecidedBy          string                        `json:"decided_by,omitempty"`
	EscalationDecision *workflow.Decision            `json:"escalation_decision,omitempty"`
	Flags              workflow.Flags                `json:"flags"`
	Invoice            *invoice.Invoice              `json:"invoice,omitempty"`
	Vendor             *invoice.VendorProfile        `json:"vendor,omitempty"`
	Approval           *workflow.Approval            `json:"approval,omitempty"`
	Accounting         []invoice.AccountingEntry     `json:"accounting_entries,omitempty"`
	Posting            *invoice.PostingReceipt       `json:"posting,omitempty"`
	Payment            *invoice.PaymentSchedule      `json:"payment,omitempty"`
	Notifications      []workflow.NotificationResult `json:"notifications,omitempty"`
	ToolSelections     []workflow.ToolSelection      `json:"tool_selections,omitempty"`
	Audit              []workflow.AuditEntry         `json:"audit"`
	Final              *workflow.FinalPayload        `json:"final_payload,omitempty"`
	CreatedAt          time.Time                     `json:"created_at"`
	UpdatedAt          time.Time                     `json:"updated_at"`
}

// Project builds the gateway view of s.
func Project(s workflow.RunState) *Projection {
	p := &Projection{
		RunID:              s.RunID,
		Status:             s.Status,
		Stage:              s.Stage,
		Seq:                s.Seq,
		MatchScore:         s.MatchScore,
		MatchBreakdown:     s.MatchBreakdown,
		Error:              s.Error,
		Pause:              s.Pause,
		Decision:           s.Decision,
		DecidedBy:          s.DecidedBy,
		EscalationDecision: s.EscalationDecision,
		Flags:              s.Flags,
		Invoice:            s.Invoice,
		Vendor:             s.Vendor,
		Approval:           s.Approval,
		Accounting:         s.Accounting,
		Posting:            s.Posting,
		Payment:            s.Payment,
		Notifications:      s.Notifications,
		ToolSelections:     s.ToolSelections,
		Audit:              s.Audit,
		Final:              s.Final,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.Error != nil {
		p.ErrorKind = s.Error.Kind
	}
	if p.Audit == nil {
		p.Audit = []workflow.AuditEntry{}
	}
	return p
}

// Created is returned when a run is submitted. A run that failed a stage is
// still created; Error carries the failure.
type Created struct {
	RunID  uuid.UUID          `json:"run_id"`
	Status workflow.Status    `json:"status"`
	Stage  workflow.Stage     `json:"stage"`
	Pause  *workflow.PauseRef `json:"pause,omitempty"`
	Error  *workflow.RunError `json:"error,omitempty"`
}

// DecideCommand is a reviewer decision on a paused run. CheckpointID names
// the checkpoint being decided; it is required once a run has recorded a
// decision and pauses again.
type DecideCommand struct {
	Decision     workflow.Decision `json:"decision"`
	Reviewer     string            `json:"reviewer,omitempty"`
	CheckpointID uuid.UUID         `json:"checkpoint_id,omitzero"`
}

// Review is a checkpoint with the current projection of its run.
type Review struct {
	Checkpoint workflow.Checkpoint `json:"checkpoint"`
	Run        *Projection         `json:"run"`
}

// Acknowledgement confirms an accepted decision and reports where the
// resumed run stopped.
type Acknowledgement struct {
	RunID        uuid.UUID          `json:"run_id"`
	CheckpointID uuid.UUID          `json:"checkpoint_id,omitzero"`
	Decision     workflow.Decision  `json:"decision"`
	DecidedBy    string             `json:"decided_by"`
	Status       workflow.Status    `json:"status"`
	Stage        workflow.Stage     `json:"stage"`
	ErrorKind    workflow.ErrorKind `json:"error_kind,omitempty"`
	Pause        *workflow.PauseRef `json:"pause,omitempty"`
}

// CancelCommand cancels a run.
type CancelCommand struct {
	Reason string `json:"reason,omitempty"`
}
