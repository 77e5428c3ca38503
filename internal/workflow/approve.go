package workflow

import (
	"context"
	"fmt"

	"github.com/JaimeStill/invoiceflow/pkg/formatting"
)

// Approve applies the approval policy. Invoices above the auto-approve
// limit, or from high-risk vendors when configured, are escalated to the
// approver role: either paused for a decision or sent to manual handling.
func Approve(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil {
		return s, Halt, fmt.Errorf("%w: approve without parsed invoice", ErrInternal)
	}
	cfg := rt.Config

	if s.EscalationDecision != nil {
		approval := Approval{
			ApproverRole: cfg.ApproverRole,
			ApprovedBy:   s.Approval.approver(),
		}
		if *s.EscalationDecision == Reject {
			approval.Status = Escalated
			approval.Reason = "rejected by " + cfg.ApproverRole
			s.Approval = &approval
			s.Status = StatusRequiresManual
			return s, Halt, nil
		}
		approval.Status = Approved
		approval.Reason = "approved by " + cfg.ApproverRole
		s.Approval = &approval
		return s, Advance, nil
	}

	var reason string
	switch {
	case s.Invoice.Total > cfg.AutoApproveLimit:
		reason = fmt.Sprintf(
			"amount %s exceeds auto-approve limit %s",
			formatting.FormatAmount(s.Invoice.Total, s.Invoice.Currency),
			formatting.FormatAmount(cfg.AutoApproveLimit, s.Invoice.Currency),
		)
	case cfg.EscalateHighRisk && s.Flags.HighRisk:
		reason = fmt.Sprintf("vendor risk score %.2f at or above %.2f", s.Vendor.RiskScore, cfg.HighRiskScore)
	}

	if reason == "" {
		s.Approval = &Approval{Status: Approved, Reason: "within auto-approve limit"}
		return s, Advance, nil
	}

	s.Approval = &Approval{Status: Escalated, Reason: reason, ApproverRole: cfg.ApproverRole}

	if cfg.EscalationMode == EscalateManual {
		rt.record(ctx, &s, EventRouteDecision, map[string]any{
			"route":  "MANUAL",
			"reason": reason,
		})
		s.Status = StatusRequiresManual
		return s, Halt, nil
	}

	rt.pause(ctx, &s, PauseEscalation, StageApprove, reason)
	return s, Pause, nil
}

func (a *Approval) approver() string {
	if a == nil {
		return ""
	}
	return a.ApprovedBy
}
