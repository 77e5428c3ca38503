package workflow

import (
	"context"
	"fmt"
)

// Finalize assembles the final payload, archives it, and completes the run.
func Finalize(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil || s.Posting == nil || s.Payment == nil || s.Approval == nil {
		return s, Halt, fmt.Errorf("%w: finalize before posting completed", ErrInternal)
	}

	final := FinalPayload{
		RunID:         s.RunID,
		InvoiceNumber: s.Invoice.Number,
		Vendor:        s.Invoice.VendorName,
		Currency:      s.Invoice.Currency,
		Total:         s.Invoice.Total,
		Decision:      s.Decision,
		Approval:      *s.Approval,
		ERPInvoiceID:  s.Posting.ERPInvoiceID,
		PaymentID:     s.Payment.PaymentID,
		PaymentDate:   s.Payment.ScheduledFor,
		Entries:       s.Accounting,
		Notifications: s.Notifications,
		CompletedAt:   rt.now(),
	}
	if s.Vendor != nil {
		final.Vendor = s.Vendor.NormalizedName
	}
	if s.MatchScore != nil {
		final.MatchScore = *s.MatchScore
	}

	if rt.archiveJSON(ctx, &s, finalKey(s), final) {
		final.ArchiveKey = finalKey(s)
	}

	s.Final = &final
	s.Status = StatusCompleted
	return s, Advance, nil
}
