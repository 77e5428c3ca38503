package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Post submits the invoice and its journal to the ERP. The run ID is the
// idempotency key. Failures after retries go to manual handling because the
// ERP may or may not have recorded the posting.
func Post(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil || s.Vendor == nil || len(s.Accounting) == 0 {
		return s, Halt, fmt.Errorf("%w: post without invoice, vendor, or entries", ErrInternal)
	}

	sel, err := rt.selectTool(ctx, &s, tools.ERP)
	if err != nil {
		return s, Halt, fmt.Errorf("%w: %w", ErrPosting, err)
	}

	req := tools.PostingRequest{
		IdempotencyKey: s.RunID.String(),
		Invoice:        *s.Invoice,
		Vendor:         *s.Vendor,
		Entries:        s.Accounting,
	}

	receipt, err := invoke(ctx, rt, &s, sel.Tool, "post", func(ctx context.Context) (invoice.PostingReceipt, error) {
		return sel.Descriptor().ERP.Post(ctx, req)
	})
	if err != nil {
		return s, Halt, fmt.Errorf("%w: %w", ErrPosting, err)
	}

	s.Posting = &receipt
	rt.Logger.InfoContext(ctx, "invoice posted", "run_id", s.RunID, "erp_invoice_id", receipt.ERPInvoiceID)
	return s, Advance, nil
}

// SchedulePayment schedules payment of the posted invoice on its due date,
// or after the configured payment terms when the invoice has none.
func SchedulePayment(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil || s.Posting == nil {
		return s, Halt, fmt.Errorf("%w: schedule payment without posting", ErrInternal)
	}

	sel, err := rt.selectTool(ctx, &s, tools.ERP)
	if err != nil {
		return s, Halt, fmt.Errorf("%w: schedule payment: %w", ErrPosting, err)
	}

	due := s.Invoice.DueDate
	if due == "" {
		due = rt.now().AddDate(0, 0, rt.Config.PaymentTermsDays).Format(time.DateOnly)
	}

	req := tools.PaymentRequest{
		IdempotencyKey: s.RunID.String(),
		ERPInvoiceID:   s.Posting.ERPInvoiceID,
		Amount:         s.Invoice.Total,
		Currency:       s.Invoice.Currency,
		DueDate:        due,
	}

	payment, err := invoke(ctx, rt, &s, sel.Tool, "schedule_payment", func(ctx context.Context) (invoice.PaymentSchedule, error) {
		return sel.Descriptor().ERP.SchedulePayment(ctx, req)
	})
	if err != nil {
		return s, Halt, fmt.Errorf("%w: schedule payment: %w", ErrPosting, err)
	}

	s.Payment = &payment
	return s, Advance, nil
}
