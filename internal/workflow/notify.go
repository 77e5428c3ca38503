package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/invoiceflow/pkg/formatting"
)

// Notify sends the posting notice to every configured recipient
// concurrently. Delivery is best-effort: failures are audited and the run
// continues.
func Notify(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if rt.Notifier == nil {
		rt.record(ctx, &s, EventNotifyFailed, map[string]any{"error": "no notifier configured"})
		return s, Advance, nil
	}

	recipients := rt.Config.Recipients
	results := make([]NotificationResult, len(recipients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(len(recipients), 1))

	for i, recipient := range recipients {
		g.Go(func() error {
			n := notification(s, recipient)
			results[i] = NotificationResult{Recipient: recipient, Channel: rt.Notifier.Name()}
			if err := rt.Notifier.Notify(gctx, n); err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Delivered = true
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		event := EventNotification
		details := map[string]any{"recipient": r.Recipient, "channel": r.Channel}
		if !r.Delivered {
			event = EventNotifyFailed
			details["error"] = r.Error
		}
		rt.record(ctx, &s, event, details)
	}

	s.Notifications = append(s.Notifications, results...)
	return s, Advance, nil
}

func notification(s RunState, recipient string) Notification {
	inv := s.Invoice
	amount := formatting.FormatAmount(inv.Total, inv.Currency)

	n := Notification{
		RunID:     s.RunID,
		Recipient: recipient,
		Event:     "invoice.posted",
		Subject:   fmt.Sprintf("Invoice %s posted", inv.Number),
		Data: map[string]any{
			"invoice_number": inv.Number,
			"vendor":         inv.VendorName,
			"amount":         inv.Total,
			"currency":       inv.Currency,
		},
	}
	if s.Posting != nil {
		n.Data["erp_invoice_id"] = s.Posting.ERPInvoiceID
	}
	if s.Payment != nil {
		n.Data["payment_id"] = s.Payment.PaymentID
		n.Data["scheduled_for"] = s.Payment.ScheduledFor
		n.Message = fmt.Sprintf("Invoice %s from %s for %s is scheduled for payment on %s.",
			inv.Number, inv.VendorName, amount, s.Payment.ScheduledFor)
	} else {
		n.Message = fmt.Sprintf("Invoice %s from %s for %s has been posted.", inv.Number, inv.VendorName, amount)
	}
	return n
}
