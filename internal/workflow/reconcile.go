package workflow

import (
	"context"
	"fmt"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// BuildEntries produces a balanced journal for inv: one debit per line, a
// tax debit, and an accounts payable credit for the sum. Amounts are summed
// in cents so debits and credits balance exactly.
func BuildEntries(inv invoice.Invoice, cfg Config) []invoice.AccountingEntry {
	entries := make([]invoice.AccountingEntry, 0, len(inv.LineItems)+2)

	var debits int64
	for _, l := range inv.LineItems {
		cents := invoice.Cents(l.Total())
		if cents == 0 {
			continue
		}
		account := l.GLAccount
		if account == "" {
			account = cfg.ExpenseAccount
		}
		entries = append(entries, invoice.AccountingEntry{
			Account:     account,
			Type:        invoice.Debit,
			Amount:      invoice.FromCents(cents),
			Description: l.Description,
		})
		debits += cents
	}

	if tax := invoice.Cents(inv.Tax); tax > 0 {
		entries = append(entries, invoice.AccountingEntry{
			Account:     cfg.TaxAccount,
			Type:        invoice.Debit,
			Amount:      invoice.FromCents(tax),
			Description: "Tax",
		})
		debits += tax
	}

	entries = append(entries, invoice.AccountingEntry{
		Account:     cfg.PayableAccount,
		Type:        invoice.Credit,
		Amount:      invoice.FromCents(debits),
		Description: fmt.Sprintf("Invoice %s payable to %s", inv.Number, inv.VendorName),
	})
	return entries
}

// Reconcile builds the accounting entries for posting.
func Reconcile(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil {
		return s, Halt, fmt.Errorf("%w: reconcile without parsed invoice", ErrInternal)
	}

	s.Accounting = BuildEntries(*s.Invoice, rt.Config)

	credit := s.Accounting[len(s.Accounting)-1]
	if variance := invoice.Cents(s.Invoice.Total) - invoice.Cents(credit.Amount); variance != 0 {
		rt.record(ctx, &s, "reconcile_variance", map[string]any{
			"invoice_total": s.Invoice.Total,
			"payable":       credit.Amount,
			"variance":      invoice.FromCents(variance),
		})
	}

	rt.Logger.InfoContext(ctx, "entries reconciled", "run_id", s.RunID, "entries", len(s.Accounting))
	return s, Advance, nil
}
