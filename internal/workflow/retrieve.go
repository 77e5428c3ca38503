package workflow

import (
	"context"
	"fmt"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Retrieve fetches the purchase order, goods receipt, and vendor history
// from the selected ERP. Transient failures are retried with backoff; when
// retries are exhausted the run fails with ERP_UNAVAILABLE.
func Retrieve(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil || s.Vendor == nil {
		return s, Halt, fmt.Errorf("%w: retrieve without parsed invoice or vendor", ErrInternal)
	}

	sel, err := rt.selectTool(ctx, &s, tools.ERP)
	if err != nil {
		return s, Halt, err
	}

	q := tools.ERPQuery{
		VendorName:    s.Vendor.NormalizedName,
		VendorTaxID:   s.Vendor.TaxID,
		InvoiceNumber: s.Invoice.Number,
	}
	if !s.Flags.MissingPO {
		q.PORef = s.Invoice.PORef
	}

	recs, err := invoke(ctx, rt, &s, sel.Tool, "retrieve", func(ctx context.Context) (invoice.ERPRecords, error) {
		return sel.Descriptor().ERP.Retrieve(ctx, q)
	})
	if err != nil {
		if retryable(err) {
			return s, Halt, fmt.Errorf("%w: %w", ErrERPUnavailable, err)
		}
		return s, Halt, fmt.Errorf("%w: %w", ErrToolFailed, err)
	}

	s.ERP = &recs

	rt.Logger.InfoContext(
		ctx, "erp records retrieved",
		"run_id", s.RunID,
		"po_found", recs.PO != nil,
		"grn_found", recs.GRN != nil,
		"history", len(recs.History),
	)
	return s, Advance, nil
}
