package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// Match route names recorded in the audit log.
const (
	RoutePass        = "PASS"
	RouteNeedsReview = "NEEDS_REVIEW"
)

// ScoreMatch compares an invoice against its purchase order and goods
// receipt. Each component is in [0,1]; the score is their weighted mean.
func ScoreMatch(inv invoice.Invoice, vendor string, recs invoice.ERPRecords, cfg Config) (float64, MatchBreakdown) {
	var b MatchBreakdown

	po := recs.PO
	if po == nil {
		b.Notes = append(b.Notes, "no purchase order")
		return 0, b
	}

	b.Amount = amountScore(inv, *po, cfg.AmountTolerance, &b)
	matched := b.scoreLines(inv.LineItems, *po, cfg.AmountTolerance)
	b.Vendor = vendorScore(vendor, po.VendorName, &b)
	b.Receipt = receiptScore(matched, recs.GRN, &b)

	w := cfg.Weights
	total := w.sum()
	if total == 0 {
		return 0, b
	}
	score := (w.Amount*b.Amount + w.Lines*b.Lines + w.Vendor*b.Vendor + w.Receipt*b.Receipt) / total
	return math.Round(score*10000) / 10000, b
}

type lineMatch struct {
	item invoice.LineItem
	po   invoice.POLine
}

func amountScore(inv invoice.Invoice, po invoice.PurchaseOrder, tolerance float64, b *MatchBreakdown) float64 {
	if inv.Currency != "" && po.Currency != "" && !strings.EqualFold(inv.Currency, po.Currency) {
		b.Notes = append(b.Notes, fmt.Sprintf("currency %s differs from po %s", inv.Currency, po.Currency))
		return 0
	}
	score := similarity(inv.Net(), po.LineTotal(), tolerance)
	if score < 1 {
		b.Notes = append(b.Notes, fmt.Sprintf("net amount %.2f vs po %.2f", inv.Net(), po.LineTotal()))
	}
	return score
}

func (b *MatchBreakdown) scoreLines(items []invoice.LineItem, po invoice.PurchaseOrder, tolerance float64) []lineMatch {
	if len(items) == 0 {
		return nil
	}

	var (
		matched []lineMatch
		sum     float64
	)
	for _, item := range items {
		pl, ok := findPOLine(item, po.Lines)
		if !ok {
			b.Notes = append(b.Notes, fmt.Sprintf("line %q not on po", item.Description))
			continue
		}
		matched = append(matched, lineMatch{item: item, po: pl})

		qty := 1.0
		if item.Quantity > pl.Quantity*(1+tolerance) {
			qty = pl.Quantity / item.Quantity
		}
		price := similarity(item.UnitPrice, pl.UnitPrice, tolerance)
		sum += (qty + price) / 2
	}

	b.Lines = sum / float64(len(items))
	return matched
}

func findPOLine(item invoice.LineItem, lines []invoice.POLine) (invoice.POLine, bool) {
	for _, l := range lines {
		if item.POLineRef != "" && l.Ref == item.POLineRef {
			return l, true
		}
	}
	for _, l := range lines {
		if item.SKU != "" && strings.EqualFold(l.SKU, item.SKU) {
			return l, true
		}
	}
	for _, l := range lines {
		if strings.EqualFold(strings.TrimSpace(l.Description), strings.TrimSpace(item.Description)) {
			return l, true
		}
	}
	return invoice.POLine{}, false
}

func vendorScore(vendor, poVendor string, b *MatchBreakdown) float64 {
	if poVendor == "" {
		return 1
	}
	if NormalizeVendor(poVendor) == vendor {
		return 1
	}
	b.Notes = append(b.Notes, fmt.Sprintf("vendor %s differs from po vendor %s", vendor, poVendor))
	return 0
}

func receiptScore(matched []lineMatch, grn *invoice.GoodsReceipt, b *MatchBreakdown) float64 {
	if grn == nil {
		b.Notes = append(b.Notes, "no goods receipt")
		return 0
	}
	if len(matched) == 0 {
		return 0
	}

	var invoiced, received float64
	for _, m := range matched {
		invoiced += m.item.Quantity
		received += min(grn.Received(m.po.Ref, m.po.SKU), m.item.Quantity)
	}
	if invoiced == 0 {
		return 0
	}
	if received < invoiced {
		b.Notes = append(b.Notes, fmt.Sprintf("received %.2f of %.2f invoiced units", received, invoiced))
	}
	return received / invoiced
}

// similarity is 1 when a and b agree within tolerance, otherwise their ratio.
func similarity(a, b, tolerance float64) float64 {
	if a == b {
		return 1
	}
	hi := math.Max(math.Abs(a), math.Abs(b))
	if hi == 0 {
		return 1
	}
	diff := math.Abs(a-b) / hi
	if diff <= tolerance {
		return 1
	}
	return math.Max(0, 1-diff)
}

// MatchTwoWay scores the invoice against ERP records and routes to
// RECONCILE on a pass or to human review otherwise.
func MatchTwoWay(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil || s.Vendor == nil || s.ERP == nil {
		return s, Halt, fmt.Errorf("%w: match without invoice, vendor, or erp records", ErrInternal)
	}

	score, breakdown := ScoreMatch(*s.Invoice, s.Vendor.NormalizedName, *s.ERP, rt.Config)
	s.MatchScore = &score
	s.MatchBreakdown = &breakdown
	s.MatchCount++

	route, outcome := RoutePass, Advance
	if score < rt.Config.MatchThreshold {
		route, outcome = RouteNeedsReview, NeedsReview
	}

	rt.record(ctx, &s, EventRouteDecision, map[string]any{
		"route":     route,
		"score":     score,
		"threshold": rt.Config.MatchThreshold,
	})
	return s, outcome, nil
}
