package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// EmbeddedText is an OCR connector for invoices that arrive with their text
// already extracted, either inline or as text attachments.
type EmbeddedText struct{}

func (EmbeddedText) Extract(ctx context.Context, doc Document) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	parts := make([]string, 0, len(doc.Attachments)+1)
	if t := strings.TrimSpace(doc.Text); t != "" {
		parts = append(parts, t)
	}
	for _, a := range doc.Attachments {
		if strings.HasPrefix(a.ContentType, "text/") && len(a.Content) > 0 {
			parts = append(parts, strings.TrimSpace(string(a.Content)))
		}
	}

	if len(parts) == 0 {
		return Extraction{}, nil
	}
	return Extraction{Text: strings.Join(parts, "\n"), Confidence: 1}, nil
}

// VendorRecord is a vendor master entry.
type VendorRecord struct {
	Name       string            `yaml:"name"`
	TaxID      string            `yaml:"tax_id"`
	RiskScore  float64           `yaml:"risk_score"`
	Attributes map[string]string `yaml:"attributes"`
}

// VendorTable enriches vendors from a static vendor master. Unknown vendors
// receive DefaultRisk and no tax ID.
type VendorTable struct {
	Source      string
	DefaultRisk float64
	vendors     []VendorRecord
}

// NewVendorTable creates a table connector over records.
func NewVendorTable(source string, defaultRisk float64, records []VendorRecord) *VendorTable {
	return &VendorTable{Source: source, DefaultRisk: defaultRisk, vendors: records}
}

func (t *VendorTable) Enrich(ctx context.Context, q VendorQuery) (invoice.VendorProfile, error) {
	if err := ctx.Err(); err != nil {
		return invoice.VendorProfile{}, err
	}

	profile := invoice.VendorProfile{
		RawName:        q.Name,
		NormalizedName: q.NormalizedName,
		RiskScore:      t.DefaultRisk,
		Source:         t.Source,
	}

	for _, v := range t.vendors {
		byName := strings.EqualFold(strings.TrimSpace(v.Name), q.NormalizedName)
		byTax := v.TaxID != "" && strings.EqualFold(v.TaxID, q.TaxID)
		if !byName && !byTax {
			continue
		}
		profile.TaxID = v.TaxID
		profile.RiskScore = v.RiskScore
		profile.Attributes = v.Attributes
		return profile, nil
	}
	return profile, nil
}

// Fixtures is an in-memory ERP holding purchase orders and goods receipts.
// Postings and payments are recorded by idempotency key, so a repeated
// request returns the original receipt.
type Fixtures struct {
	mu       sync.Mutex
	orders   []invoice.PurchaseOrder
	receipts []invoice.GoodsReceipt
	postings map[string]invoice.PostingReceipt
	payments map[string]invoice.PaymentSchedule
	history  map[string][]invoice.HistoricalInvoice
	now      func() time.Time
}

// NewFixtures creates a fixture ERP.
func NewFixtures(orders []invoice.PurchaseOrder, receipts []invoice.GoodsReceipt) *Fixtures {
	return &Fixtures{
		orders:   orders,
		receipts: receipts,
		postings: make(map[string]invoice.PostingReceipt),
		payments: make(map[string]invoice.PaymentSchedule),
		history:  make(map[string][]invoice.HistoricalInvoice),
		now:      time.Now,
	}
}

func (f *Fixtures) Retrieve(ctx context.Context, q ERPQuery) (invoice.ERPRecords, error) {
	if err := ctx.Err(); err != nil {
		return invoice.ERPRecords{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var recs invoice.ERPRecords
	if q.PORef != "" {
		for i := range f.orders {
			if strings.EqualFold(f.orders[i].Number, q.PORef) {
				po := f.orders[i]
				recs.PO = &po
				break
			}
		}
		for i := range f.receipts {
			if strings.EqualFold(f.receipts[i].PORef, q.PORef) {
				grn := f.receipts[i]
				recs.GRN = &grn
				break
			}
		}
	}
	recs.History = append(recs.History, f.history[strings.ToUpper(q.VendorName)]...)
	return recs, nil
}

func (f *Fixtures) Post(ctx context.Context, req PostingRequest) (invoice.PostingReceipt, error) {
	if err := ctx.Err(); err != nil {
		return invoice.PostingReceipt{}, err
	}
	if req.IdempotencyKey == "" {
		return invoice.PostingReceipt{}, fmt.Errorf("%w: idempotency key required", ErrRejected)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.postings[req.IdempotencyKey]; ok {
		return r, nil
	}

	r := invoice.PostingReceipt{
		ERPInvoiceID: fmt.Sprintf("ERP-%06d", len(f.postings)+1),
		PostedAt:     f.now().UTC(),
	}
	f.postings[req.IdempotencyKey] = r

	vendor := strings.ToUpper(req.Vendor.NormalizedName)
	f.history[vendor] = append(f.history[vendor], invoice.HistoricalInvoice{
		Number:   req.Invoice.Number,
		Amount:   req.Invoice.Total,
		Currency: req.Invoice.Currency,
		PostedOn: r.PostedAt.Format(time.DateOnly),
	})
	return r, nil
}

func (f *Fixtures) SchedulePayment(ctx context.Context, req PaymentRequest) (invoice.PaymentSchedule, error) {
	if err := ctx.Err(); err != nil {
		return invoice.PaymentSchedule{}, err
	}
	if req.ERPInvoiceID == "" {
		return invoice.PaymentSchedule{}, fmt.Errorf("%w: erp invoice id required", ErrRejected)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.payments[req.IdempotencyKey]; ok {
		return p, nil
	}

	p := invoice.PaymentSchedule{
		PaymentID:    fmt.Sprintf("PAY-%06d", len(f.payments)+1),
		ScheduledFor: req.DueDate,
		Amount:       req.Amount,
		Currency:     req.Currency,
	}
	f.payments[req.IdempotencyKey] = p
	return p, nil
}
