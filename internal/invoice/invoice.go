// Package invoice defines the invoice, vendor, ERP, and accounting records
// exchanged between workflow stages and tool connectors.
package invoice

import (
	"math"
	"strings"
	"time"
)

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string  `json:"description" validate:"required"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Amount      float64 `json:"amount,omitempty" validate:"gte=0"`
	POLineRef   string  `json:"po_line_ref,omitempty"`
	GLAccount   string  `json:"gl_account,omitempty"`
}

// Total returns Amount when set, otherwise Quantity * UnitPrice.
func (l LineItem) Total() float64 {
	if l.Amount > 0 {
		return l.Amount
	}
	return l.Quantity * l.UnitPrice
}

// Attachment is a file delivered with the invoice. Content is dropped from
// run state once it has been archived under StorageKey.
type Attachment struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content,omitempty"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Size        int64  `json:"size,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
}

// Invoice is the parsed invoice header and lines.
type Invoice struct {
	Number      string     `json:"number"`
	VendorName  string     `json:"vendor_name"`
	VendorTaxID string     `json:"vendor_tax_id,omitempty"`
	Currency    string     `json:"currency"`
	Total       float64    `json:"total"`
	Tax         float64    `json:"tax,omitempty"`
	PORef       string     `json:"po_ref,omitempty"`
	IssueDate   string     `json:"issue_date,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	LineItems   []LineItem `json:"line_items"`
}

// Net returns the invoice total excluding tax.
func (i Invoice) Net() float64 {
	return i.Total - i.Tax
}

// VendorProfile is the enriched vendor record.
type VendorProfile struct {
	RawName        string            `json:"raw_name"`
	NormalizedName string            `json:"normalized_name"`
	TaxID          string            `json:"tax_id,omitempty"`
	RiskScore      float64           `json:"risk_score"`
	Source         string            `json:"source,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// POLine is a purchase order line.
type POLine struct {
	Ref         string  `json:"ref" yaml:"ref"`
	SKU         string  `json:"sku,omitempty" yaml:"sku"`
	Description string  `json:"description" yaml:"description"`
	Quantity    float64 `json:"quantity" yaml:"quantity"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
}

// PurchaseOrder is the ERP purchase order referenced by an invoice.
type PurchaseOrder struct {
	Number     string   `json:"number" yaml:"number"`
	VendorName string   `json:"vendor_name" yaml:"vendor"`
	Currency   string   `json:"currency" yaml:"currency"`
	Total      float64  `json:"total" yaml:"total"`
	Lines      []POLine `json:"lines" yaml:"lines"`
}

// LineTotal returns Total when set, otherwise the sum of line extensions.
func (p PurchaseOrder) LineTotal() float64 {
	if p.Total > 0 {
		return p.Total
	}
	var sum float64
	for _, l := range p.Lines {
		sum += l.Quantity * l.UnitPrice
	}
	return sum
}

// ReceiptLine records goods received against a purchase order line.
type ReceiptLine struct {
	POLineRef        string  `json:"po_line_ref" yaml:"po_line_ref"`
	SKU              string  `json:"sku,omitempty" yaml:"sku"`
	QuantityReceived float64 `json:"quantity_received" yaml:"quantity_received"`
}

// GoodsReceipt is the goods receipt note for a purchase order.
type GoodsReceipt struct {
	Number string        `json:"number" yaml:"number"`
	PORef  string        `json:"po_ref" yaml:"po"`
	Lines  []ReceiptLine `json:"lines" yaml:"lines"`
}

// Received returns the quantity received for a purchase order line.
func (g GoodsReceipt) Received(ref, sku string) float64 {
	var qty float64
	for _, l := range g.Lines {
		if (ref != "" && l.POLineRef == ref) || (ref == "" && sku != "" && strings.EqualFold(l.SKU, sku)) {
			qty += l.QuantityReceived
		}
	}
	return qty
}

// HistoricalInvoice is a previously posted invoice for the same vendor.
type HistoricalInvoice struct {
	Number   string  `json:"number"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	PostedOn string  `json:"posted_on,omitempty"`
}

// ERPRecords are the artifacts retrieved from the ERP for matching.
type ERPRecords struct {
	PO      *PurchaseOrder      `json:"po,omitempty"`
	GRN     *GoodsReceipt       `json:"grn,omitempty"`
	History []HistoricalInvoice `json:"history,omitempty"`
}

// EntryType is the side of an accounting entry.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// AccountingEntry is one leg of the journal posted to the ERP.
type AccountingEntry struct {
	Account     string    `json:"account"`
	Type        EntryType `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
}

// PostingReceipt confirms an invoice was posted to the ERP.
type PostingReceipt struct {
	ERPInvoiceID string    `json:"erp_invoice_id"`
	PostedAt     time.Time `json:"posted_at"`
}

// PaymentSchedule confirms a scheduled payment.
type PaymentSchedule struct {
	PaymentID    string  `json:"payment_id"`
	ScheduledFor string  `json:"scheduled_for"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// Cents converts an amount to integer minor units, rounding half away from zero.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts integer minor units to an amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
