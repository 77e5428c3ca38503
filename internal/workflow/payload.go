package workflow

import (
	"slices"
	"strings"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Payload is the raw invoice submission. Structured fields are optional
// when OCR text or attachments carry the invoice.
type Payload struct {
	InvoiceNumber string  `json:"invoice_number,omitempty" validate:"required_without_all=OCRText Attachments"`
	VendorName    string  `json:"vendor_name,omitempty"`
	VendorTaxID   string  `json:"vendor_tax_id,omitempty" validate:"omitempty,max=32"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Amount        float64 `json:"amount,omitempty" validate:"gte=0"`
	TaxAmount     float64 `json:"tax_amount,omitempty" validate:"gte=0"`
	PORef         string  `json:"po_ref,omitempty"`
	InvoiceDate   string  `json:"invoice_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string  `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Region        string  `json:"region,omitempty" validate:"omitempty,max=16"`
	DocumentType  string  `json:"document_type,omitempty" validate:"omitempty,max=64"`
	Source        string  `json:"source,omitempty"`
	OCRText       string  `json:"ocr_text,omitempty"`

	LineItems   []invoice.LineItem   `json:"line_items,omitempty" validate:"dive"`
	Attachments []invoice.Attachment `json:"attachments,omitempty" validate:"dive"`

	// PreferredTools maps a capability (OCR, ENRICHMENT, ERP) to a tool name.
	PreferredTools map[string]string `json:"preferred_tools,omitempty"`
}

func (p Payload) clone() Payload {
	c := p
	c.LineItems = slices.Clone(p.LineItems)
	c.Attachments = slices.Clone(p.Attachments)
	if p.PreferredTools != nil {
		c.PreferredTools = make(map[string]string, len(p.PreferredTools))
		for k, v := range p.PreferredTools {
			c.PreferredTools[k] = v
		}
	}
	return c
}

func (p Payload) selectionContext(c tools.Capability) tools.SelectionContext {
	sc := tools.SelectionContext{
		Region:       p.Region,
		DocumentType: p.DocumentType,
	}
	for k, v := range p.PreferredTools {
		if strings.EqualFold(k, string(c)) {
			sc.Preferred = v
		}
	}
	return sc
}
