// Package tools provides the pluggable connector layer: capability
// interfaces for OCR, vendor enrichment, and ERP access, tool descriptors,
// and a registry that selects one eligible tool per capability.
package tools

import (
	"context"
	"fmt"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// Capability names the kind of work a tool performs.
type Capability string

const (
	OCR        Capability = "OCR"
	Enrichment Capability = "ENRICHMENT"
	ERP        Capability = "ERP"
)

// ParseCapability accepts the capability name in any case.
func ParseCapability(s string) (Capability, error) {
	switch Capability(upper(s)) {
	case OCR:
		return OCR, nil
	case Enrichment:
		return Enrichment, nil
	case ERP:
		return ERP, nil
	default:
		return "", fmt.Errorf("%w: unknown capability %q", ErrInvalidDescriptor, s)
	}
}

// Health is the operational state reported for a tool.
type Health string

const (
	Healthy   Health = "healthy"
	Degraded  Health = "degraded"
	Unhealthy Health = "unhealthy"
)

// Document is the OCR input.
type Document struct {
	RunID        string               `json:"run_id"`
	Text         string               `json:"text,omitempty"`
	Attachments  []invoice.Attachment `json:"attachments,omitempty"`
	Region       string               `json:"region,omitempty"`
	DocumentType string               `json:"document_type,omitempty"`
}

// Extraction is the OCR output.
type Extraction struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// VendorQuery is the enrichment input.
type VendorQuery struct {
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	TaxID          string `json:"tax_id,omitempty"`
	Region         string `json:"region,omitempty"`
}

// ERPQuery identifies the records retrieved for matching.
type ERPQuery struct {
	PORef         string `json:"po_ref,omitempty"`
	VendorName    string `json:"vendor_name"`
	VendorTaxID   string `json:"vendor_tax_id,omitempty"`
	InvoiceNumber string `json:"invoice_number"`
}

// PostingRequest submits an invoice and its journal to the ERP.
// IdempotencyKey is stable for a run so a repeated post is recognizable.
type PostingRequest struct {
	IdempotencyKey string                    `json:"idempotency_key"`
	Invoice        invoice.Invoice           `json:"invoice"`
	Vendor         invoice.VendorProfile     `json:"vendor"`
	Entries        []invoice.AccountingEntry `json:"entries"`
}

// PaymentRequest schedules payment of a posted invoice.
type PaymentRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	ERPInvoiceID   string  `json:"erp_invoice_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	DueDate        string  `json:"due_date"`
}

// OCRConnector extracts text from invoice documents.
type OCRConnector interface {
	Extract(ctx context.Context, doc Document) (Extraction, error)
}

// EnrichmentConnector resolves a vendor profile.
type EnrichmentConnector interface {
	Enrich(ctx context.Context, q VendorQuery) (invoice.VendorProfile, error)
}

// ERPConnector reads matching records and writes postings and payments.
type ERPConnector interface {
	Retrieve(ctx context.Context, q ERPQuery) (invoice.ERPRecords, error)
	Post(ctx context.Context, req PostingRequest) (invoice.PostingReceipt, error)
	SchedulePayment(ctx context.Context, req PaymentRequest) (invoice.PaymentSchedule, error)
}

// Descriptor registers one tool. Exactly one connector field matching
// Capability must be set.
type Descriptor struct {
	Name          string
	Capability    Capability
	Driver        string
	Priority      int
	Health        Health
	Regions       []string
	DocumentTypes []string

	OCR        OCRConnector
	Enrichment EnrichmentConnector
	ERP        ERPConnector
}

// Info is the serializable view of a descriptor.
type Info struct {
	Name          string     `json:"name"`
	Capability    Capability `json:"capability"`
	Driver        string     `json:"driver,omitempty"`
	Priority      int        `json:"priority"`
	Health        Health     `json:"health"`
	Regions       []string   `json:"regions,omitempty"`
	DocumentTypes []string   `json:"document_types,omitempty"`
}

// Info returns the serializable view of d.
func (d Descriptor) Info() Info {
	return Info{
		Name:          d.Name,
		Capability:    d.Capability,
		Driver:        d.Driver,
		Priority:      d.Priority,
		Health:        d.Health,
		Regions:       d.Regions,
		DocumentTypes: d.DocumentTypes,
	}
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.Health == "" {
		d.Health = Healthy
	}
	switch d.Health {
	case Healthy, Degraded, Unhealthy:
	default:
		return fmt.Errorf("%w: %s: unknown health %q", ErrInvalidDescriptor, d.Name, d.Health)
	}

	var ok bool
	switch d.Capability {
	case OCR:
		ok = d.OCR != nil
	case Enrichment:
		ok = d.Enrichment != nil
	case ERP:
		ok = d.ERP != nil
	default:
		return fmt.Errorf("%w: %s: unknown capability %q", ErrInvalidDescriptor, d.Name, d.Capability)
	}
	if !ok {
		return fmt.Errorf("%w: %s: no %s connector", ErrInvalidDescriptor, d.Name, d.Capability)
	}
	return nil
}
