package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Understand runs OCR through the selected tool, parses the text, and
// merges the result under the structured payload fields.
func Understand(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	sel, err := rt.selectTool(ctx, &s, tools.OCR)
	if err != nil {
		return s, Halt, err
	}

	doc := tools.Document{
		RunID:        s.RunID.String(),
		Text:         s.Payload.OCRText,
		Attachments:  s.Payload.Attachments,
		Region:       s.Payload.Region,
		DocumentType: s.Payload.DocumentType,
	}

	ext, err := invoke(ctx, rt, &s, sel.Tool, "extract", func(ctx context.Context) (tools.Extraction, error) {
		return sel.Descriptor().OCR.Extract(ctx, doc)
	})
	if err != nil {
		return s, Halt, fmt.Errorf("%w: %w", ErrToolFailed, err)
	}

	s.OCRText = ext.Text
	s.OCRConfidence = ext.Confidence

	inv := mergeInvoice(ParseText(ext.Text), s.Payload, rt.Config.DefaultCurrency)

	var missing []string
	if inv.Number == "" {
		missing = append(missing, "invoice number")
	}
	if inv.VendorName == "" {
		missing = append(missing, "vendor")
	}
	if inv.Total <= 0 {
		missing = append(missing, "total")
	}
	if len(missing) > 0 {
		return s, Halt, fmt.Errorf("%w: missing %s", ErrParse, strings.Join(missing, ", "))
	}

	s.Invoice = &inv

	rt.Logger.InfoContext(
		ctx, "invoice parsed",
		"run_id", s.RunID,
		"invoice_number", inv.Number,
		"vendor", inv.VendorName,
		"total", inv.Total,
		"lines", len(inv.LineItems),
	)
	return s, Advance, nil
}
