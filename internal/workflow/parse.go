package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

var (
	reInvoiceNumber = regexp.MustCompile(`(?im)^\s*invoice\s*(?:no\.?|number|#|id)\s*[:#]?\s*([A-Z0-9][A-Z0-9/_-]*)`)
	reVendor        = regexp.MustCompile(`(?im)^\s*(?:vendor|supplier|from|seller)\s*:\s*(.+?)\s*$`)
	reTaxID         = regexp.MustCompile(`(?im)^\s*(?:tax\s*id|gstin|vat\s*(?:no\.?|number|id)?)\s*[:#]\s*([A-Z0-9-]+)`)
	rePORef         = regexp.MustCompile(`(?im)^\s*(?:po|p\.o\.|purchase\s+order)\s*(?:no\.?|number|#|ref(?:erence)?)?\s*[:#]\s*([A-Z0-9][A-Z0-9/_-]*)`)
	reTotal         = regexp.MustCompile(`(?im)^\s*(?:grand\s+total|total\s+due|amount\s+due|total)\s*:?\s*(?:([A-Z]{3})\s*)?([0-9][0-9,]*(?:\.[0-9]+)?)\s*$`)
	reTax           = regexp.MustCompile(`(?im)^\s*(?:tax|gst|vat)(?:\s+amount)?\s*:\s*(?:[A-Z]{3}\s*)?([0-9][0-9,]*(?:\.[0-9]+)?)\s*$`)
	reCurrency      = regexp.MustCompile(`(?im)^\s*currency\s*:\s*([A-Z]{3})\s*$`)
	reIssueDate     = regexp.MustCompile(`(?im)^\s*(?:invoice\s+)?date\s*:\s*(\d{4}-\d{2}-\d{2})`)
	reDueDate       = regexp.MustCompile(`(?im)^\s*due(?:\s+date)?\s*:\s*(\d{4}-\d{2}-\d{2})`)
	reLine          = regexp.MustCompile(`(?im)^\s*(?:line|item)\s*:\s*([^|]+?)\s*\|\s*([0-9][0-9,.]*)\s*\|\s*([0-9][0-9,.]*)(?:\s*\|\s*([A-Z0-9][A-Z0-9_-]*))?(?:\s*\|\s*([A-Z0-9][A-Z0-9_-]*))?\s*$`)
)

// ParseText extracts an invoice from OCR text. Recognized lines:
//
//	Invoice Number: INV-1001
//	Vendor: Acme Supplies Pvt Ltd
//	Tax ID: 27AAACA1234A1Z5
//	PO Number: PO-1001
//	Date: 2026-10-01
//	Due Date: 2026-10-31
//	Currency: USD
//	Line: Widget | 10 | 100.00 | W-1 | 1
//	Tax: 180.00
//	Total: 1180.00
//
// Line fields are description, quantity, unit price, and the optional SKU
// and purchase order line reference.
func ParseText(text string) invoice.Invoice {
	var inv invoice.Invoice

	inv.Number = firstMatch(reInvoiceNumber, text, 1)
	inv.VendorName = firstMatch(reVendor, text, 1)
	inv.VendorTaxID = strings.ToUpper(firstMatch(reTaxID, text, 1))
	inv.PORef = strings.ToUpper(firstMatch(rePORef, text, 1))
	inv.IssueDate = firstMatch(reIssueDate, text, 1)
	inv.DueDate = firstMatch(reDueDate, text, 1)
	inv.Currency = strings.ToUpper(firstMatch(reCurrency, text, 1))

	if m := reTotal.FindStringSubmatch(text); m != nil {
		if inv.Currency == "" {
			inv.Currency = strings.ToUpper(m[1])
		}
		inv.Total = parseAmount(m[2])
	}
	inv.Tax = parseAmount(firstMatch(reTax, text, 1))

	for _, m := range reLine.FindAllStringSubmatch(text, -1) {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			Description: m[1],
			Quantity:    parseAmount(m[2]),
			UnitPrice:   parseAmount(m[3]),
			SKU:         strings.ToUpper(m[4]),
			POLineRef:   m[5],
		})
	}
	return inv
}

// mergeInvoice overlays structured payload fields on the parsed invoice.
// Structured fields win.
func mergeInvoice(parsed invoice.Invoice, p Payload, defaultCurrency string) invoice.Invoice {
	inv := parsed
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	pick(&inv.Number, p.InvoiceNumber)
	pick(&inv.VendorName, p.VendorName)
	pick(&inv.VendorTaxID, strings.ToUpper(p.VendorTaxID))
	pick(&inv.PORef, strings.ToUpper(strings.TrimSpace(p.PORef)))
	pick(&inv.Currency, strings.ToUpper(p.Currency))
	pick(&inv.IssueDate, p.InvoiceDate)
	pick(&inv.DueDate, p.DueDate)

	if p.Amount > 0 {
		inv.Total = p.Amount
	}
	if p.TaxAmount > 0 {
		inv.Tax = p.TaxAmount
	}
	if len(p.LineItems) > 0 {
		inv.LineItems = append([]invoice.LineItem(nil), p.LineItems...)
	}

	if inv.Currency == "" {
		inv.Currency = defaultCurrency
	}

	for i := range inv.LineItems {
		if inv.LineItems[i].Amount == 0 {
			inv.LineItems[i].Amount = inv.LineItems[i].Quantity * inv.LineItems[i].UnitPrice
		}
	}

	if inv.Total == 0 {
		var sum int64
		for _, l := range inv.LineItems {
			sum += invoice.Cents(l.Total())
		}
		inv.Total = invoice.FromCents(sum + invoice.Cents(inv.Tax))
	}

	if len(inv.LineItems) == 0 && inv.Total > 0 {
		net := invoice.FromCents(invoice.Cents(inv.Total) - invoice.Cents(inv.Tax))
		inv.LineItems = []invoice.LineItem{{
			Description: "Invoice total",
			Quantity:    1,
			UnitPrice:   net,
			Amount:      net,
		}}
	}

	return inv
}

func firstMatch(re *regexp.Regexp, text string, group int) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[group])
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
