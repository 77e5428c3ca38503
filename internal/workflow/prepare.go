package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

var legalSuffixes = map[string]bool{
	"PRIVATE":      true,
	"PVT":          true,
	"LIMITED":      true,
	"LTD":          true,
	"INC":          true,
	"INCORPORATED": true,
	"LLC":          true,
	"LLP":          true,
	"CORP":         true,
	"CORPORATION":  true,
	"CO":           true,
	"COMPANY":      true,
	"GMBH":         true,
	"PLC":          true,
}

// NormalizeVendor upper-cases name, replaces punctuation with spaces, and
// drops trailing legal-form suffixes. The same input always yields the same
// output.
func NormalizeVendor(name string) string {
	fields := strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	for len(fields) > 1 && legalSuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Prepare normalizes the vendor, enriches it through the selected tool, and
// raises validation flags.
func Prepare(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if s.Invoice == nil {
		return s, Halt, fmt.Errorf("%w: prepare without parsed invoice", ErrInternal)
	}

	sel, err := rt.selectTool(ctx, &s, tools.Enrichment)
	if err != nil {
		return s, Halt, err
	}

	q := tools.VendorQuery{
		Name:           s.Invoice.VendorName,
		NormalizedName: NormalizeVendor(s.Invoice.VendorName),
		TaxID:          s.Invoice.VendorTaxID,
		Region:         s.Payload.Region,
	}

	profile, err := invoke(ctx, rt, &s, sel.Tool, "enrich", func(ctx context.Context) (invoice.VendorProfile, error) {
		return sel.Descriptor().Enrichment.Enrich(ctx, q)
	})
	if err != nil {
		return s, Halt, fmt.Errorf("%w: %w", ErrToolFailed, err)
	}

	if profile.RawName == "" {
		profile.RawName = q.Name
	}
	if profile.NormalizedName == "" {
		profile.NormalizedName = q.NormalizedName
	}
	if profile.Source == "" {
		profile.Source = sel.Tool
	}
	s.Vendor = &profile

	s.Flags = rt.flags(s)
	for _, f := range []struct {
		name   string
		raised bool
	}{
		{"tax_id_mismatch", s.Flags.TaxIDMismatch},
		{"high_amount", s.Flags.HighAmount},
		{"missing_po", s.Flags.MissingPO},
		{"high_risk", s.Flags.HighRisk},
	} {
		if f.raised {
			rt.record(ctx, &s, EventFlagRaised, map[string]any{"flag": f.name})
		}
	}

	return s, Advance, nil
}

func (rt *Runtime) flags(s RunState) Flags {
	inv := s.Invoice
	po := strings.ToUpper(strings.TrimSpace(inv.PORef))

	return Flags{
		TaxIDMismatch: inv.VendorTaxID != "" && s.Vendor.TaxID != "" && !strings.EqualFold(inv.VendorTaxID, s.Vendor.TaxID),
		HighAmount:    inv.Total > rt.Config.HighAmountThreshold,
		MissingPO:     po == "" || po == "NA" || po == "N/A",
		HighRisk:      s.Vendor.RiskScore >= rt.Config.HighRiskScore,
	}
}
