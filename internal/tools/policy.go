package tools

import "strings"

// Policy scores an eligible descriptor for a selection context.
// Higher scores win; detail is recorded in the selection reason.
type Policy interface {
	Score(d Descriptor, sc SelectionContext) (score int, detail string)
}

// SpecificityPolicy prefers tools that explicitly declare the run's region
// and document type, and penalizes degraded tools.
type SpecificityPolicy struct{}

func (SpecificityPolicy) Score(d Descriptor, sc SelectionContext) (int, string) {
	var (
		score int
		parts []string
	)

	if sc.Region != "" && containsFold(d.Regions, sc.Region) {
		score += 2
		parts = append(parts, "region")
	}
	if sc.DocumentType != "" && containsFold(d.DocumentTypes, sc.DocumentType) {
		score++
		parts = append(parts, "document_type")
	}
	if d.Health == Degraded {
		score -= 4
		parts = append(parts, "degraded")
	}

	if len(parts) == 0 {
		return score, "generic"
	}
	return score, strings.Join(parts, "+")
}
