package runs

import (
	"net/url"
	"strings"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

// Filters narrows a run listing. Values match exactly and are case-insensitive.
type Filters struct {
	Status    string `json:"status,omitempty"`
	Stage     string `json:"stage,omitempty"`
	PauseKind string `json:"pause_kind,omitempty"`
}

// FiltersFromQuery reads status, stage, and pause_kind query parameters.
func FiltersFromQuery(values url.Values) Filters {
	return Filters{
		Status:    values.Get("status"),
		Stage:     values.Get("stage"),
		PauseKind: values.Get("pause_kind"),
	}
}

// ListFilter converts f to the store filter.
func (f Filters) ListFilter() workflow.ListFilter {
	norm := func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return workflow.ListFilter{
		Status:    workflow.Status(norm(f.Status)),
		Stage:     workflow.Stage(norm(f.Stage)),
		PauseKind: workflow.PauseKind(norm(f.PauseKind)),
	}
}
