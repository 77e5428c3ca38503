package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/formatting"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeOutcome prints where a run stopped after a drive.
func writeOutcome(w io.Writer, id fmt.Stringer, status workflow.Status, stage workflow.Stage, pause *workflow.PauseRef, runErr *workflow.RunError) {
	fmt.Fprintf(w, "run %s: %s at %s\n", id, status, stage)
	if status == workflow.StatusPaused && pause != nil {
		fmt.Fprintf(w, "  review: %s (%s)\n", pause.ReviewURL, pause.Kind)
		if pause.Reason != "" {
			fmt.Fprintf(w, "  reason: %s\n", pause.Reason)
		}
	}
	if runErr != nil {
		fmt.Fprintf(w, "  error: %s: %s\n", runErr.Kind, runErr.Message)
	}
}

func amount(sum workflow.Summary) string {
	return formatting.FormatAmount(sum.Amount, "")
}

func score(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
