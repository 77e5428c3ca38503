package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/formatting"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var showCheckpoints bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the projection of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			return withSession(cmd, opts, func(s *session) error {
				p, err := s.runs.Find(cmd.Context(), id)
				if err != nil {
					return err
				}

				var cps []workflow.Checkpoint
				if showCheckpoints {
					if cps, err = s.runs.Checkpoints(cmd.Context(), id); err != nil {
						return err
					}
				}

				if opts.JSON {
					if showCheckpoints {
						return writeJSON(cmd.OutOrStdout(), struct {
							*runs.Projection
							Checkpoints []workflow.Checkpoint `json:"checkpoints"`
						}{p, cps})
					}
					return writeJSON(cmd.OutOrStdout(), p)
				}

				writeProjection(cmd, p)
				if showCheckpoints {
					writeCheckpoints(cmd, cps)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showCheckpoints, "checkpoints", false, "include review checkpoint history")

	return cmd
}

func writeProjection(cmd *cobra.Command, p *runs.Projection) {
	w := cmd.OutOrStdout()
	writeOutcome(w, p.RunID, p.Status, p.Stage, p.Pause, p.Error)

	if p.Invoice != nil {
		fmt.Fprintf(w, "  invoice: %s from %s, %s\n", p.Invoice.Number, p.Invoice.VendorName,
			formatting.FormatAmount(p.Invoice.Total, p.Invoice.Currency))
	}
	if p.MatchScore != nil {
		fmt.Fprintf(w, "  match score: %s\n", score(p.MatchScore))
	}
	if p.Decision != nil {
		fmt.Fprintf(w, "  decision: %s by %s\n", *p.Decision, p.DecidedBy)
	}
	if p.Posting != nil {
		fmt.Fprintf(w, "  posted: %s\n", p.Posting.ERPInvoiceID)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "\nTIME\tSTAGE\tEVENT")
	for _, e := range p.Audit {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Format("15:04:05.000"), e.Stage, e.Event)
	}
	tw.Flush()
}

func writeCheckpoints(cmd *cobra.Command, cps []workflow.Checkpoint) {
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "\nCHECKPOINT\tKIND\tSTATUS\tDECISION\tDECIDED_BY")
	for _, cp := range cps {
		decision := "-"
		if cp.Decision != nil {
			decision = string(*cp.Decision)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", cp.ID, cp.Kind, cp.Status, decision, cp.DecidedBy)
	}
	tw.Flush()
}
