package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		filters runs.Filters
		page    pagination.PageRequest
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List runs, most recently updated first",
		Long: `List runs, most recently updated first.

The review queue is the list of paused runs:
  invoicectl ls --status PAUSED`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				result, err := s.runs.List(cmd.Context(), page, filters)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}

				if len(result.Data) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no runs")
					return nil
				}

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "RUN_ID\tSTATUS\tSTAGE\tPAUSE\tINVOICE\tVENDOR\tAMOUNT\tSCORE")
				for _, sum := range result.Data {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						sum.RunID, sum.Status, sum.Stage, sum.PauseKind,
						sum.InvoiceNumber, sum.VendorName, amount(sum), score(sum.MatchScore))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d runs)\n", result.Page, result.TotalPages, result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&filters.Stage, "stage", "", "filter by stage")
	cmd.Flags().StringVar(&filters.PauseKind, "pause-kind", "", "filter paused runs by pause kind")
	cmd.Flags().IntVar(&page.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&page.PageSize, "page-size", 0, "page size (0 uses the configured default)")

	return cmd
}
