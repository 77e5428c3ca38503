package cli

import (
	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/runs"
)

func newCancelCmd(opts *globalOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a running or paused run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			return withSession(cmd, opts, func(s *session) error {
				p, err := s.runs.Cancel(cmd.Context(), id, runs.CancelCommand{Reason: reason})
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), p)
				}
				writeOutcome(cmd.OutOrStdout(), p.RunID, p.Status, p.Stage, p.Pause, p.Error)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the run")

	return cmd
}
