package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover [run-id]",
		Short: "Re-drive interrupted runs from their last persisted stage",
		Long: `Re-drive interrupted runs from their last persisted stage.

With a run ID only that run is recovered; otherwise every RUNNING run is.
A run interrupted inside a side-effecting stage is not re-driven and ends
in REQUIRES_MANUAL_HANDLING.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				if len(args) == 0 {
					n, err := s.runs.RecoverAll(cmd.Context())
					if err != nil {
						return err
					}
					if opts.JSON {
						return writeJSON(cmd.OutOrStdout(), map[string]int{"recovered": n})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "recovered %d runs\n", n)
					return nil
				}

				id, err := parseRunID(args[0])
				if err != nil {
					return err
				}
				p, err := s.runs.Recover(cmd.Context(), id)
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

	return cmd
}
