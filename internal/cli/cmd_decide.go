package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

func newDecideCmd(opts *globalOptions) *cobra.Command {
	var (
		reviewer   string
		checkpoint string
	)

	cmd := &cobra.Command{
		Use:   "decide <run-id> <ACCEPT|REJECT>",
		Short: "Record a reviewer decision on a paused run and resume it",
		Long: `Record a reviewer decision on a paused run and resume it.

ACCEPT resumes the run from reconciliation. REJECT ends it in
REQUIRES_MANUAL_HANDLING. A run accepts one decision per checkpoint. Once
a run has a decision and pauses again, --checkpoint must name the open
checkpoint shown in its review URL.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			decide := runs.DecideCommand{
				Decision: workflow.Decision(args[1]),
				Reviewer: reviewer,
			}
			if checkpoint != "" {
				if decide.CheckpointID, err = uuid.Parse(checkpoint); err != nil {
					return fmt.Errorf("%w: checkpoint: %w", runs.ErrInvalidRequest, err)
				}
			}

			return withSession(cmd, opts, func(s *session) error {
				ack, err := s.runs.Decide(cmd.Context(), id, decide)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), ack)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "decision %s recorded by %s\n", ack.Decision, ack.DecidedBy)
				writeOutcome(cmd.OutOrStdout(), ack.RunID, ack.Status, ack.Stage, ack.Pause, nil)
				if ack.ErrorKind != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", ack.ErrorKind)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", os.Getenv("USER"), "reviewer recorded with the decision")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "checkpoint ID being decided")

	return cmd
}
