package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit an invoice payload and drive it until it completes, pauses, or fails",
		Long: `Submit an invoice payload and drive it until it completes, pauses, or fails.

Arguments:
  file    JSON payload file, or - to read from stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if source != "" {
				payload.Source = source
			}

			return withSession(cmd, opts, func(s *session) error {
				created, err := s.runs.Create(cmd.Context(), payload)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), created)
				}
				writeOutcome(cmd.OutOrStdout(), created.RunID, created.Status, created.Stage, created.Pause, created.Error)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "invoicectl", "submission source recorded on the run")

	return cmd
}

func readPayload(stdin io.Reader, path string) (workflow.Payload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return workflow.Payload{}, fmt.Errorf("read payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var payload workflow.Payload
	if err := dec.Decode(&payload); err != nil {
		return workflow.Payload{}, fmt.Errorf("%w: decode payload: %w", runs.ErrInvalidRequest, err)
	}
	return payload, nil
}
