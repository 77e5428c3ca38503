// Package cli provides the invoicectl command tree. Every command opens the
// same infrastructure the HTTP service runs on, so runs submitted or decided
// here are indistinguishable from runs handled through the API.
package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/config"
)

type globalOptions struct {
	ConfigPath string
	JSON       bool
}

// NewRootCmd creates the root invoicectl command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the invoice processing workflow",
		Long: `invoicectl - operator CLI for the invoice processing workflow

Submits invoices, inspects runs, records reviewer decisions on paused runs,
cancels and recovers runs, and inspects the tool registry. Commands use the
configured checkpoint store directly; use the database backend to share runs
with a running server.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.BaseConfigFile, "path to the base config file")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output as JSON")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newSubmitCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDecideCmd(opts),
		newCancelCmd(opts),
		newRecoverCmd(opts),
		newToolsCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command with the given arguments and output writers.
func Execute(args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
