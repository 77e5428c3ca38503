package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/config"
	"github.com/JaimeStill/invoiceflow/internal/tools"
)

func newToolsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}

	cmd.AddCommand(
		newToolsListCmd(opts),
		newToolsSelectCmd(opts),
	)

	return cmd
}

func newToolsListCmd(opts *globalOptions) *cobra.Command {
	var capability string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var c tools.Capability
			if capability != "" {
				var err error
				if c, err = tools.ParseCapability(capability); err != nil {
					return err
				}
			}

			registry, err := loadRegistry(opts)
			if err != nil {
				return err
			}

			infos := registry.List(c)
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NAME\tCAPABILITY\tDRIVER\tPRIORITY\tHEALTH\tREGIONS\tDOCUMENT_TYPES")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					info.Name, info.Capability, info.Driver, info.Priority, info.Health,
					orAny(info.Regions), orAny(info.DocumentTypes))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&capability, "capability", "", "only list tools with this capability (OCR, ENRICHMENT, ERP)")

	return cmd
}

func newToolsSelectCmd(opts *globalOptions) *cobra.Command {
	var sc tools.SelectionContext

	cmd := &cobra.Command{
		Use:   "select <capability>",
		Short: "Show which tool would be selected for a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capability, err := tools.ParseCapability(args[0])
			if err != nil {
				return err
			}

			registry, err := loadRegistry(opts)
			if err != nil {
				return err
			}

			sel, err := registry.Select(capability, sc)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), sel)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %s (%s)\n", sel.Capability, sel.Tool, sel.Reason)
			for _, r := range sel.Rejected {
				fmt.Fprintf(w, "  rejected %s: %s\n", r.Tool, r.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sc.Region, "region", "", "invoice region")
	cmd.Flags().StringVar(&sc.DocumentType, "document-type", "", "invoice document type")
	cmd.Flags().StringVar(&sc.Preferred, "prefer", "", "preferred tool name")

	return cmd
}

// loadRegistry builds the configured registry without starting any stores.
func loadRegistry(opts *globalOptions) (*tools.Registry, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	ds, err := cfg.Tools.Descriptors()
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	if err := registry.Replace(ds); err != nil {
		return nil, err
	}
	return registry, nil
}

func orAny(values []string) string {
	if len(values) == 0 {
		return "*"
	}
	return strings.Join(values, ",")
}
