package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCheckConfigCommand creates the check-config command.
func NewCheckConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the table registry and print its tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "bucket: %s\n", cfg.Bucket)
			for _, name := range cfg.Names() {
				t := cfg.Tables[name]
				fmt.Fprintf(tw, "%s\t%s\t%s -> %s\n", name, modeSummary(t), t.InputPrefix, t.OutputPrefix)
			}
			return tw.Flush()
		},
	}
}
