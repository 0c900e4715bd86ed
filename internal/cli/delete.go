package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-curate/pkg/logging"
	"github.com/eunmann/s3-curate/pkg/objstore"
)

// NewDeletePrefixCommand creates the delete-prefix command.
func NewDeletePrefixCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-prefix <uri>",
		Short: "Delete every object under a prefix",
		Long: `Delete every object under a prefix in batches of at most 1000 keys.

Without --yes the command only reports how many objects would be deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, bucket, prefix, err := objstore.ParseURI(args[0])
			if err != nil {
				return err
			}
			if prefix == "" {
				return errors.New("refusing to delete a whole bucket; give a key prefix")
			}
			ctx := cmd.Context()
			store, err := storeForScheme(ctx, rootOpts, scheme)
			if err != nil {
				return err
			}

			if !yes {
				keys, err := store.List(ctx, bucket, prefix)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "would delete %d objects under %s (pass --yes to delete)\n", len(keys), args[0])
				return nil
			}

			n, err := store.DeleteAll(ctx, bucket, prefix)
			logger := logging.WithPhase(logging.PhaseCommit)
			logger.Info().Str("prefix", args[0]).Int("attempted", n).Err(err).Msg("prefix deleted")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d objects under %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "actually delete")
	return cmd
}
