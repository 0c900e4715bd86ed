package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-curate/pkg/objstore"
	"github.com/eunmann/s3-curate/pkg/parquetio"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		ext     string
		columns bool
	)

	cmd := &cobra.Command{
		Use:   "list <uri>",
		Short: "List data files under a prefix in processing order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, bucket, prefix, err := objstore.ParseURI(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := storeForScheme(ctx, rootOpts, scheme)
			if err != nil {
				return err
			}
			uris, err := objstore.ListURIs(ctx, store, bucket, prefix, ext)
			if err != nil {
				return err
			}
			for _, u := range uris {
				if !columns {
					fmt.Fprintln(cmd.OutOrStdout(), u)
					continue
				}
				cols, err := fileColumns(ctx, store, u)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u, strings.Join(cols, ","))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ext, "ext", parquetio.Extension, "only list keys with this suffix (empty lists all)")
	cmd.Flags().BoolVar(&columns, "columns", false, "also print each file's Parquet columns")
	return cmd
}

func fileColumns(ctx context.Context, store objstore.Store, uri string) ([]string, error) {
	obj, err := objstore.OpenURI(ctx, store, uri)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	cols, err := parquetio.Columns(obj, obj.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return cols, nil
}
