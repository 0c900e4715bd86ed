// Package cli implements the command-line interface for s3curate.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-curate/pkg/logging"
	"github.com/eunmann/s3-curate/pkg/membudget"
	"github.com/eunmann/s3-curate/pkg/objstore"
	"github.com/eunmann/s3-curate/pkg/tableconf"
)

// Store backends selectable with --store.
const (
	StoreS3    = "s3"
	StoreLocal = "local"
)

// DefaultConfigPath is the registry loaded when --config is not given.
const DefaultConfigPath = "configs/tables.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath    string
	Debug         bool
	Human         bool
	Bucket        string
	Store         string
	LocalRoot     string
	Region        string
	Endpoint      string
	PathStyle     bool
	KeyBudget     string
	HardKeyBudget bool
}

// Run executes the CLI with the given arguments. SIGINT and SIGTERM cancel
// the running command between batches.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "s3curate",
		Short: "Deduplicate, validate and replace partitioned Parquet tables",
		Long: `s3curate streams a table's Parquet inputs through cross-file
deduplication and validation, and replaces the table's output partition
only once fresh valid data is ready to write.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Store != StoreS3 && opts.Store != StoreLocal {
				return fmt.Errorf("invalid --store %q: must be %s or %s", opts.Store, StoreS3, StoreLocal)
			}
			logging.Init(opts.Debug, opts.Human)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", DefaultConfigPath, "table registry (YAML)")
	pf.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	pf.BoolVar(&opts.Human, "human", false, "human-friendly console logs")
	pf.StringVar(&opts.Bucket, "bucket", "", "bucket name or ARN (overrides "+tableconf.EnvBucket+" and the registry)")
	pf.StringVar(&opts.Store, "store", StoreS3, "storage backend (s3|local)")
	pf.StringVar(&opts.LocalRoot, "local-root", ".", "root directory of the local backend; buckets are subdirectories")
	pf.StringVar(&opts.Region, "region", "", "AWS region (default from the AWS config chain)")
	pf.StringVar(&opts.Endpoint, "endpoint", "", "S3-compatible endpoint URL")
	pf.BoolVar(&opts.PathStyle, "path-style", false, "use path-style S3 addressing")
	pf.StringVar(&opts.KeyBudget, "key-budget", "", "seen-key memory budget, e.g. 2GiB; must be positive, unset sizes it from system RAM (overrides "+tableconf.EnvKeyBudget+")")
	pf.BoolVar(&opts.HardKeyBudget, "hard-key-budget", false, "fail a run when the key budget is exhausted")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeletePrefixCommand(opts))
	cmd.AddCommand(NewCheckConfigCommand(opts))

	return cmd
}

// loadConfig loads the registry, then applies environment and flag
// overrides in that order.
func loadConfig(opts *RootOptions) (*tableconf.Config, error) {
	cfg, err := tableconf.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if opts.Bucket != "" {
		cfg.Bucket = opts.Bucket
	}
	if opts.KeyBudget != "" {
		cfg.KeyBudget = opts.KeyBudget
	}
	if cfg.Bucket == "" {
		return nil, &tableconf.ConfigError{Reason: "no bucket: set --bucket, " + tableconf.EnvBucket + " or bucket in the registry"}
	}
	bucket, err := objstore.ParseBucketIdentifier(cfg.Bucket)
	if err != nil {
		return nil, &tableconf.ConfigError{Reason: err.Error()}
	}
	cfg.Bucket = bucket
	return cfg, nil
}

// keyBudget builds the seen-key budget shared by the runs of one command.
func keyBudget(opts *RootOptions, cfg *tableconf.Config) (*membudget.Budget, error) {
	n, err := cfg.KeyBudgetBytes()
	if err != nil {
		return nil, err
	}
	source := membudget.BudgetSourceConfig
	switch {
	case opts.KeyBudget != "":
		source = membudget.BudgetSourceCLI
	case os.Getenv(tableconf.EnvKeyBudget) != "":
		source = membudget.BudgetSourceEnv
	}
	// An unset budget (0) is sized from system RAM by membudget.New.
	return membudget.New(membudget.Config{TotalBytes: n, Source: source}), nil
}

// newStore opens the backend selected by --store.
func newStore(ctx context.Context, opts *RootOptions) (objstore.Store, error) {
	return storeFor(ctx, opts, opts.Store)
}

// storeForScheme opens the backend that serves a URI scheme.
func storeForScheme(ctx context.Context, opts *RootOptions, scheme string) (objstore.Store, error) {
	if scheme == objstore.SchemeFile {
		return storeFor(ctx, opts, StoreLocal)
	}
	return storeFor(ctx, opts, StoreS3)
}

func storeFor(ctx context.Context, opts *RootOptions, kind string) (objstore.Store, error) {
	if kind == StoreLocal {
		return objstore.NewLocalStore(opts.LocalRoot), nil
	}
	cfg := objstore.DefaultS3Config()
	cfg.Region = opts.Region
	cfg.Endpoint = opts.Endpoint
	cfg.UsePathStyle = opts.PathStyle
	return objstore.NewS3Store(ctx, cfg)
}
