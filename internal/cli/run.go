package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-curate/pkg/curate"
	"github.com/eunmann/s3-curate/pkg/logging"
	"github.com/eunmann/s3-curate/pkg/memdiag"
	"github.com/eunmann/s3-curate/pkg/tableconf"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	RunDate    string
	All        bool
	Parallel   int
	NaturalKey []string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [table...]",
		Short: "Curate one or more tables",
		Long: `Run the named tables (or every declared table with --all).

Each table streams its input files through dedup and validation. The output
partition is deleted only once the first valid batch is ready, then parts
are written one per surviving input file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.RunDate, "run-date", "", "run date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "run every declared table")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 1, "maximum tables run concurrently")
	cmd.Flags().StringSliceVar(&opts.NaturalKey, "natural-key", nil, "expected natural key columns (single table only)")

	return cmd
}

func runRun(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions, args []string) error {
	switch {
	case opts.All && len(args) > 0:
		return errors.New("give table names or --all, not both")
	case !opts.All && len(args) == 0:
		return errors.New("at least one table name is required (or --all)")
	case len(opts.NaturalKey) > 0 && len(args) != 1:
		return errors.New("--natural-key applies to exactly one table")
	}

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	names := args
	if opts.All {
		names = cfg.Names()
	}

	reqs := make([]curate.Request, 0, len(names))
	for _, name := range names {
		t, err := cfg.Table(name)
		if err != nil {
			return err
		}
		reqs = append(reqs, curate.Request{Table: t, RunDate: opts.RunDate, NaturalKey: opts.NaturalKey})
	}

	budget, err := keyBudget(rootOpts, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := newStore(ctx, rootOpts)
	if err != nil {
		return err
	}

	logger := logging.WithPhase(logging.PhaseCurate)
	logger.Info().
		Strs("tables", names).
		Str("run_date", opts.RunDate).
		Str("bucket", cfg.Bucket).
		Uint64("key_budget_bytes", budget.Total()).
		Str("key_budget_source", string(budget.Source())).
		Msg("starting")

	tracker := memdiag.NewTracker(memdiag.DefaultConfig(), budget)
	tracker.Start()
	defer tracker.Stop()

	start := time.Now()
	runner := curate.NewRunner(curate.Config{
		Store:         store,
		Bucket:        cfg.Bucket,
		Budget:        budget,
		HardKeyBudget: rootOpts.HardKeyBudget,
	})
	results, runErr := runner.RunAll(ctx, reqs, opts.Parallel)
	tracker.LogNow("runs_finished")

	stats := budget.Stats()
	logging.PhaseComplete(logger, logging.PhaseCurate, time.Since(start)).
		Int("tables", len(reqs)).
		Bytes("key_budget_peak", stats.PeakBytes).
		Log("all runs finished")

	if err := printResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	return runErr
}

func printResults(w io.Writer, results []*curate.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tMODE\tFILES\tSKIPPED\tROWS_READ\tROWS_WRITTEN\tPARTS\tDELETED\tCOMMITTED\tPARTITION")
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
			r.Table, r.Mode, r.FilesListed, r.BatchesSkipped, r.RowsRead, r.RowsWritten,
			r.PartsWritten, r.Deleted, r.Committed, r.Partition)
	}
	return tw.Flush()
}

// modeSummary describes a table declaration in one line.
func modeSummary(t *tableconf.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s key=%s", t.Mode, strings.Join(t.NaturalKey, ","))
	if t.PartitionByRunDate {
		b.WriteString(" partitioned")
	}
	if t.Mode == tableconf.ModeDimension {
		fmt.Fprintf(&b, " nulls=%s", t.NullPolicy)
	}
	return b.String()
}
