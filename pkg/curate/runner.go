// Package curate executes table runs: enumerate a table's input files,
// stream them through dedup and validation, and replace the output
// partition once fresh valid data is ready.
package curate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eunmann/s3-curate/internal/logctx"
	"github.com/eunmann/s3-curate/pkg/commit"
	"github.com/eunmann/s3-curate/pkg/dedup"
	"github.com/eunmann/s3-curate/pkg/logging"
	"github.com/eunmann/s3-curate/pkg/membudget"
	"github.com/eunmann/s3-curate/pkg/objstore"
	"github.com/eunmann/s3-curate/pkg/parquetio"
	"github.com/eunmann/s3-curate/pkg/record"
	"github.com/eunmann/s3-curate/pkg/tableconf"
	"github.com/eunmann/s3-curate/pkg/validate"
)

// RunDateLayout is the accepted run date format.
const RunDateLayout = "2006-01-02"

// Config configures a Runner.
type Config struct {
	Store  objstore.Store
	Bucket string

	// Budget bounds the memory retained by seen-key sets. It may be shared
	// by concurrent runs. Nil means unbounded.
	Budget *membudget.Budget

	// HardKeyBudget fails a run with dedup.ErrKeyBudgetExceeded when the
	// budget is exhausted instead of warning and continuing.
	HardKeyBudget bool
}

// Runner executes table runs against one store. Each call to Run owns its
// own state, so a Runner may serve concurrent runs of different tables.
type Runner struct {
	store  objstore.Store
	bucket string
	budget *membudget.Budget
	hard   bool
	newID  func() string
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		store:  cfg.Store,
		bucket: cfg.Bucket,
		budget: cfg.Budget,
		hard:   cfg.HardKeyBudget,
		newID:  uuid.NewString,
	}
}

// Request asks for one run of a table.
type Request struct {
	Table *tableconf.Table

	// RunDate selects the input and, for run-date partitioned tables, the
	// output partition. Format: 2006-01-02.
	RunDate string

	// NaturalKey is the key shape the caller expects. When set it must
	// equal the table's declared key.
	NaturalKey []string
}

// Result summarizes a run.
type Result struct {
	Table     string
	RunID     string
	Mode      tableconf.Mode
	Partition string

	FilesListed    int
	FilesRead      int
	BatchesSkipped int
	RowsRead       int64
	RowsWritten    int64
	Duplicates     int64

	PartsWritten int
	Outputs      []string
	Deleted      int
	Committed    bool

	DistinctKeys int
	KeyBytes     uint64
	OverBudget   bool

	Duration time.Duration
}

// run is the state of one table run.
type run struct {
	*Runner
	table     *tableconf.Table
	runDate   string
	partition commit.Partition
	seen      *dedup.SeenKeySet
	norm      *dedup.Normalizer
	gate      *commit.Gate
	parts     *commit.PartWriter
	tracker   *logging.ProgressTracker
	res       *Result
	warned    bool
}

// Run executes one table run. Configuration problems are reported before
// any I/O. On error the returned Result describes the work done so far.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	t := req.Table
	if t == nil {
		return nil, &tableconf.ConfigError{Reason: "no table given"}
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	id := r.newID()
	ctx = logctx.WithRun(ctx, logctx.Run{Table: t.Name, ID: id, Date: req.RunDate})
	logger := logctx.FromContext(ctx)

	p := commit.Partition{Bucket: r.bucket, Prefix: t.OutputPrefix}
	if t.PartitionByRunDate {
		p.RunDate = req.RunDate
	}

	st := &run{
		Runner:    r,
		table:     t,
		runDate:   req.RunDate,
		partition: p,
		seen:      dedup.NewSeenKeySet(dedup.SeenOptions{Budget: r.budget, HardLimit: r.hard}),
		norm:      dedup.NewNormalizer(t.Normalization),
		gate:      commit.NewGate(r.store, p),
		parts:     commit.NewPartWriter(r.store, p),
		res: &Result{
			Table:     t.Name,
			RunID:     id,
			Mode:      t.Mode,
			Partition: objstore.FormatURI(r.store.Scheme(), r.bucket, p.Path()),
		},
	}
	defer st.seen.Release()

	logger.Info().
		Str("mode", string(t.Mode)).
		Str("partition", st.res.Partition).
		Msg("run started")

	err := st.execute(ctx)

	res := st.res
	res.Deleted = st.gate.Deleted()
	res.Committed = st.gate.State() == commit.StateCommitted
	res.PartsWritten = st.parts.Parts()
	res.DistinctKeys = st.seen.Len()
	res.KeyBytes = st.seen.Bytes()
	res.OverBudget = st.seen.OverBudget()
	res.Duration = time.Since(start)

	if err != nil {
		logger.Error().Err(err).
			Bool("committed", res.Committed).
			Int("parts_written", res.PartsWritten).
			Msg("run failed")
		return res, err
	}

	ev := logging.RunComplete(logger, res.Duration).
		Int("files", res.FilesListed).
		Int("batches_skipped", res.BatchesSkipped).
		Count("rows_read", res.RowsRead).
		Count("rows_written", res.RowsWritten).
		Count("duplicates", res.Duplicates).
		Int("parts", res.PartsWritten).
		Int("deleted", res.Deleted).
		Count("distinct_keys", int64(res.DistinctKeys)).
		Bytes("key_bytes", res.KeyBytes)
	if st.tracker != nil {
		ev = ev.ProgressFromTracker(st.tracker)
	}
	ev.Log("run completed")
	return res, nil
}

func checkRequest(req Request) error {
	t := req.Table
	if err := t.CheckKeyShape(req.NaturalKey); err != nil {
		return err
	}
	if req.RunDate != "" {
		if _, err := time.Parse(RunDateLayout, req.RunDate); err != nil {
			return &tableconf.ConfigError{Table: t.Name, Reason: fmt.Sprintf("run date %q is not YYYY-MM-DD", req.RunDate)}
		}
	} else if t.NeedsRunDate() {
		return &tableconf.ConfigError{Table: t.Name, Reason: "a run date is required"}
	}
	return nil
}

func (st *run) execute(ctx context.Context) error {
	prefix, err := st.table.InputPrefixFor(st.runDate)
	if err != nil {
		return err
	}

	listStart := time.Now()
	uris, err := objstore.ListURIs(ctx, st.store, st.bucket, prefix, st.table.Extension)
	if err != nil {
		return err
	}
	st.res.FilesListed = len(uris)
	st.tracker = logging.NewProgressTracker(int64(len(uris)))

	logging.PhaseComplete(logctx.FromContext(ctx), logging.PhaseList, time.Since(listStart)).
		Str("prefix", prefix).
		Int("files", len(uris)).
		Log("input listed")
	ctx = logctx.WithInt(ctx, "files_listed", len(uris))

	switch st.table.Mode {
	case tableconf.ModeDimension:
		return st.collect(ctx, uris)
	default:
		return st.stream(ctx, uris)
	}
}

// stream runs records and validate_only tables: every surviving batch is
// validated and written as its own part.
func (st *run) stream(ctx context.Context, uris []string) error {
	t := st.table
	validator := validate.New(t.Schema())

	var dd *dedup.Deduplicator
	if t.Mode == tableconf.ModeRecords {
		dd = dedup.New(t.NaturalKey, st.seen, st.norm)
	}

	for _, uri := range uris {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		fctx := logctx.WithStr(ctx, "source", uri)

		b, err := st.read(ctx, uri, t.WantedColumns)
		if err != nil {
			return err
		}
		if b.Empty() {
			st.skip(fctx, start, "empty file")
			continue
		}
		if err := validate.CheckColumns(b, t.NaturalKey); err != nil {
			return fmt.Errorf("%s: %w", uri, err)
		}

		rowsIn := b.Len()
		if dd != nil {
			var stats dedup.FilterStats
			b, stats, err = dd.Filter(b)
			if err != nil {
				return fmt.Errorf("%s: %w", uri, err)
			}
			st.res.Duplicates += int64(stats.IntraDuplicates + stats.SeenBefore)
			st.checkBudget(ctx)
			if b.Empty() {
				st.skip(fctx, start, "all keys seen")
				continue
			}
		}

		if err := validator.Validate(b); err != nil {
			return fmt.Errorf("%s: %w", uri, err)
		}
		if err := st.gate.Open(ctx); err != nil {
			return err
		}
		out, err := st.parts.WritePart(fctx, b)
		if err != nil {
			return err
		}
		st.res.Outputs = append(st.res.Outputs, out)
		st.res.RowsWritten += int64(b.Len())

		elapsed := time.Since(start)
		st.tracker.RecordCompletion(elapsed)
		logging.BatchComplete(logctx.FromContext(fctx), logging.PhaseCurate, elapsed).
			Str("output", out).
			Count("rows_in", int64(rowsIn)).
			Count("rows_out", int64(b.Len())).
			ProgressFromTracker(st.tracker).
			Log("batch written")
	}

	if st.parts.Parts() == 0 {
		logger := logctx.FromContext(ctx)
		logger.Warn().
			Int("files", len(uris)).
			Msg("no data to write; prior partition left untouched")
	}
	return nil
}

// collect runs dimension tables: the distinct values of the single column
// are gathered across every file, then written as one sorted file.
func (st *run) collect(ctx context.Context, uris []string) error {
	t := st.table
	col := t.NaturalKey[0]
	coll := dedup.NewCollector(col, t.NullPolicy, st.seen, st.norm)

	collectStart := time.Now()
	for _, uri := range uris {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		fctx := logctx.WithStr(ctx, "source", uri)

		b, err := st.read(ctx, uri, []string{col})
		if err != nil {
			return err
		}
		if b.Empty() {
			st.skip(fctx, start, "empty file")
			continue
		}
		if err := validate.CheckColumns(b, []string{col}); err != nil {
			return fmt.Errorf("%s: %w", uri, err)
		}
		if err := coll.Add(b); err != nil {
			return fmt.Errorf("%s: %w", uri, err)
		}
		st.checkBudget(ctx)
		st.tracker.RecordCompletion(time.Since(start))
	}

	out, err := coll.Batch()
	if err != nil {
		return err
	}
	logging.PhaseComplete(logctx.FromContext(ctx), logging.PhaseCollect, time.Since(collectStart)).
		Count("distinct", int64(out.Len())).
		Bytes("key_bytes", st.seen.Bytes()).
		Log("values collected")

	if out.Empty() {
		logger := logctx.FromContext(ctx)
		logger.Warn().
			Int("files", len(uris)).
			Msg("no values to write; prior dimension left untouched")
		return nil
	}

	if err := validate.New(t.Schema()).Validate(out); err != nil {
		return err
	}
	if err := st.gate.Open(ctx); err != nil {
		return err
	}
	uri, err := st.parts.WriteSingle(ctx, out)
	if err != nil {
		return err
	}
	st.res.Outputs = append(st.res.Outputs, uri)
	st.res.RowsWritten = int64(out.Len())
	return nil
}

func (st *run) read(ctx context.Context, uri string, cols []string) (*record.Batch, error) {
	obj, err := objstore.OpenURI(ctx, st.store, uri)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	b, err := parquetio.ReadBatch(obj, obj.Size(), uri, cols)
	if err != nil {
		return nil, err
	}
	st.res.FilesRead++
	st.res.RowsRead += int64(b.Len())
	return b, nil
}

// skip records a file that produced nothing to write. ctx carries the
// file's source field.
func (st *run) skip(ctx context.Context, start time.Time, reason string) {
	st.res.BatchesSkipped++
	st.tracker.RecordSkip()
	logging.BatchSkipped(logctx.FromContext(ctx), logging.PhaseCurate, time.Since(start)).
		Str("reason", reason).
		LogDebug("batch skipped")
}

// checkBudget warns once when a soft key budget is first exceeded.
func (st *run) checkBudget(ctx context.Context) {
	if st.warned || !st.seen.OverBudget() {
		return
	}
	st.warned = true
	logger := logctx.FromContext(ctx)
	ev := logger.Warn().
		Int("keys", st.seen.Len()).
		Uint64("key_bytes", st.seen.Bytes())
	if st.budget != nil {
		ev = ev.Uint64("budget_bytes", st.budget.Total())
	}
	ev.Msg("seen-key budget exceeded; continuing")
}
