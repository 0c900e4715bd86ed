// Package commit replaces an output partition only once fresh data is ready.
//
// A Gate guards the partition: nothing is deleted until the run has a
// validated batch in hand, and the old contents are deleted at most once per
// run. A PartWriter then writes numbered part files into the partition.
package commit

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/eunmann/s3-curate/internal/logctx"
	"github.com/eunmann/s3-curate/pkg/objstore"
	"github.com/eunmann/s3-curate/pkg/parquetio"
	"github.com/eunmann/s3-curate/pkg/record"
)

// SingleFileName is the object name used by single-file partitions.
const SingleFileName = "data" + parquetio.Extension

// Partition addresses one output partition.
type Partition struct {
	Bucket string
	// Prefix is the table's output prefix, without a trailing slash.
	Prefix string
	// RunDate scopes the partition to run_date=<RunDate>/ when non-empty.
	RunDate string
}

// Path returns the key prefix of the partition, always ending in "/".
func (p Partition) Path() string {
	base := strings.TrimSuffix(p.Prefix, "/")
	if p.RunDate != "" {
		base = path.Join(base, "run_date="+p.RunDate)
	}
	if base == "" {
		return ""
	}
	return base + "/"
}

// Key returns the object key of a file inside the partition.
func (p Partition) Key(name string) string {
	return p.Path() + name
}

// State is the lifecycle state of a Gate.
type State int

const (
	// StatePending means the prior partition contents are untouched.
	StatePending State = iota
	// StateCommitted means the prior contents were deleted and parts may be
	// written.
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Gate is a one-shot guard around deleting a partition's prior contents.
// It is owned by a single run and is not safe for concurrent use.
type Gate struct {
	store     objstore.Store
	partition Partition
	state     State
	deleted   int
}

// NewGate creates a pending gate for the partition.
func NewGate(store objstore.Store, p Partition) *Gate {
	return &Gate{store: store, partition: p}
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Deleted returns the number of objects whose deletion was attempted.
func (g *Gate) Deleted() int { return g.deleted }

// Open deletes the partition's prior contents the first time it is called
// and moves the gate to committed. Later calls do nothing. If the delete
// fails the gate stays pending and the error is returned.
func (g *Gate) Open(ctx context.Context) error {
	if g.state == StateCommitted {
		return nil
	}
	n, err := g.store.DeleteAll(ctx, g.partition.Bucket, g.partition.Path())
	g.deleted += n
	if err != nil {
		return fmt.Errorf("clear partition %s: %w", g.uri(), err)
	}
	g.state = StateCommitted

	logger := logctx.FromContext(ctx)
	logger.Info().
		Str("partition", g.uri()).
		Int("deleted", n).
		Msg("cleared prior partition")
	return nil
}

func (g *Gate) uri() string {
	return objstore.FormatURI(g.store.Scheme(), g.partition.Bucket, g.partition.Path())
}

// PartWriter writes batches into a partition as part_NNNN.parquet files
// numbered from 1.
type PartWriter struct {
	store     objstore.Store
	partition Partition
	seq       int
}

// NewPartWriter creates a writer for the partition.
func NewPartWriter(store objstore.Store, p Partition) *PartWriter {
	return &PartWriter{store: store, partition: p}
}

// PartName returns the file name of part number n.
func PartName(n int) string {
	return fmt.Sprintf("part_%04d%s", n, parquetio.Extension)
}

// Parts returns the number of parts written so far.
func (w *PartWriter) Parts() int { return w.seq }

// WritePart encodes b and writes it as the next numbered part. It returns
// the URI written.
func (w *PartWriter) WritePart(ctx context.Context, b *record.Batch) (string, error) {
	uri, err := w.write(ctx, PartName(w.seq+1), b)
	if err != nil {
		return "", err
	}
	w.seq++
	return uri, nil
}

// WriteSingle encodes b as the partition's only file, data.parquet.
func (w *PartWriter) WriteSingle(ctx context.Context, b *record.Batch) (string, error) {
	return w.write(ctx, SingleFileName, b)
}

func (w *PartWriter) write(ctx context.Context, name string, b *record.Batch) (string, error) {
	var buf bytes.Buffer
	if err := parquetio.WriteBatch(&buf, b); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}

	key := w.partition.Key(name)
	uri := objstore.FormatURI(w.store.Scheme(), w.partition.Bucket, key)
	size := buf.Len()
	if err := w.store.Put(ctx, w.partition.Bucket, key, &buf); err != nil {
		return "", fmt.Errorf("write %s: %w", uri, err)
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("uri", uri).
		Int("rows", b.Len()).
		Int("bytes", size).
		Msg("wrote part")
	return uri, nil
}
