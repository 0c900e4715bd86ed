package commit

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/s3-curate/pkg/objstore"
	"github.com/eunmann/s3-curate/pkg/parquetio"
	"github.com/eunmann/s3-curate/pkg/record"
)

type countingStore struct {
	objstore.Store
	deletes   int
	deleteErr error
}

func (s *countingStore) DeleteAll(ctx context.Context, bucket, prefix string) (int, error) {
	s.deletes++
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.Store.DeleteAll(ctx, bucket, prefix)
}

func put(t *testing.T, s objstore.Store, key string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), "b", key, strings.NewReader("old")))
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, "jobs/run_date=2024-01-02/", Partition{Prefix: "jobs", RunDate: "2024-01-02"}.Path())
	assert.Equal(t, "jobs/run_date=2024-01-02/", Partition{Prefix: "jobs/", RunDate: "2024-01-02"}.Path())
	assert.Equal(t, "dim/skills/", Partition{Prefix: "dim/skills"}.Path())
	assert.Equal(t, "dim/skills/data.parquet", Partition{Prefix: "dim/skills"}.Key(SingleFileName))
}

func TestPartName(t *testing.T) {
	assert.Equal(t, "part_0001.parquet", PartName(1))
	assert.Equal(t, "part_0042.parquet", PartName(42))
	assert.Equal(t, "part_12345.parquet", PartName(12345))
}

func TestGateDeletesOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: objstore.NewLocalStore(t.TempDir())}
	p := Partition{Bucket: "b", Prefix: "out", RunDate: "2024-01-01"}
	put(t, store, "out/run_date=2024-01-01/part_0001.parquet")
	put(t, store, "out/run_date=2024-01-01/part_0002.parquet")
	put(t, store, "out/run_date=2024-01-02/part_0001.parquet")

	g := NewGate(store, p)
	assert.Equal(t, StatePending, g.State())

	require.NoError(t, g.Open(ctx))
	assert.Equal(t, StateCommitted, g.State())
	assert.Equal(t, 2, g.Deleted())

	// A part written after the first Open must survive later Opens.
	put(t, store, "out/run_date=2024-01-01/part_0001.parquet")
	require.NoError(t, g.Open(ctx))
	assert.Equal(t, 1, store.deletes)

	keys, err := store.List(ctx, "b", "out/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"out/run_date=2024-01-01/part_0001.parquet",
		"out/run_date=2024-01-02/part_0001.parquet",
	}, keys)
}

func TestGateNeverOpenedNeverDeletes(t *testing.T) {
	store := &countingStore{Store: objstore.NewLocalStore(t.TempDir())}
	put(t, store, "out/x.parquet")

	g := NewGate(store, Partition{Bucket: "b", Prefix: "out"})
	assert.Equal(t, StatePending, g.State())
	assert.Equal(t, 0, store.deletes)
}

func TestGateFailedDeleteStaysPending(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("access denied")
	store := &countingStore{Store: objstore.NewLocalStore(t.TempDir()), deleteErr: boom}

	g := NewGate(store, Partition{Bucket: "b", Prefix: "out"})
	err := g.Open(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatePending, g.State())

	store.deleteErr = nil
	require.NoError(t, g.Open(ctx))
	assert.Equal(t, StateCommitted, g.State())
	assert.Equal(t, 2, store.deletes)
}

func readBack(t *testing.T, s objstore.Store, key string) *record.Batch {
	t.Helper()
	obj, err := s.Open(context.Background(), "b", key)
	require.NoError(t, err)
	defer obj.Close()
	b, err := parquetio.ReadBatch(obj, obj.Size(), key, nil)
	require.NoError(t, err)
	return b
}

func TestPartWriterNumbersParts(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewLocalStore(t.TempDir())
	w := NewPartWriter(store, Partition{Bucket: "b", Prefix: "out", RunDate: "2024-01-01"})

	b1 := record.NewBatch("", []string{"k"})
	b1.AppendStrings("a")
	b2 := record.NewBatch("", []string{"k"})
	b2.AppendStrings("b")
	b2.AppendStrings("c")

	uri, err := w.WritePart(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, "file://b/out/run_date=2024-01-01/part_0001.parquet", uri)

	uri, err = w.WritePart(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, "file://b/out/run_date=2024-01-01/part_0002.parquet", uri)
	assert.Equal(t, 2, w.Parts())

	got := readBack(t, store, "out/run_date=2024-01-01/part_0002.parquet")
	assert.Equal(t, 2, got.Len())
}

func TestPartWriterSingle(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewLocalStore(t.TempDir())
	w := NewPartWriter(store, Partition{Bucket: "b", Prefix: "dim/skills"})

	b := record.NewBatch("", []string{"skill"})
	b.AppendStrings("go")
	uri, err := w.WriteSingle(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "file://b/dim/skills/data.parquet", uri)
	assert.Equal(t, 0, w.Parts())

	got := readBack(t, store, "dim/skills/data.parquet")
	vals, ok := got.Column("skill")
	require.True(t, ok)
	assert.Equal(t, "go", vals[0].Str)
}

type failPutStore struct{ objstore.Store }

func (failPutStore) Put(context.Context, string, string, io.Reader) error {
	return errors.New("disk full")
}

func TestPartWriterFailedPutKeepsSequence(t *testing.T) {
	ctx := context.Background()
	w := NewPartWriter(failPutStore{objstore.NewLocalStore(t.TempDir())}, Partition{Bucket: "b", Prefix: "out"})
	b := record.NewBatch("", []string{"k"})
	b.AppendStrings("a")

	_, err := w.WritePart(ctx, b)
	require.Error(t, err)
	assert.Equal(t, 0, w.Parts())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "State(7)", State(7).String())
}
