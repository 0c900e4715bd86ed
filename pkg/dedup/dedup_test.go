package dedup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/s3-curate/pkg/membudget"
	"github.com/eunmann/s3-curate/pkg/record"
)

func batchOf(t *testing.T, cols []string, rows ...[]string) *record.Batch {
	t.Helper()
	b := record.NewBatch("test", cols)
	for _, r := range rows {
		b.AppendStrings(r...)
	}
	return b
}

func keysOf(b *record.Batch, col string) []string {
	vals, _ := b.Column(col)
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Str
	}
	return out
}

func TestFilterCrossBatch(t *testing.T) {
	seen := NewSeenKeySet(SeenOptions{})
	d := New([]string{"k"}, seen, nil)

	b1 := batchOf(t, []string{"k", "v"}, []string{"A", "1"}, []string{"B", "2"}, []string{"A", "3"})
	out1, stats1, err := d.Filter(b1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, keysOf(out1, "k"))
	assert.Equal(t, []string{"1", "2"}, keysOf(out1, "v"), "first occurrence wins")
	assert.Equal(t, FilterStats{In: 3, IntraDuplicates: 1, Kept: 2}, stats1)
	assert.Equal(t, 2, seen.Len())

	b2 := batchOf(t, []string{"k", "v"}, []string{"B", "4"}, []string{"C", "5"})
	out2, stats2, err := d.Filter(b2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, keysOf(out2, "k"))
	assert.Equal(t, 1, stats2.SeenBefore)
	assert.Equal(t, 3, seen.Len())
}

func TestFilterEmptiesFullyDuplicateBatch(t *testing.T) {
	d := New([]string{"k"}, NewSeenKeySet(SeenOptions{}), nil)
	_, _, err := d.Filter(batchOf(t, []string{"k"}, []string{"x"}))
	require.NoError(t, err)

	out, stats, err := d.Filter(batchOf(t, []string{"k"}, []string{"X "}, []string{"x"}))
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Equal(t, 0, stats.Kept)
}

func TestFilterMultiColumnKeys(t *testing.T) {
	d := New([]string{"skill", "link"}, NewSeenKeySet(SeenOptions{}), nil)

	b := batchOf(t, []string{"skill", "link"},
		[]string{"go", "u1"},
		[]string{"go", "u2"},
		[]string{"Go", "u1"},
		[]string{"go|u1", ""},
	)
	out, _, err := d.Filter(b)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
}

func TestFilterMissingKeyColumn(t *testing.T) {
	d := New([]string{"k"}, NewSeenKeySet(SeenOptions{}), nil)
	_, _, err := d.Filter(batchOf(t, []string{"v"}, []string{"1"}))
	require.ErrorIs(t, err, ErrKeyColumnMissing)
}

func TestFilterHardBudget(t *testing.T) {
	budget := membudget.New(membudget.Config{TotalBytes: 100, Source: membudget.BudgetSourceCLI})
	seen := NewSeenKeySet(SeenOptions{Budget: budget, HardLimit: true})
	d := New([]string{"k"}, seen, nil)

	b := batchOf(t, []string{"k"}, []string{"a"}, []string{"b"}, []string{"c"}, []string{"d"})
	_, _, err := d.Filter(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyBudgetExceeded))
}

func TestFilterSoftBudget(t *testing.T) {
	budget := membudget.New(membudget.Config{TotalBytes: 50, Source: membudget.BudgetSourceCLI})
	seen := NewSeenKeySet(SeenOptions{Budget: budget})
	d := New([]string{"k"}, seen, nil)

	out, _, err := d.Filter(batchOf(t, []string{"k"}, []string{"a"}, []string{"b"}))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.True(t, seen.OverBudget())

	inUse := budget.InUse()
	seen.Release()
	assert.Equal(t, uint64(0), budget.InUse())
	assert.NotZero(t, inUse)
}
