// Package dedup enforces natural-key uniqueness across a stream of batches
// while holding only the distinct keys in memory.
package dedup

import (
	"errors"
	"fmt"

	"github.com/eunmann/s3-curate/pkg/record"
)

// ErrKeyColumnMissing is returned when a batch lacks a natural-key column.
var ErrKeyColumnMissing = errors.New("natural key column missing from batch")

// FilterStats describes what Filter did to one batch.
type FilterStats struct {
	// In is the number of records received.
	In int
	// IntraDuplicates counts records dropped as repeats within the batch.
	IntraDuplicates int
	// SeenBefore counts records whose key an earlier batch already emitted.
	SeenBefore int
	// Kept is the number of records in the returned batch.
	Kept int
}

// Deduplicator filters each batch down to records whose natural key has
// never been emitted in the current run.
type Deduplicator struct {
	keyColumns []string
	norm       *Normalizer
	seen       *SeenKeySet
}

// New creates a deduplicator over keyColumns. The column order defines the
// tuple shape. seen is the run's key state and is mutated by Filter.
func New(keyColumns []string, seen *SeenKeySet, norm *Normalizer) *Deduplicator {
	if norm == nil {
		norm = NewNormalizer(NormalizeFold)
	}
	return &Deduplicator{
		keyColumns: append([]string(nil), keyColumns...),
		norm:       norm,
		seen:       seen,
	}
}

// Filter returns the records of b whose keys are new to the run, keeping the
// first occurrence in file order, and adds their keys to the seen set. The
// returned batch may be empty.
func (d *Deduplicator) Filter(b *record.Batch) (*record.Batch, FilterStats, error) {
	stats := FilterStats{In: b.Len()}

	idx := make([]int, len(d.keyColumns))
	for i, c := range d.keyColumns {
		idx[i] = b.ColumnIndex(c)
		if idx[i] < 0 {
			return nil, stats, fmt.Errorf("%w: %q", ErrKeyColumnMissing, c)
		}
	}

	keep := make([]bool, b.Len())
	inBatch := make(map[Key]struct{}, b.Len())
	for i, r := range b.Records {
		k := d.norm.Key(r, idx)
		if _, dup := inBatch[k]; dup {
			stats.IntraDuplicates++
			continue
		}
		inBatch[k] = struct{}{}

		if d.seen.Contains(k) {
			stats.SeenBefore++
			continue
		}
		if _, err := d.seen.Add(k); err != nil {
			return nil, stats, err
		}
		keep[i] = true
		stats.Kept++
	}

	return b.Filter(keep), stats, nil
}
