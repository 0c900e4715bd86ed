package dedup

import (
	"errors"
	"fmt"
	"slices"

	"github.com/eunmann/s3-curate/pkg/record"
)

// ErrStrictNullPolicy matches StrictNullError.
var ErrStrictNullPolicy = errors.New("strict null policy violated")

// NullPolicy selects how a Collector treats null and empty values.
type NullPolicy string

const (
	// NullStrict fails the run if any null or empty value is seen.
	NullStrict NullPolicy = "strict"
	// NullDrop silently discards null and empty values.
	NullDrop NullPolicy = "drop"
)

// StrictNullError reports null or empty values found under NullStrict.
type StrictNullError struct {
	Column  string
	Nulls   int
	Empties int
}

// Count returns the total number of offending values.
func (e *StrictNullError) Count() int {
	return e.Nulls + e.Empties
}

func (e *StrictNullError) Error() string {
	return fmt.Sprintf("column %q has %d null or empty values (%d null, %d empty)",
		e.Column, e.Count(), e.Nulls, e.Empties)
}

// Is matches ErrStrictNullPolicy.
func (e *StrictNullError) Is(target error) bool {
	return target == ErrStrictNullPolicy
}

// Collector accumulates the distinct normalized values of one column across
// every batch of a run.
type Collector struct {
	column  string
	policy  NullPolicy
	norm    *Normalizer
	seen    *SeenKeySet
	nulls   int
	empties int
}

// NewCollector creates a collector for column using seen as its value store.
func NewCollector(column string, policy NullPolicy, seen *SeenKeySet, norm *Normalizer) *Collector {
	if policy == "" {
		policy = NullStrict
	}
	if norm == nil {
		norm = NewNormalizer(NormalizeFold)
	}
	return &Collector{column: column, policy: policy, norm: norm, seen: seen}
}

// Add folds the batch's values for the collector's column into the set.
func (c *Collector) Add(b *record.Batch) error {
	vals, ok := b.Column(c.column)
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyColumnMissing, c.column)
	}
	for _, v := range vals {
		v = c.norm.Value(v)
		switch {
		case v.IsNull():
			c.nulls++
			continue
		case v.Str == "":
			c.empties++
			continue
		}
		if _, err := c.seen.Add(MakeKey(v)); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of distinct values collected so far.
func (c *Collector) Len() int {
	return c.seen.Len()
}

// Finish applies the null policy and returns the distinct values sorted.
func (c *Collector) Finish() ([]string, error) {
	if c.policy == NullStrict && c.nulls+c.empties > 0 {
		return nil, &StrictNullError{Column: c.column, Nulls: c.nulls, Empties: c.empties}
	}
	out := make([]string, 0, c.seen.Len())
	c.seen.Each(func(k Key) {
		out = append(out, k.Parts()[0].Str)
	})
	slices.Sort(out)
	return out, nil
}

// Batch returns the sorted values as a single-column batch.
func (c *Collector) Batch() (*record.Batch, error) {
	vals, err := c.Finish()
	if err != nil {
		return nil, err
	}
	b := record.NewBatch("", []string{c.column})
	b.Records = make([]record.Record, len(vals))
	for i, v := range vals {
		b.Records[i] = record.Record{record.String(v)}
	}
	return b, nil
}
