// Package validate gate-keeps batches before any destructive action.
//
// A Validator checks one batch for schema completeness, natural-key
// integrity, and field-length bounds. It never mutates the batch or any run
// state, so it can be applied to deduplicated batches, pass-through batches,
// and synthesized dimension batches alike.
package validate

import (
	"sort"
	"unicode/utf8"

	"github.com/eunmann/s3-curate/pkg/dedup"
	"github.com/eunmann/s3-curate/pkg/record"
)

// Schema is the per-table contract a batch is checked against.
type Schema struct {
	// Wanted lists the columns every batch must carry.
	Wanted []string
	// KeyColumns is the natural key, in tuple order.
	KeyColumns []string
	// Limits maps column to maximum length in characters. Only columns that
	// are also wanted are checked.
	Limits map[string]int
	// Normalization must match the deduplicator's so both agree on what
	// counts as a duplicate.
	Normalization dedup.Normalization
}

// Validator checks batches against a Schema.
type Validator struct {
	schema Schema
	norm   *dedup.Normalizer
}

// New creates a Validator. The Validator holds a case folder and must not be
// shared between goroutines.
func New(schema Schema) *Validator {
	return &Validator{schema: schema, norm: dedup.NewNormalizer(schema.Normalization)}
}

// Validate runs every check in order: schema, key integrity, lengths. It
// returns the first failing check's error.
func (v *Validator) Validate(b *record.Batch) error {
	if err := CheckColumns(b, v.schema.Wanted); err != nil {
		return err
	}
	if err := CheckColumns(b, v.schema.KeyColumns); err != nil {
		return err
	}
	if err := v.checkKeys(b); err != nil {
		return err
	}
	return v.checkLengths(b)
}

// CheckColumns returns a SchemaMismatchError if any of cols is absent.
func CheckColumns(b *record.Batch, cols []string) error {
	var missing []string
	for _, c := range cols {
		if !b.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &SchemaMismatchError{Missing: missing}
	}
	return nil
}

func (v *Validator) checkKeys(b *record.Batch) error {
	cols := v.schema.KeyColumns
	if len(cols) == 0 {
		return nil
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = b.ColumnIndex(c)
	}

	e := &KeyIntegrityError{
		KeyColumns: cols,
		Nulls:      map[string]int{},
		Empties:    map[string]int{},
	}
	seen := make(map[dedup.Key]struct{}, b.Len())
	for _, r := range b.Records {
		for i, c := range idx {
			val := v.norm.Value(r[c])
			switch {
			case val.IsNull():
				e.Nulls[cols[i]]++
			case val.Str == "":
				e.Empties[cols[i]]++
			}
		}
		k := v.norm.Key(r, idx)
		if _, dup := seen[k]; dup {
			e.Duplicates++
			continue
		}
		seen[k] = struct{}{}
	}

	if e.Duplicates == 0 && len(e.Nulls) == 0 && len(e.Empties) == 0 {
		return nil
	}
	return e
}

func (v *Validator) checkLengths(b *record.Batch) error {
	var violations []LengthViolation
	for _, col := range v.schema.Wanted {
		limit, ok := v.schema.Limits[col]
		if !ok {
			continue
		}
		observed := MaxLength(b, col)
		if observed > limit {
			violations = append(violations, LengthViolation{Column: col, ObservedMax: observed, Limit: limit})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Column < violations[j].Column })
	return &LengthViolationError{Violations: violations}
}

// MaxLength returns the longest non-null value of col in characters, or 0 if
// the column is absent or all null.
func MaxLength(b *record.Batch, col string) int {
	idx := b.ColumnIndex(col)
	if idx < 0 {
		return 0
	}
	longest := 0
	for _, r := range b.Records {
		if r[idx].IsNull() {
			continue
		}
		if n := utf8.RuneCountInString(r[idx].Str); n > longest {
			longest = n
		}
	}
	return longest
}
