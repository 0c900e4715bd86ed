// Package record defines the row model that flows through a curation run.
//
// A Batch holds the records decoded from exactly one input file. Values are
// strings or null; typed Parquet values are rendered to their string form on
// read, which is all the dedup and validation stages need.
package record

import "fmt"

// Value is a single nullable field value.
type Value struct {
	Str   string
	Valid bool
}

// String returns a non-null value.
func String(s string) Value {
	return Value{Str: s, Valid: true}
}

// Null returns a null value.
func Null() Value {
	return Value{}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return !v.Valid
}

// Record is one row. Field i belongs to Batch.Columns[i].
type Record []Value

// Batch is a bounded sequence of records read from one source file.
type Batch struct {
	// Source is the URI the batch was read from (empty for synthesized batches).
	Source string
	// Columns names the fields of every record, in order.
	Columns []string
	// Records holds the rows in file order.
	Records []Record

	index map[string]int
}

// NewBatch creates an empty batch with the given columns.
func NewBatch(source string, columns []string) *Batch {
	b := &Batch{
		Source:  source,
		Columns: append([]string(nil), columns...),
	}
	b.buildIndex()
	return b
}

func (b *Batch) buildIndex() {
	b.index = make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		b.index[c] = i
	}
}

// Len returns the number of records.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Empty reports whether the batch has no records.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (b *Batch) ColumnIndex(name string) int {
	if b.index == nil {
		b.buildIndex()
	}
	if i, ok := b.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the batch carries the named column.
func (b *Batch) HasColumn(name string) bool {
	return b.ColumnIndex(name) >= 0
}

// Append adds a record. The record must have one value per column.
func (b *Batch) Append(r Record) error {
	if len(r) != len(b.Columns) {
		return fmt.Errorf("record has %d fields, batch has %d columns", len(r), len(b.Columns))
	}
	b.Records = append(b.Records, r)
	return nil
}

// AppendStrings adds a record of non-null values. It panics on a width
// mismatch and is meant for building fixtures and single-column outputs.
func (b *Batch) AppendStrings(vals ...string) {
	r := make(Record, len(vals))
	for i, s := range vals {
		r[i] = String(s)
	}
	if err := b.Append(r); err != nil {
		panic(err)
	}
}

// Column returns every value of the named column in record order.
// The second result is false if the column is absent.
func (b *Batch) Column(name string) ([]Value, bool) {
	idx := b.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]Value, len(b.Records))
	for i, r := range b.Records {
		out[i] = r[idx]
	}
	return out, true
}

// Filter returns a new batch holding the records whose keep flag is set.
// Record slices are shared with the receiver, not copied.
func (b *Batch) Filter(keep []bool) *Batch {
	out := NewBatch(b.Source, b.Columns)
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out.Records = make([]Record, 0, n)
	for i, r := range b.Records {
		if keep[i] {
			out.Records = append(out.Records, r)
		}
	}
	return out
}
