// Package parquetio converts between Parquet files and record batches.
//
// Reads are column-pruned: only the column chunks that were asked for are
// decoded. Writes produce a flat schema of optional UTF-8 string columns.
package parquetio

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/s3-curate/pkg/record"
)

// Extension is the file suffix of data files.
const Extension = ".parquet"

const valueBufSize = 1024

// Columns returns the top-level column names of a Parquet file in leaf order.
func Columns(r io.ReaderAt, size int64) ([]string, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	paths := file.Schema().Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.Join(p, ".")
	}
	return names, nil
}

// ReadBatch decodes the requested columns of a Parquet file into a batch
// tagged with source. Requested columns the file lacks are left out of the
// batch, so schema checks downstream report them as missing. A nil columns
// slice reads every column.
func ReadBatch(r io.ReaderAt, size int64, source string, columns []string) (*record.Batch, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", source, err)
	}
	schema := file.Schema()

	leafIdx := make(map[string]int)
	for i, p := range schema.Columns() {
		leafIdx[strings.Join(p, ".")] = i
	}
	if columns == nil {
		for _, p := range schema.Columns() {
			columns = append(columns, strings.Join(p, "."))
		}
	}

	var names []string
	var leaves []int
	for _, c := range columns {
		i, ok := leafIdx[c]
		if !ok {
			continue
		}
		leaf, _ := schema.Lookup(strings.Split(c, ".")...)
		if leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("%s: column %q is repeated; only flat columns are supported", source, c)
		}
		names = append(names, c)
		leaves = append(leaves, i)
	}

	b := record.NewBatch(source, names)
	b.Records = make([]record.Record, 0, file.NumRows())

	for rgIdx, rg := range file.RowGroups() {
		numRows := int(rg.NumRows())
		chunks := rg.ColumnChunks()

		cols := make([][]record.Value, len(leaves))
		for j, leaf := range leaves {
			vals, err := readChunk(chunks[leaf], numRows)
			if err != nil {
				return nil, fmt.Errorf("%s: row group %d column %q: %w", source, rgIdx, names[j], err)
			}
			if len(vals) != numRows {
				return nil, fmt.Errorf("%s: row group %d column %q: got %d values for %d rows",
					source, rgIdx, names[j], len(vals), numRows)
			}
			cols[j] = vals
		}

		for i := 0; i < numRows; i++ {
			rec := make(record.Record, len(leaves))
			for j := range leaves {
				rec[j] = cols[j][i]
			}
			b.Records = append(b.Records, rec)
		}
	}
	return b, nil
}

// readChunk decodes every value of one flat column chunk.
func readChunk(chunk parquet.ColumnChunk, numRows int) ([]record.Value, error) {
	pages := chunk.Pages()
	defer pages.Close()

	out := make([]record.Value, 0, numRows)
	buf := make([]parquet.Value, valueBufSize)
	for {
		page, err := pages.ReadPage()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read page: %w", err)
		}

		values := page.Values()
		for {
			n, err := values.ReadValues(buf)
			for _, v := range buf[:n] {
				if v.IsNull() {
					out = append(out, record.Null())
				} else {
					out = append(out, record.String(v.String()))
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read values: %w", err)
			}
			if n == 0 {
				break
			}
		}
	}
}

// Schema builds the output schema for a set of columns: every column an
// optional UTF-8 string.
func Schema(columns []string) *parquet.Schema {
	group := make(parquet.Group, len(columns))
	for _, c := range columns {
		group[c] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("record", group)
}

// WriteBatch encodes a batch as a Snappy-compressed Parquet file.
func WriteBatch(w io.Writer, b *record.Batch) error {
	if len(b.Columns) == 0 {
		return errors.New("write parquet: batch has no columns")
	}
	schema := Schema(b.Columns)

	// Leaf order follows the schema's field order, not the batch's.
	order := make([]int, 0, len(b.Columns))
	for _, f := range schema.Fields() {
		order = append(order, b.ColumnIndex(f.Name()))
	}

	writer := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))
	rows := make([]parquet.Row, 0, valueBufSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := writer.WriteRows(rows); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		rows = rows[:0]
		return nil
	}

	for _, rec := range b.Records {
		row := make(parquet.Row, len(order))
		for leaf, src := range order {
			v := rec[src]
			if v.IsNull() {
				row[leaf] = parquet.NullValue().Level(0, 0, leaf)
			} else {
				row[leaf] = parquet.ByteArrayValue([]byte(v.Str)).Level(0, 1, leaf)
			}
		}
		rows = append(rows, row)
		if len(rows) == cap(rows) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
