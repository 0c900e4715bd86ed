package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eunmann/s3-curate/pkg/record"
)

func TestKeyTupleBoundaries(t *testing.T) {
	a := MakeKey(record.String("a|b"), record.String("c"))
	b := MakeKey(record.String("a"), record.String("b|c"))
	assert.NotEqual(t, a, b)

	c := MakeKey(record.String("ab"), record.String(""))
	d := MakeKey(record.String("a"), record.String("b"))
	assert.NotEqual(t, c, d)
}

func TestKeyNullDistinctFromEmpty(t *testing.T) {
	assert.NotEqual(t, MakeKey(record.Null()), MakeKey(record.String("")))
}

func TestKeyPartsRoundTrip(t *testing.T) {
	long := string(make([]byte, 300))
	k := MakeKey(record.String("germany"), record.Null(), record.String(long))
	parts := k.Parts()
	assert.Equal(t, []record.Value{record.String("germany"), record.Null(), record.String(long)}, parts)
	assert.Equal(t, "(x, <null>)", MakeKey(record.String("x"), record.Null()).String())
}

func TestNormalizer(t *testing.T) {
	fold := NewNormalizer("")
	assert.Equal(t, "new york, ny", fold.Value(record.String("  New   York,\tNY ")).Str)
	assert.Equal(t, "strasse", fold.Value(record.String("STRASSE")).Str)
	assert.Equal(t, "caf\u00e9", fold.Value(record.String("CAFE\u0301")).Str)
	assert.True(t, fold.Value(record.Null()).IsNull())

	trim := NewNormalizer(NormalizeTrim)
	assert.Equal(t, "New York", trim.Value(record.String(" New  York ")).Str)

	exact := NewNormalizer(NormalizeExact)
	assert.Equal(t, " A ", exact.Value(record.String(" A ")).Str)
}
