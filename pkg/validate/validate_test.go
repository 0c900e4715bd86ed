package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/s3-curate/pkg/record"
)

func postingsSchema() Schema {
	return Schema{
		Wanted:     []string{"job_link", "job_title"},
		KeyColumns: []string{"job_link"},
		Limits:     map[string]int{"job_link": 5, "company": 3},
	}
}

func TestValidatePasses(t *testing.T) {
	b := record.NewBatch("", []string{"job_link", "job_title", "extra"})
	b.AppendStrings("u1", "engineer", "x")
	b.AppendStrings("u2", "analyst", "y")

	require.NoError(t, New(postingsSchema()).Validate(b))
}

func TestValidateSchemaMismatch(t *testing.T) {
	b := record.NewBatch("", []string{"job_link"})
	b.AppendStrings("u1")

	err := New(postingsSchema()).Validate(b)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	var sm *SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, []string{"job_title"}, sm.Missing)
}

func TestValidateKeyIntegrity(t *testing.T) {
	b := record.NewBatch("", []string{"job_link", "job_title"})
	b.AppendStrings("u1", "a")
	b.AppendStrings("U1 ", "b")
	b.AppendStrings("", "c")
	require.NoError(t, b.Append(record.Record{record.Null(), record.String("d")}))

	err := New(postingsSchema()).Validate(b)
	require.ErrorIs(t, err, ErrKeyIntegrity)

	var ki *KeyIntegrityError
	require.ErrorAs(t, err, &ki)
	assert.Equal(t, 1, ki.Duplicates)
	assert.Equal(t, map[string]int{"job_link": 1}, ki.Nulls)
	assert.Equal(t, map[string]int{"job_link": 1}, ki.Empties)
	assert.Contains(t, err.Error(), "1 duplicates")
}

func TestValidateLengthViolation(t *testing.T) {
	b := record.NewBatch("", []string{"job_link", "job_title", "company"})
	b.AppendStrings("abcdef", "t", "toolong")

	err := New(postingsSchema()).Validate(b)
	require.ErrorIs(t, err, ErrLengthViolation)

	var lv *LengthViolationError
	require.ErrorAs(t, err, &lv)
	require.Len(t, lv.Violations, 1, "company is limited but not wanted")
	v, ok := lv.Violation("job_link")
	require.True(t, ok)
	assert.Equal(t, 6, v.ObservedMax)
	assert.Equal(t, 5, v.Limit)
	assert.True(t, strings.Contains(err.Error(), "job_link: max_len=6 limit=5"))
}

func TestMaxLengthCountsCharacters(t *testing.T) {
	b := record.NewBatch("", []string{"city"})
	b.AppendStrings("München")
	require.NoError(t, b.Append(record.Record{record.Null()}))

	assert.Equal(t, 7, MaxLength(b, "city"))
	assert.Equal(t, 0, MaxLength(b, "absent"))
}

func TestValidateIsSideEffectFree(t *testing.T) {
	b := record.NewBatch("", []string{"job_link", "job_title"})
	b.AppendStrings(" U1 ", "a")

	require.NoError(t, New(postingsSchema()).Validate(b))
	assert.Equal(t, " U1 ", b.Records[0][0].Str)
}
