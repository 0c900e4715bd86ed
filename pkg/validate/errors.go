package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSchemaMismatch matches SchemaMismatchError.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrKeyIntegrity matches KeyIntegrityError.
	ErrKeyIntegrity = errors.New("natural key integrity violation")
	// ErrLengthViolation matches LengthViolationError.
	ErrLengthViolation = errors.New("field length limit exceeded")
)

// SchemaMismatchError lists wanted columns absent from a batch.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("column mismatch, missing: %s", strings.Join(e.Missing, ", "))
}

// Is matches ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// KeyIntegrityError reports duplicate, null, or empty natural key values.
type KeyIntegrityError struct {
	KeyColumns []string
	Duplicates int
	// Nulls and Empties count offending values per key column; columns
	// without offenders are omitted.
	Nulls   map[string]int
	Empties map[string]int
}

func (e *KeyIntegrityError) Error() string {
	var parts []string
	if e.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates", e.Duplicates))
	}
	if len(e.Nulls) > 0 {
		parts = append(parts, "nulls by column: "+formatCounts(e.Nulls))
	}
	if len(e.Empties) > 0 {
		parts = append(parts, "empty strings by column: "+formatCounts(e.Empties))
	}
	return fmt.Sprintf("natural key %v: %s", e.KeyColumns, strings.Join(parts, "; "))
}

// Is matches ErrKeyIntegrity.
func (e *KeyIntegrityError) Is(target error) bool {
	return target == ErrKeyIntegrity
}

// LengthViolation is the diagnostic for one column over its limit.
type LengthViolation struct {
	Column      string
	ObservedMax int
	Limit       int
}

// LengthViolationError reports every column whose longest value exceeds its
// configured limit.
type LengthViolationError struct {
	Violations []LengthViolation
}

func (e *LengthViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: max_len=%d limit=%d", v.Column, v.ObservedMax, v.Limit)
	}
	return "length limits exceeded: " + strings.Join(parts, ", ")
}

// Is matches ErrLengthViolation.
func (e *LengthViolationError) Is(target error) bool {
	return target == ErrLengthViolation
}

// Violation returns the diagnostic for column, if present.
func (e *LengthViolationError) Violation(column string) (LengthViolation, bool) {
	for _, v := range e.Violations {
		if v.Column == column {
			return v, true
		}
	}
	return LengthViolation{}, false
}

func formatCounts(m map[string]int) string {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s=%d", c, m[c])
	}
	return strings.Join(parts, ", ")
}
