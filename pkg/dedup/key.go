package dedup

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/eunmann/s3-curate/pkg/record"
)

// Key is a natural key: an ordered tuple of normalized, nullable strings.
//
// Components are encoded with a null flag and a length prefix, so two keys
// are equal only if every component is equal. ("a|b", "c") and ("a", "b|c")
// never collide. Key is comparable and usable as a map key.
type Key struct {
	enc string
}

// MakeKey builds a key from already-normalized components.
func MakeKey(parts ...record.Value) Key {
	n := 0
	for _, p := range parts {
		n += 1 + binary.MaxVarintLen64 + len(p.Str)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		if p.IsNull() {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = binary.AppendUvarint(buf, uint64(len(p.Str)))
		buf = append(buf, p.Str...)
	}
	return Key{enc: string(buf)}
}

// Parts decodes the key back into its components.
func (k Key) Parts() []record.Value {
	var out []record.Value
	s := k.enc
	for len(s) > 0 {
		flag := s[0]
		s = s[1:]
		if flag == 0 {
			out = append(out, record.Null())
			continue
		}
		l, n := binary.Uvarint([]byte(s[:min(len(s), binary.MaxVarintLen64)]))
		s = s[n:]
		end := int(l)
		out = append(out, record.String(s[:end]))
		s = s[end:]
	}
	return out
}

// Size returns the encoded size of the key in bytes.
func (k Key) Size() int {
	return len(k.enc)
}

// String renders the key as a tuple for diagnostics.
func (k Key) String() string {
	parts := k.Parts()
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range parts {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.IsNull() {
			sb.WriteString("<null>")
		} else {
			sb.WriteString(p.Str)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// Normalization selects how key components are normalized before comparison.
type Normalization string

const (
	// NormalizeFold applies Unicode case folding and NFC composition, trims,
	// and collapses internal whitespace runs to a single space.
	NormalizeFold Normalization = "fold"
	// NormalizeTrim applies NFC composition, trims and collapses whitespace.
	NormalizeTrim Normalization = "trim"
	// NormalizeExact compares raw values.
	NormalizeExact Normalization = "exact"
)

// Normalizer normalizes key components. It holds a stateful case folder and
// must not be shared between goroutines.
type Normalizer struct {
	mode Normalization
	fold cases.Caser
}

// NewNormalizer returns a normalizer for mode. An empty mode means fold.
func NewNormalizer(mode Normalization) *Normalizer {
	if mode == "" {
		mode = NormalizeFold
	}
	return &Normalizer{mode: mode, fold: cases.Fold()}
}

// Value normalizes one component. Nulls stay null.
func (n *Normalizer) Value(v record.Value) record.Value {
	if v.IsNull() {
		return v
	}
	switch n.mode {
	case NormalizeExact:
		return v
	case NormalizeTrim:
		return record.String(collapseSpace(norm.NFC.String(v.Str)))
	default:
		return record.String(collapseSpace(norm.NFC.String(n.fold.String(v.Str))))
	}
}

// Key computes the normalized key of r over the column positions idx.
func (n *Normalizer) Key(r record.Record, idx []int) Key {
	parts := make([]record.Value, len(idx))
	for i, c := range idx {
		parts[i] = n.Value(r[c])
	}
	return MakeKey(parts...)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
