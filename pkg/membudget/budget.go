// Package membudget bounds the memory a curation run may spend on its
// run-scoped key state.
//
// A run's seen-key set grows with the number of distinct natural keys. The
// budget gives that growth a ceiling: callers reserve an estimate before
// retaining a key and the budget reports when the ceiling is reached. What to
// do then (warn or fail) is the caller's policy.
package membudget

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/eunmann/s3-curate/pkg/sysmem"
)

// DefaultBudgetBytes is the fallback budget when system RAM cannot be detected.
const DefaultBudgetBytes uint64 = 2 * 1024 * 1024 * 1024

// DefaultRAMFraction is the share of system RAM one run may spend on keys.
const DefaultRAMFraction = 0.25

// BudgetSource indicates how the budget was determined.
type BudgetSource string

const (
	// BudgetSourceAuto indicates the budget was derived from detected RAM.
	BudgetSourceAuto BudgetSource = "auto-ram"
	// BudgetSourceDefault indicates the budget used the fallback default.
	BudgetSourceDefault BudgetSource = "default"
	// BudgetSourceCLI indicates the budget was set via CLI flag.
	BudgetSourceCLI BudgetSource = "cli"
	// BudgetSourceEnv indicates the budget was set via environment variable.
	BudgetSourceEnv BudgetSource = "env"
	// BudgetSourceConfig indicates the budget came from the table registry.
	BudgetSourceConfig BudgetSource = "config"
)

// Budget tracks reserved bytes against a total. Reservations never block.
// Budget is safe for concurrent use, though a single run uses it from one
// goroutine.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	peak   atomic.Uint64
	source BudgetSource
}

// Config holds configuration for creating a Budget.
type Config struct {
	// TotalBytes is the budget in bytes. Zero means derive from system RAM.
	TotalBytes uint64

	// Source indicates how TotalBytes was determined.
	Source BudgetSource
}

// New creates a Budget. A zero TotalBytes falls back to NewFromSystemRAM.
func New(cfg Config) *Budget {
	if cfg.TotalBytes == 0 {
		return NewFromSystemRAM(DefaultRAMFraction)
	}
	return &Budget{total: cfg.TotalBytes, source: cfg.Source}
}

// NewFromSystemRAM creates a Budget set to fraction of detected RAM, or
// DefaultBudgetBytes when RAM cannot be detected.
func NewFromSystemRAM(fraction float64) *Budget {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultRAMFraction
	}
	res := sysmem.Total()
	if !res.Reliable {
		return &Budget{total: DefaultBudgetBytes, source: BudgetSourceDefault}
	}
	return &Budget{
		total:  uint64(float64(res.TotalBytes) * fraction),
		source: BudgetSourceAuto,
	}
}

// Total returns the total budget in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// InUse returns the currently reserved bytes.
func (b *Budget) InUse() uint64 {
	return b.inUse.Load()
}

// Source returns how the budget was determined.
func (b *Budget) Source() BudgetSource {
	return b.source
}

// TryReserve reserves n bytes. It returns false, reserving nothing, if the
// reservation would exceed the total.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		current := b.inUse.Load()
		next := current + n
		if next > b.total {
			return false
		}
		if b.inUse.CompareAndSwap(current, next) {
			b.notePeak(next)
			return true
		}
	}
}

// Force reserves n bytes even past the total. Soft-limit callers use it to
// keep accounting accurate after the ceiling was crossed.
func (b *Budget) Force(n uint64) {
	b.notePeak(b.inUse.Add(n))
}

func (b *Budget) notePeak(v uint64) {
	for {
		p := b.peak.Load()
		if v <= p || b.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

// Release returns n bytes to the budget, clamping at zero.
func (b *Budget) Release(n uint64) {
	for {
		current := b.inUse.Load()
		next := uint64(0)
		if n < current {
			next = current - n
		}
		if b.inUse.CompareAndSwap(current, next) {
			return
		}
	}
}

// Stats is a snapshot of budget usage.
type Stats struct {
	TotalBytes   uint64
	InUseBytes   uint64
	PeakBytes    uint64
	Source       BudgetSource
	UsagePercent float64
}

// Stats returns current budget statistics.
func (b *Budget) Stats() Stats {
	inUse := b.inUse.Load()
	pct := 0.0
	if b.total > 0 {
		pct = float64(inUse) / float64(b.total) * 100.0
	}
	return Stats{
		TotalBytes:   b.total,
		InUseBytes:   inUse,
		PeakBytes:    b.peak.Load(),
		Source:       b.source,
		UsagePercent: pct,
	}
}

// sizeUnits maps lower-cased suffixes to multipliers. Single letters are
// binary units.
var sizeUnits = map[string]float64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"k":   1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tib": 1 << 40,
}

// ParseHumanSize parses a size such as "2GiB", "512MB" or "1.5 G". Suffixes
// are case-insensitive; single-letter suffixes are binary units.
func ParseHumanSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if numEnd < 0 {
		numEnd = len(s)
	}
	numStr, suffix := s[:numEnd], strings.TrimSpace(s[numEnd:])

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: bad number", s)
	}
	mult, ok := sizeUnits[strings.ToLower(suffix)]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown suffix %q", s, suffix)
	}
	v := num * mult
	if v >= math.MaxUint64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}
	return uint64(v), nil
}
