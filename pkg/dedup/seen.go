package dedup

import (
	"errors"
	"fmt"

	"github.com/eunmann/s3-curate/pkg/membudget"
)

// ErrKeyBudgetExceeded is returned when a hard key budget is exhausted.
var ErrKeyBudgetExceeded = errors.New("seen-key memory budget exceeded")

// keyOverhead approximates the per-entry cost of a map[Key]struct{} slot
// beyond the encoded bytes: string header, bucket slot and tophash.
const keyOverhead = 40

// SeenKeySet holds every natural key accepted so far in one run. It only
// grows. It is owned by a single run and is not safe for concurrent use.
type SeenKeySet struct {
	keys   map[Key]struct{}
	budget *membudget.Budget
	hard   bool
	bytes  uint64
	over   bool
}

// SeenOptions configures a SeenKeySet.
type SeenOptions struct {
	// Budget bounds the estimated bytes retained. Nil means unbounded.
	Budget *membudget.Budget
	// HardLimit makes Add fail once the budget is exhausted. Otherwise the
	// set keeps growing and OverBudget reports the breach.
	HardLimit bool
}

// NewSeenKeySet creates an empty set for one run.
func NewSeenKeySet(opts SeenOptions) *SeenKeySet {
	return &SeenKeySet{
		keys:   make(map[Key]struct{}),
		budget: opts.Budget,
		hard:   opts.HardLimit,
	}
}

// Contains reports whether k was already accepted.
func (s *SeenKeySet) Contains(k Key) bool {
	_, ok := s.keys[k]
	return ok
}

// Add records k. It returns false if k was already present.
func (s *SeenKeySet) Add(k Key) (bool, error) {
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	cost := uint64(k.Size() + keyOverhead)
	if s.budget != nil && !s.budget.TryReserve(cost) {
		if s.hard {
			return false, fmt.Errorf("%w: %d keys, %d bytes retained, budget %d bytes",
				ErrKeyBudgetExceeded, len(s.keys), s.bytes, s.budget.Total())
		}
		s.over = true
		s.budget.Force(cost)
	}
	s.keys[k] = struct{}{}
	s.bytes += cost
	return true, nil
}

// Len returns the number of distinct keys.
func (s *SeenKeySet) Len() int {
	return len(s.keys)
}

// Bytes returns the estimated bytes retained by the set.
func (s *SeenKeySet) Bytes() uint64 {
	return s.bytes
}

// OverBudget reports whether a soft budget has been exceeded.
func (s *SeenKeySet) OverBudget() bool {
	return s.over
}

// Each calls fn for every key in unspecified order.
func (s *SeenKeySet) Each(fn func(Key)) {
	for k := range s.keys {
		fn(k)
	}
}

// Release returns the set's reservation to its budget. The set must not be
// used afterwards.
func (s *SeenKeySet) Release() {
	if s.budget != nil {
		s.budget.Release(s.bytes)
	}
	s.keys = nil
	s.bytes = 0
}
