// Package memdiag logs heap usage next to the seen-key budget while tables
// are curated.
//
// Enable periodic logging with S3CURATE_MEM_DEBUG=1 and a pprof server on
// :6060 with S3CURATE_MEM_PPROF=1.
package memdiag

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/eunmann/s3-curate/pkg/logging"
	"github.com/eunmann/s3-curate/pkg/membudget"
)

// Environment switches read by DefaultConfig.
const (
	EnvDebug = "S3CURATE_MEM_DEBUG"
	EnvPprof = "S3CURATE_MEM_PPROF"
)

// Config holds configuration for memory diagnostics.
type Config struct {
	Enabled      bool
	PprofEnabled bool
	LogInterval  time.Duration
}

// DefaultConfig reads the configuration from the environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from an environment lookup.
func ConfigFromEnv(getenv func(string) string) Config {
	return Config{
		Enabled:      getenv(EnvDebug) == "1",
		PprofEnabled: getenv(EnvPprof) == "1",
		LogInterval:  5 * time.Second,
	}
}

// Stats is the subset of runtime.MemStats worth logging.
type Stats struct {
	HeapAlloc  uint64
	HeapSys    uint64
	HeapInuse  uint64
	StackInuse uint64
	Sys        uint64
	NumGC      uint32
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		HeapInuse:  m.HeapInuse,
		StackInuse: m.StackInuse,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// Tracker logs heap usage against a key budget, periodically and on demand.
// All methods are no-ops when the tracker is disabled.
type Tracker struct {
	config Config
	budget *membudget.Budget

	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	peakHeap uint64
}

// NewTracker creates a tracker. budget may be nil.
func NewTracker(config Config, budget *membudget.Budget) *Tracker {
	return &Tracker{
		config: config,
		budget: budget,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Enabled reports whether the tracker logs anything.
func (t *Tracker) Enabled() bool { return t.config.Enabled }

// Start begins periodic logging.
func (t *Tracker) Start() {
	if !t.config.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}

	log := logging.L()
	log.Info().Dur("interval", t.config.LogInterval).Msg("memory diagnostics enabled")

	if t.config.PprofEnabled {
		go func() {
			log.Info().Str("addr", ":6060").Msg("starting pprof server")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go t.loop()
}

// Stop stops periodic logging and logs a final sample.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// Sample records the current heap and returns it with the peak seen so far.
func (t *Tracker) Sample() (Stats, uint64) {
	stats := Read()
	t.mu.Lock()
	defer t.mu.Unlock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	return stats, t.peakHeap
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

// LogNow logs current heap usage and, if a budget is attached, how much of
// it the seen-key sets hold.
func (t *Tracker) LogNow(reason string) {
	if !t.config.Enabled {
		return
	}
	stats, peak := t.Sample()

	ev := logging.L().Debug().
		Str("reason", reason).
		Str("heap_alloc", logging.HumanBytes(int64(stats.HeapAlloc))).
		Str("heap_inuse", logging.HumanBytes(int64(stats.HeapInuse))).
		Str("stack_inuse", logging.HumanBytes(int64(stats.StackInuse))).
		Str("sys_total", logging.HumanBytes(int64(stats.Sys))).
		Str("peak_heap", logging.HumanBytes(int64(peak))).
		Uint32("num_gc", stats.NumGC)

	if t.budget != nil {
		inUse := t.budget.InUse()
		ev = ev.Str("key_budget_inuse", logging.HumanBytes(int64(inUse))).
			Str("key_budget_total", logging.HumanBytes(int64(t.budget.Total())))
		if r := heapRatio(stats.HeapAlloc, inUse); r > 0 {
			ev = ev.Float64("heap_vs_budget_ratio", r)
		}
	}
	ev.Msg("memory stats")
}

// heapRatio is heap over tracked key bytes, or 0 when nothing is tracked.
func heapRatio(heap, tracked uint64) float64 {
	if tracked == 0 {
		return 0
	}
	return float64(heap) / float64(tracked)
}

func (t *Tracker) loop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
