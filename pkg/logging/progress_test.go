package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProgressTracker_BasicOperations(t *testing.T) {
	pt := NewProgressTracker(10)

	pt.RecordCompletion(100 * time.Millisecond)
	pt.RecordCompletion(150 * time.Millisecond)
	pt.RecordSkip()

	completed, skipped, total := pt.Progress()
	if completed != 2 || skipped != 1 || total != 10 {
		t.Errorf("Progress() = %d, %d, %d; want 2, 1, 10", completed, skipped, total)
	}
	if pct := pt.ProgressPct(); pct != 30.0 {
		t.Errorf("expected progress 30%%, got %.1f%%", pct)
	}
	if remaining := pt.Remaining(); remaining != 7 {
		t.Errorf("expected remaining=7, got %d", remaining)
	}
}

func TestProgressTracker_ETA(t *testing.T) {
	pt := NewProgressTracker(10)
	pt.RecordCompletion(100 * time.Millisecond)
	pt.RecordCompletion(100 * time.Millisecond)

	if eta := pt.ETA(); eta != 800*time.Millisecond {
		t.Errorf("expected ETA 800ms, got %v", eta)
	}
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	pt := NewProgressTracker(0)
	if pct := pt.ProgressPct(); pct != 100.0 {
		t.Errorf("expected 100%% for zero total, got %.1f%%", pct)
	}
	if eta := pt.ETA(); eta != 0 {
		t.Errorf("expected 0 ETA for zero total, got %v", eta)
	}
}

func TestCompletionEvent_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	BatchComplete(zerolog.New(&buf), PhaseCurate, 500*time.Millisecond).
		Str("source", "s3://b/in/f.parquet").
		Int("part", 3).
		Bool("over_budget", false).
		Log("batch written")

	output := buf.String()
	for _, want := range []string{
		`"event":"batch_completed"`,
		`"phase":"curate"`,
		`"duration_ms":500`,
		`"source":"s3://b/in/f.parquet"`,
		`"part":3`,
		`"over_budget":false`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "duration_h") {
		t.Errorf("unexpected human field in JSON mode: %s", output)
	}
}

func TestCompletionEvent_FieldOrder(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "e", "p", 0).
		Str("z", "1").
		Str("a", "2").
		Log("ordered")

	out := buf.String()
	if strings.Index(out, `"z"`) > strings.Index(out, `"a"`) {
		t.Errorf("fields not emitted in insertion order: %s", out)
	}
}

func TestCompletionEvent_HumanCompanions(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	PhaseComplete(zerolog.New(&buf), PhaseCollect, time.Second).
		Bytes("key_bytes", 1073741824).
		Count("rows", 1500000).
		Log("collected")

	output := buf.String()
	for _, want := range []string{
		`"key_bytes":1073741824`,
		`"key_bytes_h":"1.00 GiB"`,
		`"rows":1500000`,
		`"rows_h":"1.50M"`,
		`"duration_h":"1.00s"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestCompletionEvent_ProgressFromTracker(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	pt := NewProgressTracker(4)
	pt.RecordCompletion(time.Second)
	pt.RecordSkip()

	RunComplete(zerolog.New(&buf), 2*time.Second).
		ProgressFromTracker(pt).
		Log("run finished")

	output := buf.String()
	for _, want := range []string{
		`"event":"run_completed"`,
		`"completed":1`,
		`"skipped":1`,
		`"total":4`,
		`"progress_pct":50`,
		`"eta_ms":2000`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}
