package sysmem

import (
	"runtime"
	"testing"
)

func TestTotal(t *testing.T) {
	result := Total()

	switch runtime.GOOS {
	case "linux", "darwin":
		if !result.Reliable {
			t.Fatalf("expected reliable detection on %s", runtime.GOOS)
		}
		if result.TotalBytes < 64*1024*1024 {
			t.Errorf("Total() = %d bytes, implausibly small", result.TotalBytes)
		}
	default:
		if !result.Reliable && result.TotalBytes != 0 {
			t.Errorf("unreliable result should carry 0 bytes, got %d", result.TotalBytes)
		}
	}
}
