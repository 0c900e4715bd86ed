// Package sysmem reports total physical memory so a run can size its key
// budget without configuration.
package sysmem

// Result holds the outcome of memory detection.
type Result struct {
	// TotalBytes is the detected physical memory in bytes, or 0 when
	// detection failed.
	TotalBytes uint64

	// Reliable is false when the platform is unsupported or the probe failed.
	Reliable bool
}

// Total probes the platform for physical memory.
func Total() Result {
	n, ok := physicalMemory()
	if !ok || n == 0 {
		return Result{}
	}
	return Result{TotalBytes: n, Reliable: true}
}
