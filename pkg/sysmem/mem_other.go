//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package sysmem

func physicalMemory() (uint64, bool) {
	return 0, false
}
