//go:build !linux

package shm

// Default returns the heap allocator where memfd is unavailable.
func Default() Allocator {
	return Heap()
}
