package relay

import "github.com/tauraamui/framerelay/pkg/shm"

func OverloadAllocator(overload func() shm.Allocator) func() {
	allocatorRef := allocator
	allocator = overload
	return func() { allocator = allocatorRef }
}
