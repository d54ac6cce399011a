// Package shm provides fixed size memory regions which back frame ring
// buffers. A region may be OS shared (memfd on linux) so its contents can
// be mapped by another process given the descriptor, or plain process heap.
package shm

import (
	"github.com/tauraamui/xerror"
)

type Region interface {
	Name() string
	Size() int
	// Bytes returns the mapped memory. The slice is invalid after Close.
	Bytes() []byte
	// FD returns the descriptor backing the region, or -1 for heap regions.
	FD() int
	Close() error
}

type Allocator interface {
	Allocate(name string, size int) (Region, error)
}

var errInvalidSize = xerror.New("region size must be greater than zero")

type heapAllocator struct{}

// Heap returns an allocator of process local regions.
func Heap() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Allocate(name string, size int) (Region, error) {
	if size <= 0 {
		return nil, errInvalidSize
	}
	return &heapRegion{name: name, data: make([]byte, size)}, nil
}

type heapRegion struct {
	name string
	data []byte
}

func (r *heapRegion) Name() string  { return r.name }
func (r *heapRegion) Size() int     { return len(r.data) }
func (r *heapRegion) Bytes() []byte { return r.data }
func (r *heapRegion) FD() int       { return -1 }

func (r *heapRegion) Close() error {
	r.data = nil
	return nil
}
