package shm

import (
	"sync"

	"github.com/tauraamui/xerror"
	"golang.org/x/sys/unix"
)

// Default returns the memfd allocator on linux.
func Default() Allocator {
	return Memfd()
}

type memfdAllocator struct{}

// Memfd returns an allocator of anonymous shared memory files mapped
// read/write into this process.
func Memfd() Allocator {
	return memfdAllocator{}
}

func (memfdAllocator) Allocate(name string, size int) (Region, error) {
	if size <= 0 {
		return nil, errInvalidSize
	}

	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, xerror.Errorf("unable to create shared region %s: %w", name, err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, xerror.Errorf("unable to size shared region %s: %w", name, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, xerror.Errorf("unable to map shared region %s: %w", name, err)
	}

	return &memfdRegion{name: name, fd: fd, data: data}, nil
}

type memfdRegion struct {
	name      string
	fd        int
	data      []byte
	closeOnce sync.Once
	closeErr  error
}

func (r *memfdRegion) Name() string  { return r.name }
func (r *memfdRegion) Size() int     { return len(r.data) }
func (r *memfdRegion) Bytes() []byte { return r.data }
func (r *memfdRegion) FD() int       { return r.fd }

func (r *memfdRegion) Close() error {
	r.closeOnce.Do(func() {
		if err := unix.Munmap(r.data); err != nil {
			r.closeErr = xerror.Errorf("unable to unmap shared region %s: %w", r.name, err)
		}
		r.data = nil
		if err := unix.Close(r.fd); err != nil && r.closeErr == nil {
			r.closeErr = xerror.Errorf("unable to close shared region %s: %w", r.name, err)
		}
	})
	return r.closeErr
}
