package ringbuffer

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/framerelay/pkg/shm"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	KindIngest  = "ingest"
	KindDisplay = "display"
)

// Registry owns one RingBuffer per source id. Removing an entry closes the
// buffer and releases its region.
type Registry struct {
	kind    string
	alloc   shm.Allocator
	hooks   Hooks
	mu      sync.RWMutex
	buffers map[string]*RingBuffer
}

func NewRegistry(kind string, alloc shm.Allocator) *Registry {
	return &Registry{
		kind:  kind,
		alloc: alloc,
		hooks: Hooks{
			OnWrite: metrics.FramesWritten.WithLabelValues(kind).Inc,
			OnRead:  metrics.FramesRead.WithLabelValues(kind).Inc,
			OnEvict: metrics.FramesEvicted.WithLabelValues(kind).Inc,
		},
		buffers: map[string]*RingBuffer{},
	}
}

func (r *Registry) Kind() string { return r.kind }

// Create allocates a region for slotCount frames of the given geometry.
// A slotCount of zero or less uses DefaultSlotCount.
func (r *Registry) Create(id string, width, height, bpp, slotCount int) (*RingBuffer, error) {
	if slotCount <= 0 {
		slotCount = DefaultSlotCount
	}
	geometry := videoframe.NewGeometry(width, height, bpp)
	if !geometry.Valid() {
		return nil, xerror.Errorf("unable to create %s buffer for [%s]: invalid geometry %dx%dx%d", r.kind, id, width, height, bpp)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.buffers[id]; ok {
		return nil, xerror.Errorf("%s buffer for [%s] already exists", r.kind, id)
	}

	size := geometry.SlotSize() * slotCount
	region, err := r.alloc.Allocate(fmt.Sprintf("framerelay-%s-%s", r.kind, id), size)
	if err != nil {
		return nil, xerror.Errorf("unable to create %s buffer for [%s]: %w", r.kind, id, err)
	}

	buf, err := New(region, geometry, slotCount, r.hooks)
	if err != nil {
		region.Close()
		return nil, err
	}

	log.Debug("Allocated %s %s buffer for [%s] (%d slots)", humanize.Bytes(uint64(size)), r.kind, id, slotCount)
	r.buffers[id] = buf
	return buf, nil
}

func (r *Registry) Get(id string) (*RingBuffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.buffers[id]
	return buf, ok
}

// GetAll returns a snapshot of the current entries.
func (r *Registry) GetAll() map[string]*RingBuffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make(map[string]*RingBuffer, len(r.buffers))
	for id, buf := range r.buffers {
		all[id] = buf
	}
	return all
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}

// Remove closes and forgets the buffer for id, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	buf, ok := r.buffers[id]
	delete(r.buffers, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := buf.Close(); err != nil {
		log.Error("unable to release %s buffer for [%s]: %v", r.kind, id, err)
	}
	return true
}

// Close removes every buffer.
func (r *Registry) Close() error {
	r.mu.Lock()
	buffers := r.buffers
	r.buffers = map[string]*RingBuffer{}
	r.mu.Unlock()

	var result *multierror.Error
	for id, buf := range buffers {
		if err := buf.Close(); err != nil {
			result = multierror.Append(result, xerror.Errorf("release %s buffer for [%s]: %w", r.kind, id, err))
		}
	}
	return result.ErrorOrNil()
}
