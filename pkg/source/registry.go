// Package source is the entry point for the orchestration layer. It owns
// every source's ingest core together with its pair of ring buffers.
package source

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tauraamui/framerelay/pkg/ingest"
	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/framerelay/pkg/ringbuffer"
	"github.com/tauraamui/framerelay/pkg/shm"
	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

// Params describe a source to create: where to read it from and the
// geometry frames are scaled to.
type Params struct {
	Conn   ingest.Params
	Width  int
	Height int
	BPP    int
}

type Settings struct {
	Backend videobackend.Backend
	// Allocator defaults to shm.Default.
	Allocator shm.Allocator
	// SlotCount of each buffer, zero or less uses ringbuffer.DefaultSlotCount.
	SlotCount int
	Clock     ingest.ClockSource
}

var newID = func() string {
	return uuid.NewString()
}

// Registry maps source ids to their ingest core. Lifecycle calls for one
// id are expected to be serialised by the caller; calls for different
// ids are independent.
type Registry struct {
	backend   videobackend.Backend
	slotCount int
	clock     ingest.ClockSource
	ingest    *ringbuffer.Registry
	display   *ringbuffer.Registry

	mu    sync.RWMutex
	cores map[string]*ingest.Core
}

func NewRegistry(sett Settings) *Registry {
	alloc := sett.Allocator
	if alloc == nil {
		alloc = shm.Default()
	}
	return &Registry{
		backend:   sett.Backend,
		slotCount: sett.SlotCount,
		clock:     sett.Clock,
		ingest:    ringbuffer.NewRegistry(ringbuffer.KindIngest, alloc),
		display:   ringbuffer.NewRegistry(ringbuffer.KindDisplay, alloc),
		cores:     map[string]*ingest.Core{},
	}
}

// Ingest is the registry of buffers written by ingest cores.
func (r *Registry) Ingest() *ringbuffer.Registry { return r.ingest }

// Display is the registry of buffers written by the sampler.
func (r *Registry) Display() *ringbuffer.Registry { return r.display }

func (r *Registry) findByIdentity(identity string) *ingest.Core {
	for _, core := range r.cores {
		if core.Params().Identity() == identity {
			return core
		}
	}
	return nil
}

// CreateSource returns the id of the source params identify, starting a
// new one if none exists yet. An existing source is (re)started instead
// of being duplicated.
func (r *Registry) CreateSource(params Params) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findByIdentity(params.Conn.Identity()); existing != nil {
		log.Debug("Source [%s] already exists for %s", existing.ID(), params.Conn.Identity())
		existing.Start()
		return existing.ID(), nil
	}

	id := newID()
	ingestBuf, err := r.ingest.Create(id, params.Width, params.Height, params.BPP, r.slotCount)
	if err != nil {
		return "", xerror.Errorf("unable to create source for %s: %w", params.Conn.Identity(), err)
	}
	if _, err := r.display.Create(id, params.Width, params.Height, params.BPP, r.slotCount); err != nil {
		r.ingest.Remove(id)
		return "", xerror.Errorf("unable to create source for %s: %w", params.Conn.Identity(), err)
	}

	core := ingest.New(ingest.Settings{
		ID:      id,
		Params:  params.Conn,
		Buffer:  ingestBuf,
		Backend: r.backend,
		Clock:   r.clock,
	})
	r.cores[id] = core
	metrics.ActiveSources.Set(float64(len(r.cores)))

	log.Info("Created source [%s] for %s", id, params.Conn.Identity())
	core.Start()
	return id, nil
}

func (r *Registry) core(id string) (*ingest.Core, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	core, ok := r.cores[id]
	return core, ok
}

func (r *Registry) StartSource(id string) bool {
	core, ok := r.core(id)
	if !ok {
		return false
	}
	core.Start()
	return true
}

func (r *Registry) StopSource(id string) bool {
	core, ok := r.core(id)
	if !ok {
		return false
	}
	core.Stop()
	return true
}

// DeleteSource stops the source's core before releasing its buffers, so
// nothing writes into a released region.
func (r *Registry) DeleteSource(id string) bool {
	r.mu.Lock()
	core, ok := r.cores[id]
	if ok {
		delete(r.cores, id)
		metrics.ActiveSources.Set(float64(len(r.cores)))
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	core.Stop()
	r.ingest.Remove(id)
	r.display.Remove(id)
	metrics.ForgetSource(id)
	log.Info("Deleted source [%s]", id)
	return true
}

func (r *Registry) Status(id string) (ingest.Status, bool) {
	core, ok := r.core(id)
	if !ok {
		return ingest.Status{}, false
	}
	return core.Status(), true
}

// StatusAll returns a snapshot of every source, ordered by id.
func (r *Registry) StatusAll() []ingest.Status {
	r.mu.RLock()
	statuses := make([]ingest.Status, 0, len(r.cores))
	for _, core := range r.cores {
		statuses = append(statuses, core.Status())
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// ReadDisplayFrame takes the oldest unread frame from the source's display
// buffer. It is the only reader of display buffers.
func (r *Registry) ReadDisplayFrame(id string) (videoframe.Frame, bool) {
	buf, ok := r.display.Get(id)
	if !ok {
		return videoframe.Frame{}, false
	}
	frame, ok, err := buf.ReadFrame()
	if err != nil {
		if !ringbuffer.IsClosed(err) {
			log.Warn("Unable to read display frame for [%s]: %v", id, err)
		}
		return videoframe.Frame{}, false
	}
	return frame, ok
}

// BufferStats returns the ingest and display buffer stats of a source.
func (r *Registry) BufferStats(id string) (ingestStats, displayStats ringbuffer.Stats, ok bool) {
	in, inOK := r.ingest.Get(id)
	out, outOK := r.display.Get(id)
	if !inOK || !outOK {
		return ringbuffer.Stats{}, ringbuffer.Stats{}, false
	}
	return in.Stats(), out.Stats(), true
}

// Close deletes every source.
func (r *Registry) Close() error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.cores))
	for id := range r.cores {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.DeleteSource(id)
	}

	var result *multierror.Error
	if err := r.ingest.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.display.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
