// Package ringbuffer implements a fixed slot, overwrite on full, circular
// buffer of encoded frames laid out inside a shm.Region.
//
// Each buffer has one logical writer and one logical reader. Two readers
// sharing a buffer race on the same read cursor and each observe an
// unpredictable subset of frames; fan out through a second buffer instead.
package ringbuffer

import (
	"errors"
	"sync"

	"github.com/tauraamui/framerelay/pkg/shm"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const DefaultSlotCount = 10

var (
	ErrClosed    = xerror.New("ring buffer is closed")
	ErrFrameSize = xerror.New("frame does not fit buffer slot")
)

// Hooks are invoked after the buffer lock is released.
type Hooks struct {
	OnWrite func()
	OnRead  func()
	OnEvict func()
}

type Stats struct {
	SlotSize   int
	SlotCount  int
	FrameCount int
	Writes     uint64
	Reads      uint64
	Evictions  uint64
}

type RingBuffer struct {
	mu        sync.Mutex
	region    shm.Region
	slots     []byte
	geometry  videoframe.Geometry
	slotSize  int
	slotCount int
	readPos   int
	writePos  int
	closed    bool
	writes    uint64
	reads     uint64
	evictions uint64
	hooks     Hooks
}

// New lays out slotCount slots of geometry.SlotSize() bytes over region,
// which must be exactly that large.
func New(region shm.Region, geometry videoframe.Geometry, slotCount int, hooks Hooks) (*RingBuffer, error) {
	if !geometry.Valid() {
		return nil, xerror.Errorf("invalid frame geometry %dx%dx%d", geometry.W, geometry.H, geometry.BPP)
	}
	if slotCount < 2 {
		return nil, xerror.Errorf("ring buffer needs at least 2 slots, got %d", slotCount)
	}
	slotSize := geometry.SlotSize()
	if region.Size() != slotSize*slotCount {
		return nil, xerror.Errorf(
			"region %s is %d bytes, %d slots of %d need %d",
			region.Name(), region.Size(), slotCount, slotSize, slotSize*slotCount,
		)
	}

	return &RingBuffer{
		region:    region,
		slots:     region.Bytes(),
		geometry:  geometry,
		slotSize:  slotSize,
		slotCount: slotCount,
		hooks:     hooks,
	}, nil
}

func (b *RingBuffer) Geometry() videoframe.Geometry { return b.geometry }
func (b *RingBuffer) SlotCount() int                { return b.slotCount }

// Capacity is the number of frames the buffer holds before evicting.
func (b *RingBuffer) Capacity() int { return b.slotCount - 1 }

func (b *RingBuffer) slot(i int) []byte {
	off := i * b.slotSize
	return b.slots[off : off+b.slotSize]
}

// WriteFrame never blocks on a full buffer: when the write cursor lands on
// the read cursor the oldest unread frame is dropped.
func (b *RingBuffer) WriteFrame(frame videoframe.Frame) error {
	if frame.EncodedSize() != b.slotSize {
		return xerror.Errorf("%d byte frame into %d byte slot: %w", frame.EncodedSize(), b.slotSize, ErrFrameSize)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	if err := frame.Encode(b.slot(b.writePos)); err != nil {
		b.mu.Unlock()
		return err
	}
	b.writePos = (b.writePos + 1) % b.slotCount
	b.writes++

	evicted := false
	if b.writePos == b.readPos {
		b.readPos = (b.readPos + 1) % b.slotCount
		b.evictions++
		evicted = true
	}
	b.mu.Unlock()

	call(b.hooks.OnWrite)
	if evicted {
		call(b.hooks.OnEvict)
	}
	return nil
}

// ReadFrame returns false without touching the cursors when the buffer is
// empty. It never waits for a writer.
func (b *RingBuffer) ReadFrame() (videoframe.Frame, bool, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return videoframe.Frame{}, false, ErrClosed
	}

	if b.readPos == b.writePos {
		b.mu.Unlock()
		return videoframe.Frame{}, false, nil
	}

	frame, err := videoframe.Decode(b.slot(b.readPos), b.geometry)
	if err != nil {
		b.mu.Unlock()
		return videoframe.Frame{}, false, err
	}
	b.readPos = (b.readPos + 1) % b.slotCount
	b.reads++
	b.mu.Unlock()

	call(b.hooks.OnRead)
	return frame, true, nil
}

// FrameCount is only exact between operations of the single writer and
// single reader.
func (b *RingBuffer) FrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameCount()
}

func (b *RingBuffer) frameCount() int {
	return (b.writePos - b.readPos + b.slotCount) % b.slotCount
}

func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readPos, b.writePos = 0, 0
}

func (b *RingBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		SlotSize:   b.slotSize,
		SlotCount:  b.slotCount,
		FrameCount: b.frameCount(),
		Writes:     b.writes,
		Reads:      b.reads,
		Evictions:  b.evictions,
	}
}

func (b *RingBuffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close releases the backing region. Every later operation reports ErrClosed.
func (b *RingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.slots = nil
	return b.region.Close()
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func call(f func()) {
	if f != nil {
		f()
	}
}
