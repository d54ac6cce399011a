package videoframe

import (
	"encoding/binary"
	"time"

	"github.com/tauraamui/xerror"
)

// TimestampSize is the number of bytes trailing each encoded frame payload.
const TimestampSize = 8

type Dimensions struct {
	W, H int
}

// Geometry describes the fixed shape of every frame carried by one buffer.
type Geometry struct {
	Dimensions
	BPP int
}

func NewGeometry(w, h, bpp int) Geometry {
	return Geometry{Dimensions: Dimensions{W: w, H: h}, BPP: bpp}
}

func (g Geometry) PayloadSize() int {
	return g.W * g.H * g.BPP
}

// SlotSize is the encoded size of one frame: payload then timestamp.
func (g Geometry) SlotSize() int {
	return g.PayloadSize() + TimestampSize
}

func (g Geometry) Valid() bool {
	return g.W > 0 && g.H > 0 && g.BPP > 0
}

// Frame is one decoded image. Its payload is copied on construction and
// never changes afterwards.
type Frame struct {
	data      []byte
	geometry  Geometry
	timestamp int64
}

// New copies data into a frame stamped with ts milliseconds since epoch.
func New(data []byte, geometry Geometry, ts int64) (Frame, error) {
	if len(data) != geometry.PayloadSize() {
		return Frame{}, xerror.Errorf(
			"frame payload is %d bytes, geometry %dx%dx%d expects %d",
			len(data), geometry.W, geometry.H, geometry.BPP, geometry.PayloadSize(),
		)
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return Frame{data: owned, geometry: geometry, timestamp: ts}, nil
}

// Data returns the payload shared with every copy of the frame. Callers
// must not modify it.
func (f Frame) Data() []byte { return f.data }

func (f Frame) Geometry() Geometry     { return f.geometry }
func (f Frame) Dimensions() Dimensions { return f.geometry.Dimensions }
func (f Frame) Timestamp() int64       { return f.timestamp }
func (f Frame) Time() time.Time        { return time.UnixMilli(f.timestamp) }
func (f Frame) EncodedSize() int       { return len(f.data) + TimestampSize }

// Encode writes the payload followed by the big endian timestamp into dst,
// which must be exactly EncodedSize bytes long. Geometry is not encoded.
func (f Frame) Encode(dst []byte) error {
	if len(dst) != f.EncodedSize() {
		return xerror.Errorf("slot is %d bytes, frame encodes to %d", len(dst), f.EncodedSize())
	}
	n := copy(dst, f.data)
	binary.BigEndian.PutUint64(dst[n:], uint64(f.timestamp))
	return nil
}

// Decode copies a frame out of src. The reader supplies the geometry since
// it is a property of the owning buffer, not of the slot.
func Decode(src []byte, geometry Geometry) (Frame, error) {
	if len(src) != geometry.SlotSize() {
		return Frame{}, xerror.Errorf("slot is %d bytes, geometry expects %d", len(src), geometry.SlotSize())
	}
	payload := len(src) - TimestampSize
	data := make([]byte, payload)
	copy(data, src[:payload])
	ts := int64(binary.BigEndian.Uint64(src[payload:]))
	return Frame{data: data, geometry: geometry, timestamp: ts}, nil
}

// Raw is one chunk yielded by a decode source before it becomes a Frame.
type Raw struct {
	Data []byte
	// PTS is the stream relative presentation time, valid when HasPTS is set.
	PTS    time.Duration
	HasPTS bool
}
