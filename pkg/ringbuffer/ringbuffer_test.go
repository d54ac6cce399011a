package ringbuffer_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/framerelay/pkg/ringbuffer"
	"github.com/tauraamui/framerelay/pkg/shm"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

// 2x2 pixels at 3 bytes each gives a 12 byte payload
var testGeometry = videoframe.NewGeometry(2, 2, 3)

func newTestBuffer(t *testing.T, slots int) *ringbuffer.RingBuffer {
	t.Helper()
	region, err := shm.Heap().Allocate(t.Name(), testGeometry.SlotSize()*slots)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := ringbuffer.New(region, testGeometry, slots, ringbuffer.Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func frameAt(t *testing.T, ts int64) videoframe.Frame {
	t.Helper()
	frame, err := videoframe.New(bytes.Repeat([]byte{byte(ts)}, testGeometry.PayloadSize()), testGeometry, ts)
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func drain(t *testing.T, buf *ringbuffer.RingBuffer) []int64 {
	t.Helper()
	var timestamps []int64
	for {
		frame, ok, err := buf.ReadFrame()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return timestamps
		}
		timestamps = append(timestamps, frame.Timestamp())
	}
}

func TestNewRejectsMismatchedRegion(t *testing.T) {
	is := is.New(t)

	region, err := shm.Heap().Allocate("short", testGeometry.SlotSize()*3)
	is.NoErr(err)

	buf, err := ringbuffer.New(region, testGeometry, 10, ringbuffer.Hooks{})
	is.True(err != nil)
	is.True(buf == nil)
}

func TestNewRejectsSingleSlot(t *testing.T) {
	is := is.New(t)

	region, err := shm.Heap().Allocate("single", testGeometry.SlotSize())
	is.NoErr(err)

	_, err = ringbuffer.New(region, testGeometry, 1, ringbuffer.Hooks{})
	is.True(err != nil)
}

func TestWriteFifteenIntoTenSlotsKeepsLastNine(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 10)

	for ts := int64(1); ts <= 15; ts++ {
		is.NoErr(buf.WriteFrame(frameAt(t, ts)))
	}

	is.Equal(buf.FrameCount(), 9)
	is.Equal(drain(t, buf), []int64{7, 8, 9, 10, 11, 12, 13, 14, 15})

	_, ok, err := buf.ReadFrame()
	is.NoErr(err)
	is.True(!ok)
}

func TestOverflowAlwaysKeepsLastCapacityFramesInOrder(t *testing.T) {
	is := is.New(t)

	for writes := 0; writes <= 40; writes++ {
		buf := newTestBuffer(t, 10)
		for ts := 1; ts <= writes; ts++ {
			is.NoErr(buf.WriteFrame(frameAt(t, int64(ts))))
			is.True(buf.FrameCount() <= buf.Capacity())
		}

		var want []int64
		first := writes - buf.Capacity() + 1
		if first < 1 {
			first = 1
		}
		for ts := first; ts <= writes; ts++ {
			want = append(want, int64(ts))
		}
		is.Equal(drain(t, buf), want)
	}
}

func TestReadOnEmptyBufferDoesNotMoveCursors(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 4)

	for i := 0; i < 5; i++ {
		_, ok, err := buf.ReadFrame()
		is.NoErr(err)
		is.True(!ok)
	}
	is.Equal(buf.FrameCount(), 0)

	is.NoErr(buf.WriteFrame(frameAt(t, 42)))
	is.Equal(buf.FrameCount(), 1)
	is.Equal(drain(t, buf), []int64{42})
}

func TestRoundTripKeepsPayloadAndTimestamp(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 3)

	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 255}
	frame, err := videoframe.New(payload, testGeometry, 1634567890123)
	is.NoErr(err)
	is.NoErr(buf.WriteFrame(frame))

	read, ok, err := buf.ReadFrame()
	is.NoErr(err)
	is.True(ok)
	is.Equal(read.Data(), payload)
	is.Equal(read.Timestamp(), int64(1634567890123))
	is.Equal(read.Geometry(), testGeometry)
}

func TestWriteRejectsFrameOfOtherGeometry(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 3)

	other := videoframe.NewGeometry(1, 1, 3)
	frame, err := videoframe.New(make([]byte, 3), other, 1)
	is.NoErr(err)

	err = buf.WriteFrame(frame)
	is.True(errors.Is(err, ringbuffer.ErrFrameSize))
	is.Equal(buf.FrameCount(), 0)
}

func TestClearEmptiesBuffer(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 5)

	for ts := int64(1); ts <= 3; ts++ {
		is.NoErr(buf.WriteFrame(frameAt(t, ts)))
	}
	buf.Clear()
	is.Equal(buf.FrameCount(), 0)
	is.Equal(len(drain(t, buf)), 0)
}

func TestClosedBufferRejectsOperations(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 5)

	is.NoErr(buf.Close())
	is.NoErr(buf.Close())
	is.True(buf.IsClosed())

	is.True(ringbuffer.IsClosed(buf.WriteFrame(frameAt(t, 1))))
	_, ok, err := buf.ReadFrame()
	is.True(!ok)
	is.True(errors.Is(err, ringbuffer.ErrClosed))
}

func TestStatsCountWritesReadsAndEvictions(t *testing.T) {
	is := is.New(t)

	var written, read, evicted int
	region, err := shm.Heap().Allocate("stats", testGeometry.SlotSize()*10)
	is.NoErr(err)
	buf, err := ringbuffer.New(region, testGeometry, 10, ringbuffer.Hooks{
		OnWrite: func() { written++ },
		OnRead:  func() { read++ },
		OnEvict: func() { evicted++ },
	})
	is.NoErr(err)

	for ts := int64(1); ts <= 15; ts++ {
		is.NoErr(buf.WriteFrame(frameAt(t, ts)))
	}
	drain(t, buf)

	stats := buf.Stats()
	is.Equal(stats.Writes, uint64(15))
	is.Equal(stats.Reads, uint64(9))
	is.Equal(stats.Evictions, uint64(6))
	is.Equal(stats.SlotSize, 20)
	is.Equal(stats.SlotCount, 10)
	is.Equal(stats.FrameCount, 0)
	is.Equal(written, 15)
	is.Equal(read, 9)
	is.Equal(evicted, 6)
}

func TestConcurrentWriterLeavesBufferFull(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 10)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := int64(1); ts <= 10000; ts++ {
			if err := buf.WriteFrame(frameAt(t, ts)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	is.Equal(buf.FrameCount(), 9)
	is.Equal(drain(t, buf), []int64{9992, 9993, 9994, 9995, 9996, 9997, 9998, 9999, 10000})
}

func TestConcurrentWriterAndReaderNeverReorder(t *testing.T) {
	is := is.New(t)
	buf := newTestBuffer(t, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ts := int64(1); ts <= 5000; ts++ {
			if err := buf.WriteFrame(frameAt(t, ts)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	var last int64
	reading := true
	for reading {
		select {
		case <-done:
			reading = false
		default:
		}
		frame, ok, err := buf.ReadFrame()
		is.NoErr(err)
		if !ok {
			continue
		}
		is.True(frame.Timestamp() > last)
		is.Equal(frame.Data()[0], byte(frame.Timestamp()))
		last = frame.Timestamp()
	}

	for _, ts := range drain(t, buf) {
		is.True(ts > last)
		last = ts
	}
	is.Equal(last, int64(5000))
}
