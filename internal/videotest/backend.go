// Package videotest provides a scripted decode backend for tests. Frames
// and errors pushed into the Backend are handed to whichever connection
// reads next.
package videotest

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

const pushTimeout = 2 * time.Second

type item struct {
	raw videoframe.Raw
	err error
}

type Backend struct {
	// ConnectErr is returned by every Connect while set.
	ConnectErr error
	// Block makes Connect wait for its context to be cancelled.
	Block bool

	mu    sync.Mutex
	conns []*Conn
	feed  chan item
}

func NewBackend() *Backend {
	return &Backend{feed: make(chan item)}
}

func (b *Backend) Name() string { return "videotest" }

func (b *Backend) Connect(ctx context.Context, sett videobackend.Settings) (videobackend.Connection, error) {
	b.mu.Lock()
	connectErr, block := b.ConnectErr, b.Block
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if connectErr != nil {
		return nil, connectErr
	}

	conn := &Conn{settings: sett, feed: b.feed, closed: make(chan struct{})}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	return conn, nil
}

func (b *Backend) SetConnectErr(err error) {
	b.mu.Lock()
	b.ConnectErr = err
	b.mu.Unlock()
}

// Connections returns every connection opened so far, oldest first.
func (b *Backend) Connections() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Conn(nil), b.conns...)
}

// Push hands raw to the next Read, reporting false if no connection read
// it in time.
func (b *Backend) Push(raw videoframe.Raw) bool {
	return b.send(item{raw: raw})
}

// PushPayload pushes a frame filled with fill sized for geometry.
func (b *Backend) PushPayload(geometry videoframe.Geometry, fill byte) bool {
	return b.Push(Payload(geometry, fill))
}

// Fail makes the next Read return err.
func (b *Backend) Fail(err error) bool {
	return b.send(item{err: err})
}

func (b *Backend) send(it item) bool {
	select {
	case b.feed <- it:
		return true
	case <-time.After(pushTimeout):
		return false
	}
}

// Payload builds a raw frame of geometry's payload size.
func Payload(geometry videoframe.Geometry, fill byte) videoframe.Raw {
	return videoframe.Raw{Data: bytes.Repeat([]byte{fill}, geometry.PayloadSize())}
}

type Conn struct {
	settings  videobackend.Settings
	feed      <-chan item
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Settings() videobackend.Settings { return c.settings }

func (c *Conn) Read() (videoframe.Raw, error) {
	select {
	case <-c.closed:
		return videoframe.Raw{}, io.EOF
	default:
	}

	select {
	case <-c.closed:
		return videoframe.Raw{}, io.EOF
	case it := <-c.feed:
		return it.raw, it.err
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WaitFor polls cond until it holds or the timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
