// Package ingest runs the per source decode loop which fills a source's
// ingest ring buffer.
package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/framerelay/pkg/ringbuffer"
	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

type Settings struct {
	ID      string
	Params  Params
	Buffer  *ringbuffer.RingBuffer
	Backend videobackend.Backend
	// Clock is optional.
	Clock ClockSource
}

// Status is a point in time snapshot of a core.
type Status struct {
	ID      string `json:"source_id"`
	Address string `json:"address"`
	Running bool   `json:"running"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	BPP     int    `json:"bytes_per_pixel"`
}

// Core owns the decode goroutine of one source. Cores are restartable: a
// decode loop which ends, for any reason, leaves the core Idle until Start
// is called again.
type Core struct {
	id      string
	params  Params
	buffer  *ringbuffer.RingBuffer
	backend videobackend.Backend
	clock   ClockSource
	logger  log.Prefixed

	// mu serialises Start and Stop
	mu     sync.Mutex
	state  int32
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   videobackend.Connection
}

func New(sett Settings) *Core {
	return &Core{
		id:      sett.ID,
		params:  sett.Params,
		buffer:  sett.Buffer,
		backend: sett.Backend,
		clock:   sett.Clock,
		logger:  log.Prefixed(sett.ID),
	}
}

func (c *Core) ID() string      { return c.id }
func (c *Core) Params() Params  { return c.params }
func (c *Core) State() State    { return State(atomic.LoadInt32(&c.state)) }
func (c *Core) IsRunning() bool { return c.State() == Running }

func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != Idle {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	atomic.StoreInt32(&c.state, int32(Running))
	c.logger.Info("Starting ingest from %s", c.params.IP)
	go c.run(ctx, cancel, c.done)
}

// Stop cancels the decode loop, force closes its connection so a blocked
// read returns, and waits for the loop to exit.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&c.state, int32(Running), int32(Stopping)) {
		return
	}

	c.logger.Info("Stopping ingest...")
	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("unable to close connection: %v", err)
		}
	}
	c.connMu.Unlock()

	<-c.done
	atomic.StoreInt32(&c.state, int32(Idle))
}

func (c *Core) Status() Status {
	geo := c.buffer.Geometry()
	return Status{
		ID:      c.id,
		Address: c.params.IP,
		Running: c.IsRunning(),
		Width:   geo.W,
		Height:  geo.H,
		BPP:     geo.BPP,
	}
}

func (c *Core) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer atomic.CompareAndSwapInt32(&c.state, int32(Running), int32(Idle))
	defer cancel()

	if err := c.decode(ctx); err != nil {
		metrics.DecodeFailures.WithLabelValues(c.id).Inc()
		c.logger.Error("Ingest stopped: %v", err)
		return
	}
	c.logger.Debug("Decode loop exited")
}

func (c *Core) decode(ctx context.Context) error {
	geometry := c.buffer.Geometry()
	conn, err := c.backend.Connect(ctx, videobackend.Settings{
		ID:       c.id,
		URL:      c.params.URL(),
		Geometry: geometry,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if !c.attach(ctx, conn) {
		return nil
	}
	defer c.detach(conn)

	stamp := stamper{ctx: ctx, clock: c.clock, logger: c.logger}
	payloadSize := geometry.PayloadSize()
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Warn("Stream ended")
				return nil
			}
			return err
		}

		if len(raw.Data) != payloadSize {
			metrics.FramesDiscarded.WithLabelValues(c.id).Inc()
			c.logger.Debug("Discarding %d byte chunk, expected %d", len(raw.Data), payloadSize)
			continue
		}

		frame, err := videoframe.New(raw.Data, geometry, stamp.timestamp(raw))
		if err != nil {
			return err
		}
		if err := c.buffer.WriteFrame(frame); err != nil {
			return err
		}
	}
}

// attach publishes conn for Stop to close. A connection established after
// Stop cancelled the context is closed here instead.
func (c *Core) attach(ctx context.Context, conn videobackend.Connection) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Core) detach(conn videobackend.Connection) {
	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()
	if err := conn.Close(); err != nil {
		c.logger.Warn("unable to close connection: %v", err)
	}
}
