// Package opencv decodes network streams in process through OpenCV.
package opencv

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVBackend struct{}

// New returns the in process OpenCV backend. Closing one of its
// connections cannot interrupt a read already inside OpenCV, so stopping
// a source waits for that read to return. OpenCV's FFmpeg capture gives
// up on a silent stream after its own interrupt timeout (30s by default).
func New() videobackend.Backend {
	return &openCVBackend{}
}

func (b *openCVBackend) Name() string { return "opencv" }

func (b *openCVBackend) Connect(cancel context.Context, sett videobackend.Settings) (videobackend.Connection, error) {
	conn := openCVConnection{
		logger:   log.Prefixed(sett.ID),
		geometry: sett.Geometry,
		mat:      gocv.NewMat(),
	}
	if err := conn.connect(cancel, sett.URL); err != nil {
		conn.mat.Close()
		return nil, err
	}
	conn.logger.Info("Opened OpenCV capture for %s", videobackend.RedactURL(sett.URL))
	return &conn, nil
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	d <- openVideoStreamResult{vc: vc, err: err}
}

var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCapture(addr)
}

type openCVConnection struct {
	logger   log.Prefixed
	geometry videoframe.Geometry
	mu       sync.Mutex
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	reading  bool
	closed   bool
}

func (c *openCVConnection) connect(cancel context.Context, addr string) error {
	// buffered so a capture opened after cancellation can still be handed
	// over and released
	connAndError := make(chan openVideoStreamResult, 1)
	go openVideoStream(addr, connAndError)
	select {
	case r := <-connAndError:
		if r.err != nil {
			return xerror.Errorf("unable to open video capture: %w", r.err)
		}
		c.vc = r.vc
		return nil
	case <-cancel.Done():
		go func() {
			if r := <-connAndError; r.vc != nil {
				r.vc.Close()
			}
		}()
		return xerror.New("connection cancelled")
	}
}

// Read decodes the next frame. OpenCV captures cannot be released while a
// read is in flight, so a Close during Read defers the release to here.
func (c *openCVConnection) Read() (videoframe.Raw, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return videoframe.Raw{}, io.EOF
	}
	c.reading = true
	c.mu.Unlock()

	ok := c.vc.Read(&c.mat)
	pts := time.Duration(c.vc.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = false
	if c.closed {
		c.release()
		return videoframe.Raw{}, io.EOF
	}
	if !ok || c.mat.Empty() {
		return videoframe.Raw{}, io.EOF
	}

	data, err := c.pixels()
	if err != nil {
		return videoframe.Raw{}, err
	}
	return videoframe.Raw{Data: data, PTS: pts, HasPTS: pts > 0}, nil
}

// pixels converts the decoded BGR mat into the configured pixel layout.
// Differing dimensions are left alone so the chunk is discarded upstream.
func (c *openCVConnection) pixels() ([]byte, error) {
	switch c.geometry.BPP {
	case 3:
		return c.mat.ToBytes(), nil
	case 1:
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(c.mat, &gray, gocv.ColorBGRToGray)
		return gray.ToBytes(), nil
	case 4:
		bgra := gocv.NewMat()
		defer bgra.Close()
		gocv.CvtColor(c.mat, &bgra, gocv.ColorBGRToBGRA)
		return bgra.ToBytes(), nil
	default:
		return nil, xerror.Errorf("no OpenCV conversion to %d bytes per pixel", c.geometry.BPP)
	}
}

func (c *openCVConnection) release() {
	if c.vc != nil {
		if err := c.vc.Close(); err != nil {
			c.logger.Error("unable to release video capture: %v", err)
		}
		c.vc = nil
	}
	c.mat.Close()
}

// Close returns without waiting for an in flight Read. That Read releases
// the capture when it comes back and reports io.EOF.
func (c *openCVConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.reading {
		c.release()
	}
	return nil
}
