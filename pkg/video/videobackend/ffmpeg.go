package videobackend

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	DefaultFFmpegExecutable = "ffmpeg"
	probeTimeout            = 5 * time.Second
	drainTimeout            = 2 * time.Second
)

type ffmpegBackend struct {
	executable string
}

// FFmpeg decodes sources with an ffmpeg subprocess writing raw frames to
// its standard output.
func FFmpeg(executable string) Backend {
	if len(executable) == 0 {
		executable = DefaultFFmpegExecutable
	}
	return &ffmpegBackend{executable: executable}
}

func (b *ffmpegBackend) Name() string { return "ffmpeg" }

func pixelFormat(bpp int) (string, error) {
	switch bpp {
	case 1:
		return "gray", nil
	case 3:
		return "bgr24", nil
	case 4:
		return "bgra", nil
	default:
		return "", xerror.Errorf("no raw pixel format with %d bytes per pixel", bpp)
	}
}

func ffmpegArgs(sett Settings) ([]string, error) {
	pixfmt, err := pixelFormat(sett.Geometry.BPP)
	if err != nil {
		return nil, err
	}

	var args []string
	if isRTSP(sett.URL) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-loglevel", "error",
		"-i", sett.URL,
		"-f", "rawvideo",
		"-pix_fmt", pixfmt,
		"-s", strconv.Itoa(sett.Geometry.W)+"x"+strconv.Itoa(sett.Geometry.H),
		"-an",
		"-",
	), nil
}

func (b *ffmpegBackend) Connect(ctx context.Context, sett Settings) (Connection, error) {
	args, err := ffmpegArgs(sett)
	if err != nil {
		return nil, err
	}

	if isRTSP(sett.URL) {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe(probeCtx, sett.URL)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	cmd := exec.CommandContext(ctx, b.executable, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerror.Errorf("unable to open decoder output: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, xerror.Errorf("unable to open decoder diagnostics: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, xerror.Errorf("unable to start %s: %w", b.executable, err)
	}

	logger := log.Prefixed(sett.ID)
	logger.Info("Started decoder pid %d for %s", cmd.Process.Pid, RedactURL(sett.URL))

	conn := &ffmpegConnection{
		cmd:       cmd,
		stdout:    stdout,
		frameSize: sett.Geometry.PayloadSize(),
		logger:    logger,
		drained:   make(chan struct{}),
	}
	go conn.drainDiagnostics(stderr)
	return conn, nil
}

type ffmpegConnection struct {
	cmd       *exec.Cmd
	stdout    io.Reader
	frameSize int
	logger    log.Prefixed
	drained   chan struct{}
	closeOnce sync.Once
}

// drainDiagnostics keeps the stderr pipe empty so the decoder never stalls
// writing to it.
func (c *ffmpegConnection) drainDiagnostics(stderr io.Reader) {
	defer close(c.drained)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Debug("%s", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug("decoder diagnostics no longer logged: %v", err)
	}
	// the scanner gives up on oversized lines, the pipe still has to drain
	if _, err := io.Copy(io.Discard, stderr); err != nil {
		c.logger.Debug("decoder diagnostics closed: %v", err)
	}
}

func (c *ffmpegConnection) Read() (videoframe.Raw, error) {
	buf := make([]byte, c.frameSize)
	n, err := io.ReadFull(c.stdout, buf)
	switch err {
	case nil:
		return videoframe.Raw{Data: buf}, nil
	case io.ErrUnexpectedEOF:
		return videoframe.Raw{Data: buf[:n]}, nil
	default:
		return videoframe.Raw{}, err
	}
}

func (c *ffmpegConnection) Close() error {
	c.closeOnce.Do(func() {
		if err := c.cmd.Process.Kill(); err != nil {
			c.logger.Debug("decoder already exited: %v", err)
		}
		// a grandchild holding stderr open must not hang teardown
		select {
		case <-c.drained:
		case <-time.After(drainTimeout):
			c.logger.Warn("decoder diagnostics still open after kill")
		}
		if err := c.cmd.Wait(); err != nil {
			c.logger.Debug("decoder exited: %v", err)
		}
	})
	return nil
}
