// Package video selects the decode backend sources are read through.
package video

import (
	"strings"

	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/framerelay/pkg/video/videobackend/opencv"
	"github.com/tauraamui/xerror"
)

const (
	BackendFFmpeg = "ffmpeg"
	BackendOpenCV = "opencv"
	BackendMock   = "mock"
)

// ResolveBackend maps a configured backend name onto its implementation.
// An empty name picks ffmpeg.
func ResolveBackend(name, ffmpegExecutable string) (videobackend.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendFFmpeg:
		return videobackend.FFmpeg(ffmpegExecutable), nil
	case BackendOpenCV:
		return opencv.New(), nil
	case BackendMock:
		return videobackend.Mock(), nil
	}
	return nil, xerror.Errorf("%w: %s", videobackend.ErrUnsupportedBackend, name)
}
