package ingest

import (
	"context"
	"time"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

// ClockSource reports the wall clock time of a camera, used to turn stream
// relative presentation times into absolute timestamps.
type ClockSource interface {
	DeviceTime(ctx context.Context) (time.Time, error)
}

var now = time.Now

// stamper assigns the absolute millisecond timestamp of each decoded
// chunk. The device epoch is resolved once per run, from the first chunk
// carrying a presentation time.
type stamper struct {
	ctx      context.Context
	clock    ClockSource
	logger   log.Prefixed
	resolved bool
	synced   bool
	epoch    time.Time
}

func (s *stamper) timestamp(raw videoframe.Raw) int64 {
	if s.clock == nil || !raw.HasPTS {
		return now().UnixMilli()
	}

	if !s.resolved {
		s.resolved = true
		deviceTime, err := s.clock.DeviceTime(s.ctx)
		if err != nil {
			s.logger.Warn("Unable to read device time, using local clock: %v", err)
		} else {
			s.epoch = deviceTime.Add(-raw.PTS)
			s.synced = true
			s.logger.Debug("Resolved device epoch %s", s.epoch.Format(time.RFC3339Nano))
		}
	}

	if !s.synced {
		return now().UnixMilli()
	}
	return s.epoch.Add(raw.PTS).UnixMilli()
}
