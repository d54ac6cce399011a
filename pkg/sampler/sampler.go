// Package sampler republishes ingest frames into display buffers at a
// fixed rate, independent of how fast each camera delivers them.
package sampler

import (
	"context"
	"time"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/framerelay/pkg/process"
	"github.com/tauraamui/framerelay/pkg/ringbuffer"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

const (
	DefaultFrequency = 30
	DefaultPeriod    = time.Second / DefaultFrequency
)

// PeriodFromFrequency converts a rate in Hz to the sampling period.
func PeriodFromFrequency(hz int) time.Duration {
	if hz <= 0 {
		return DefaultPeriod
	}
	return time.Second / time.Duration(hz)
}

// Sampler is the only reader of ingest buffers and the only writer of
// display buffers.
type Sampler struct {
	ingest  *ringbuffer.Registry
	display *ringbuffer.Registry
	period  time.Duration
	proc    process.Process
}

func New(ingest, display *ringbuffer.Registry, period time.Duration) *Sampler {
	if period <= 0 {
		period = DefaultPeriod
	}
	s := Sampler{ingest: ingest, display: display, period: period}
	s.proc = process.New(process.Settings{
		WaitForShutdownMsg: "Stopping frame sampler...",
		Process:            s.loop,
	})
	return &s
}

func (s *Sampler) Period() time.Duration { return s.period }

func (s *Sampler) Start() {
	log.Debug("Starting frame sampler every %s", s.period)
	s.proc.Setup().Start()
}

func (s *Sampler) Stop() { s.proc.Stop() }
func (s *Sampler) Wait() { s.proc.Wait() }

func (s *Sampler) loop(ctx context.Context) []chan interface{} {
	stopped := make(chan interface{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sample()
			}
		}
	}()
	return []chan interface{}{stopped}
}

type sampled struct {
	id    string
	frame videoframe.Frame
}

// Sample runs one cycle: at most one frame is taken from each ingest
// buffer and written to the display buffer of the same source. It returns
// the number of frames republished. Failures are logged and never end
// the cycle for other sources.
func (s *Sampler) Sample() (republished int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SamplerFaults.Inc()
			log.Error("Sampling cycle aborted: %v", r)
		}
	}()

	var batch []sampled
	for id, buf := range s.ingest.GetAll() {
		frame, ok, err := buf.ReadFrame()
		if err != nil {
			// deleted between GetAll and the read
			if !ringbuffer.IsClosed(err) {
				log.Warn("Unable to sample frame from [%s]: %v", id, err)
			}
			continue
		}
		if !ok {
			continue
		}
		batch = append(batch, sampled{id: id, frame: frame})
	}

	for _, smp := range batch {
		dst, ok := s.display.Get(smp.id)
		if !ok {
			continue
		}
		if err := dst.WriteFrame(smp.frame); err != nil {
			if !ringbuffer.IsClosed(err) {
				log.Warn("Unable to republish frame for [%s]: %v", smp.id, err)
			}
			continue
		}
		republished++
	}
	metrics.SamplerCycles.Inc()
	return republished
}
