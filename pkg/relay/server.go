// Package relay wires configured sources, the sampler and the metrics
// endpoint into one server the daemon runs.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tauraamui/framerelay/pkg/configdef"
	"github.com/tauraamui/framerelay/pkg/ingest"
	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/framerelay/pkg/sampler"
	"github.com/tauraamui/framerelay/pkg/shm"
	"github.com/tauraamui/framerelay/pkg/source"
	"github.com/tauraamui/framerelay/pkg/video"
	"github.com/tauraamui/framerelay/pkg/video/videobackend"
	"github.com/tauraamui/xerror"
)

const metricsShutdownTimeout = 5 * time.Second

var allocator = shm.Default

type Server struct {
	config       configdef.Values
	sources      *source.Registry
	sampler      *sampler.Sampler
	metrics      *metrics.Server
	mu           sync.Mutex
	titles       map[string]string
	closed       bool
	shutdownOnce sync.Once
	shutdownDone chan interface{}
}

// NewServer loads configuration from cr. A nil backend is resolved from
// the configured video backend.
func NewServer(cr configdef.Resolver, backend videobackend.Backend) (*Server, error) {
	config, err := cr.Resolve()
	if err != nil {
		return nil, err
	}

	if backend == nil {
		backend, err = video.ResolveBackend(config.VideoBackend, config.FFmpegExecutable)
		if err != nil {
			return nil, err
		}
	}
	log.Info("Decoding sources with %s backend", backend.Name())

	sources := source.NewRegistry(source.Settings{
		Backend:   backend,
		Allocator: allocator(),
		SlotCount: config.SlotCount,
	})

	return &Server{
		config:       config,
		sources:      sources,
		sampler:      sampler.New(sources.Ingest(), sources.Display(), sampler.PeriodFromFrequency(config.ProcessFrequency)),
		metrics:      metrics.NewServer(config.Metrics),
		titles:       map[string]string{},
		shutdownDone: make(chan interface{}),
	}, nil
}

func (s *Server) Config() configdef.Values { return s.config }

// Sources is the registry the orchestration layer drives.
func (s *Server) Sources() *source.Registry { return s.sources }

// SourceID returns the id of the configured source with the given title.
func (s *Server) SourceID(title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.titles[title]
	return id, ok
}

func (s *Server) Connect() []error {
	return s.ConnectWithCancel(context.Background())
}

// ConnectWithCancel creates a source for every enabled configured source.
// Nothing is connected once shutdown has begun.
func (s *Server) ConnectWithCancel(cancel context.Context) []error {
	var errs []error

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Warn("Server is shutting down, not connecting sources")
		return errs
	}
	for _, src := range s.config.Sources {
		select {
		case <-cancel.Done():
			return errs
		default:
			if src.Disabled {
				log.Warn("Source [%s] is disabled... skipping...", src.Title)
				continue
			}

			log.Info("Connecting to source: [%s]...", src.Title)
			id, err := s.sources.CreateSource(sourceParams(src))
			if err != nil {
				errs = append(errs, xerror.Errorf("unable to connect to source [%s]: %w", src.Title, err))
				continue
			}

			for title, existing := range s.titles {
				if existing == id {
					log.Warn("Source [%s] reads the same camera as [%s]", src.Title, title)
				}
			}
			s.titles[src.Title] = id
			log.Info("Connected source [%s] as [%s]", src.Title, id)
		}
	}
	return errs
}

func sourceParams(src configdef.Source) source.Params {
	return source.Params{
		Conn: ingest.Params{
			Username: src.Username,
			Password: src.Password,
			IP:       src.IP,
			Port:     src.Port,
			Path:     src.Path,
		},
		Width:  src.VideoWidth,
		Height: src.VideoHeight,
		BPP:    src.BytesPerPixel,
	}
}

// RunProcesses starts the sampler and, when enabled, the metrics endpoint.
// It does nothing once shutdown has begun.
func (s *Server) RunProcesses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Warn("Server is shutting down, not starting processes")
		return
	}
	s.sampler.Start()
	s.metrics.Run()
}

func (s *Server) shutdown() {
	var result *multierror.Error

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.sampler.Stop()
	s.sampler.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := s.metrics.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	log.Info("Closing sources...")
	if err := s.sources.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Error("Safe shutdown unsuccessful: %v", err)
	}
	close(s.shutdownDone)
}

// Shutdown stops everything the server runs. The returned channel is
// closed once every source has been released.
func (s *Server) Shutdown() chan interface{} {
	s.shutdownOnce.Do(func() {
		go s.shutdown()
	})
	return s.shutdownDone
}
