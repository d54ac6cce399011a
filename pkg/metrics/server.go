package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tauraamui/framerelay/pkg/log"
)

type Config struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port" validate:"gte=0 & lte=65535"`
	URLPrefix string `json:"url_prefix"`
}

type Server struct {
	conf   Config
	server *http.Server
}

func NewServer(conf Config) *Server {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath(conf), promhttp.Handler())
	return &Server{
		conf: conf,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.Port),
			Handler: mux,
		},
	}
}

func MetricsPath(conf Config) string {
	return fmt.Sprintf("%s/metrics", conf.URLPrefix)
}

func (s *Server) Run() {
	if !s.conf.Enabled {
		return
	}
	log.Info("Prometheus metrics are enabled at %s%s", s.server.Addr, MetricsPath(s.conf))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if !s.conf.Enabled {
		return nil
	}
	log.Info("Shutting down metrics server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) String() string {
	return fmt.Sprintf("metrics::%s:%d", s.conf.URLPrefix, s.conf.Port)
}
