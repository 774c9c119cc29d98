package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key that tracks engine readiness.
const ServiceName = "whispercoreml.v1.Engine"

const (
	DefaultCheckInterval = 10 * time.Second
	DefaultStopTimeout   = 5 * time.Second
)

// Readiness reports whether the transcription engine can serve requests.
type Readiness interface {
	IsReady() bool
}

// Server exposes the standard gRPC health service driven by a Readiness.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	engine Readiness
	log    *slog.Logger

	interval    time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	serving bool
	refresh chan struct{}
}

// Option customises a Server.
type Option func(*Server)

// WithCheckInterval sets how often readiness is re-checked.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStopTimeout bounds the graceful stop before connections are cut.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// New returns a Server reporting NOT_SERVING until the first readiness check.
func New(engine Readiness, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		panic("server: engine must not be nil")
	}
	s := &Server{
		grpc:        grpc.NewServer(),
		health:      health.NewServer(),
		engine:      engine,
		log:         logger.With("component", "server"),
		interval:    DefaultCheckInterval,
		stopTimeout: DefaultStopTimeout,
		refresh:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	healthgrpc.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthgrpc.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh asks the serve loop to re-check readiness now.
func (s *Server) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Serving reports the last published readiness.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

// Serve answers health checks on lis until ctx is cancelled, then stops
// gracefully, forcing the stop after the configured timeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.checkOnce()

	done := make(chan struct{})
	defer close(done)
	go s.watch(ctx, done)

	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) watch(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.checkOnce()
		case <-s.refresh:
			s.checkOnce()
		case <-ctx.Done():
			s.stop()
			return
		}
	}
}

func (s *Server) stop() {
	s.log.Info("shutdown requested, stopping gRPC server")
	s.health.Shutdown()
	s.mu.Lock()
	s.serving = false
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(s.stopTimeout):
		s.log.Warn("graceful stop timed out, forcing stop")
		s.grpc.Stop()
	}
}

func (s *Server) checkOnce() {
	ready := s.engine.IsReady()

	s.mu.Lock()
	changed := ready != s.serving
	s.serving = ready
	s.mu.Unlock()

	if ready {
		s.setStatus(healthgrpc.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthgrpc.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		s.log.Info("engine readiness changed", "ready", ready)
	}
}

func (s *Server) setStatus(status healthgrpc.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
