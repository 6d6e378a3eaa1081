// Package health serves the standard gRPC health service, tracking whether
// the quote worker is running on a healthy connection.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "quoterelay.QuoteWorker"

// Checker reports current health.
type Checker interface {
	Healthy() bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() bool

func (f CheckerFunc) Healthy() bool { return f() }

// Config holds health server settings.
type Config struct {
	Addr     string        // Listen address, e.g. ":9090"
	Interval time.Duration // How often health is re-evaluated (default: 2s)
}

// Server is a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	cfg     Config
	checker Checker
	logger  *slog.Logger

	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener

	mu      sync.Mutex
	serving bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer listens on cfg.Addr.
func NewServer(cfg Config, checker Checker, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	s := &Server{
		cfg:     cfg,
		checker: checker,
		logger:  logger.With("component", "grpc-health"),
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
		lis:     lis,
	}
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.set(false)
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Start serves in the background and keeps the status current.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("grpc server failed", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.watch(ctx)
	}()

	s.logger.Info("grpc health server started", "addr", s.lis.Addr().String())
	return nil
}

// Stop marks the service as shutting down and stops the server, forcing
// the stop if ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("grpc health server stopped")
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		return ctx.Err()
	}
}

// Refresh re-evaluates the checker now.
func (s *Server) Refresh() {
	s.set(s.checker.Healthy())
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

func (s *Server) set(ok bool) {
	s.mu.Lock()
	changed := s.serving != ok
	s.serving = ok
	s.mu.Unlock()

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)

	if changed {
		s.logger.Info("serving status changed", "status", status.String())
	}
}
