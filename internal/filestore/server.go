// Package filestore serves CRUD operations over text files in one directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"procodus.dev/lab-services/pkg/events"
	"procodus.dev/lab-services/pkg/metrics"
)

// Server represents the file store HTTP server.
type Server struct {
	logger       *slog.Logger
	httpServer   *http.Server
	store        *Store
	publisher    events.Publisher
	metrics      *metrics.FileStoreMetrics
	httpMetrics  *metrics.HTTPMetrics
	gatherer     prometheus.Gatherer
	config       *ServerConfig
	shutdownOnce sync.Once
	shutdownErr  error
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	// BaseDir holds every managed file. It is created if absent.
	BaseDir string

	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	// Clock names files created without a name. Defaults to time.Now.
	Clock func() time.Time

	// Publisher receives change events. Defaults to events.Nop.
	Publisher events.Publisher

	// Optional Prometheus metrics.
	Metrics     *metrics.FileStoreMetrics
	HTTPMetrics *metrics.HTTPMetrics
	// Gatherer backs GET /metrics. Defaults to metrics.Registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates a new file store Server and its base directory.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.BaseDir == "" {
		return nil, errors.New("base directory cannot be empty")
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	var opts []StoreOption
	if cfg.Clock != nil {
		opts = append(opts, WithClock(cfg.Clock))
	}

	store, err := NewStore(fsys, cfg.BaseDir, opts...)
	if err != nil {
		return nil, err
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Server{
		logger:      cfg.Logger,
		store:       store,
		publisher:   publisher,
		metrics:     cfg.Metrics,
		httpMetrics: cfg.HTTPMetrics,
		gatherer:    cfg.Gatherer,
		config:      cfg,
	}, nil
}

// Handler returns the routed HTTP handler, wrapped with request metrics when configured.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()
	if s.httpMetrics != nil {
		return s.httpMetrics.Middleware(mux)
	}
	return mux
}

// Run starts the file store server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting file store server", "base_dir", s.store.BaseDir())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			_ = s.Shutdown()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the HTTP server and the event publisher.
// Calls after the first return the first call's result.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down file store server")

	var errs []error

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
		s.logger.Info("HTTP server stopped")
	}

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("failed to close event publisher", "error", err)
		errs = append(errs, fmt.Errorf("event publisher close error: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("file store server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("file store server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))

	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("POST /files", s.handleCreate)
	mux.HandleFunc("PUT /files", s.handleCreateNamed)
	mux.HandleFunc("GET /files/{name}", s.handleRead)
	mux.HandleFunc("PUT /files/{name}", s.handleUpdate)
	mux.HandleFunc("DELETE /files/{name}", s.handleDelete)

	return mux
}
