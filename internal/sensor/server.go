package sensor

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

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"procodus.dev/lab-services/pkg/events"
	"procodus.dev/lab-services/pkg/generator"
	"procodus.dev/lab-services/pkg/logger"
	"procodus.dev/lab-services/pkg/metrics"
	"procodus.dev/lab-services/pkg/serial"
)

// ServerConfig holds the configuration for the sensor Server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// HTTPPort is the port the HTTP API listens on
	HTTPPort int
	// ConfigDir holds the {sensor_id}_config.json files. It is created if absent.
	ConfigDir string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	// Source is SourceSimulated (the default) or SourceSerial.
	Source string
	// Generator backs the simulated source. Defaults to a room temperature generator.
	Generator *generator.Temperature
	// Opener enables the background serial reader. A nil Opener disables it.
	Opener serial.Opener
	// ReaderBackOff overrides the reader's reconnect policy.
	ReaderBackOff func() backoff.BackOff

	// Publisher receives config change events. Defaults to events.Nop.
	Publisher events.Publisher

	// Optional Prometheus metrics.
	Metrics     *metrics.SensorMetrics
	HTTPMetrics *metrics.HTTPMetrics
	// Gatherer backs GET /metrics. Defaults to metrics.Registry.
	Gatherer prometheus.Gatherer
}

// Server is the sensor HTTP server and its background reader.
type Server struct {
	logger      *slog.Logger
	config      *ServerConfig
	httpServer  *http.Server
	configs     *ConfigStore
	source      Source
	slot        *Slot
	reader      *Reader
	publisher   events.Publisher
	metrics     *metrics.SensorMetrics
	httpMetrics *metrics.HTTPMetrics
	gatherer    prometheus.Gatherer

	readerCancel context.CancelFunc
	readerWG     sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a new sensor Server and its config directory.
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

	if cfg.ConfigDir == "" {
		return nil, errors.New("config directory cannot be empty")
	}

	sourceName := cfg.Source
	if sourceName == "" {
		sourceName = SourceSimulated
	}
	if err := ValidateSource(sourceName); err != nil {
		return nil, err
	}
	if sourceName == SourceSerial && cfg.Opener == nil {
		return nil, errors.New("serial source requires a serial port")
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	configs, err := NewConfigStore(fsys, cfg.ConfigDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:      cfg.Logger,
		config:      cfg,
		configs:     configs,
		slot:        &Slot{},
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		httpMetrics: cfg.HTTPMetrics,
		gatherer:    cfg.Gatherer,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}

	if cfg.Opener != nil {
		s.reader, err = NewReader(ReaderConfig{
			Logger:     logger.ForComponent(cfg.Logger, "serial-reader"),
			Opener:     cfg.Opener,
			Slot:       s.slot,
			NewBackOff: cfg.ReaderBackOff,
			Metrics:    cfg.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create serial reader: %w", err)
		}
	}

	switch sourceName {
	case SourceSerial:
		s.source = NewSlotSource(s.slot)
	default:
		s.source = NewSimulatedSource(cfg.Generator)
	}

	return s, nil
}

// Handler returns the routed HTTP handler, wrapped with request metrics when configured.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()
	if s.httpMetrics != nil {
		return s.httpMetrics.Middleware(mux)
	}
	return mux
}

// Slot returns the last-reading slot fed by the background reader.
func (s *Server) Slot() *Slot {
	return s.slot
}

// ReaderStatus reports the background reader's health.
func (s *Server) ReaderStatus() ReaderStatus {
	if s.reader == nil {
		return ReaderStatus{State: StateDisabled}
	}
	return s.reader.Status()
}

// StartReader launches the background reader if one is configured.
// It is called by Run and is a no-op on subsequent calls.
func (s *Server) StartReader(ctx context.Context) {
	if s.reader == nil || s.readerCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.readerCancel = cancel

	s.readerWG.Add(1)
	go func() {
		defer s.readerWG.Done()
		if err := s.reader.Run(ctx); err != nil {
			s.logger.Error("serial reader exited", "error", err)
		}
	}()
}

// Run starts the reader and the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting sensor server",
		"config_dir", s.configs.Dir(),
		"source", s.source.Name(),
		"reader_enabled", s.reader != nil,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.StartReader(ctx)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

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

// Shutdown stops the HTTP server, the reader and the event publisher.
// Calls after the first return the first call's result.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down sensor server")

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

	if s.readerCancel != nil {
		s.readerCancel()
		s.readerWG.Wait()
	}

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("failed to close event publisher", "error", err)
		errs = append(errs, fmt.Errorf("event publisher close error: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("sensor server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("sensor server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))

	mux.HandleFunc("GET /sensors", s.handleList)
	mux.HandleFunc("GET /sensor/{id}", s.handleRead)
	mux.HandleFunc("POST /sensor/{id}", s.handleCreate)
	mux.HandleFunc("PUT /sensor/{id}", s.handleUpdateByID)
	mux.HandleFunc("PUT /sensor/{id}/{config_file}", s.handleUpdateFile)

	return mux
}
