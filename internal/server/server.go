package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vtgofer/internal/batcher"
	"vtgofer/internal/config"
	"vtgofer/internal/fields"
	"vtgofer/internal/metrics"
	"vtgofer/internal/vt"
	"vtgofer/internal/ws"
)

// breakerStater is implemented by transports that sit behind a circuit breaker
type breakerStater interface {
	BreakerState() string
}

// Server owns the lookup source and the HTTP surface in front of it
type Server struct {
	cfg        *config.Config
	fields     *fields.MemoryRegistry
	layout     *vt.Layout
	transport  batcher.Transport
	source     *batcher.Source
	registry   *prometheus.Registry
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates a Server querying the configured VirusTotal endpoint
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	client := vt.NewClient(vt.ClientConfig{
		URL:            cfg.VirusTotal.URL,
		APIKey:         cfg.VirusTotal.Key,
		RequestTimeout: cfg.VirusTotal.GetRequestTimeoutDuration(),
		MinInterval:    cfg.VirusTotal.GetFlushInterval(),
		CircuitBreaker: vt.CircuitBreakerConfig{
			Enabled:          cfg.VirusTotal.CircuitBreaker.Enabled,
			FailureThreshold: cfg.VirusTotal.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  cfg.VirusTotal.CircuitBreaker.GetRecoveryTimeoutDuration(),
		},
		Logger: logger,
	})
	return NewWithTransport(cfg, client, logger)
}

// NewWithTransport creates a Server using transport for batch queries
func NewWithTransport(cfg *config.Config, transport batcher.Transport, logger zerolog.Logger) (*Server, error) {
	reg := fields.NewMemoryRegistry()
	layout, err := vt.NewLayout(reg, cfg.VirusTotal.GetDataSources())
	if err != nil {
		return nil, fmt.Errorf("failed to build field layout: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	src, err := batcher.NewSource(&cfg.VirusTotal, transport, layout, metrics.New(promReg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	logger.Info().
		Strs("vendors", cfg.VirusTotal.GetDataSources()).
		Int("fields", reg.Len()).
		Strs("contentTypes", cfg.VirusTotal.GetContentTypes()).
		Dur("flushInterval", cfg.VirusTotal.GetFlushInterval()).
		Msg("virustotal source configured")

	return &Server{
		cfg:       cfg,
		fields:    reg,
		layout:    layout,
		transport: transport,
		source:    src,
		registry:  promReg,
		logger:    logger,
	}, nil
}

// Handler returns the HTTP router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/vtapi/v2/file/report", s.handleReport).Methods("GET")
	router.HandleFunc("/lookup", s.handleLookup).Methods("GET")
	router.Handle("/ws", ws.NewHandler(s.source, s.logger))

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

// Start starts the dispatcher and the HTTP listener
func (s *Server) Start(ctx context.Context) error {
	s.source.Start(ctx)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", s.cfg.Addr()).
			Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.logger.Info().
		Str("report", fmt.Sprintf("http://%s/vtapi/v2/file/report", s.cfg.Addr())).
		Str("ws", fmt.Sprintf("ws://%s/ws", s.cfg.Addr())).
		Msg("endpoint available")

	return nil
}

// Stop shuts down the listener, then flushes and resolves every pending lookup
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	s.source.Stop(ctx)

	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

// Source returns the lookup source
func (s *Server) Source() *batcher.Source {
	return s.source
}

// Layout returns the field layout
func (s *Server) Layout() *vt.Layout {
	return s.layout
}

// writeTimeout leaves room for a blocking lookup to wait out a full flush
func (s *Server) writeTimeout() time.Duration {
	d := s.cfg.GetDebugTimeoutDuration()
	if flush := s.cfg.VirusTotal.GetFlushInterval(); flush > d {
		d = flush
	}
	return d + 30*time.Second
}
