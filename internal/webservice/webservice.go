// Package webservice provides the HTTP server of the moderation demo: its pages, the analysis API and the metrics endpoint.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/dashboard"
	"github.com/ubuntu/ubuntu-moderation/internal/handoff"
	"github.com/ubuntu/ubuntu-moderation/internal/metrics"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/handlers"
	webmetrics "github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/middleware"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long the rate limiter of an idle client is kept.
const limiterIdleTTL = 10 * time.Minute

// Server is a struct that holds the HTTP servers and its configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	dash          dashboard.Source

	mu          sync.RWMutex
	primaryAddr net.Addr

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	MaxHeaderBytes int           `mapstructure:"max-header-bytes"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`

	ListenHost string `mapstructure:"listen-host"`
	ListenPort int    `mapstructure:"listen-port"`

	MetricsHost string `mapstructure:"metrics-host"`
	MetricsPort int    `mapstructure:"metrics-port"`

	// RateLimit is the number of submissions per second allowed per client. Zero disables the limit.
	RateLimit float64 `mapstructure:"rate-limit"`
	RateBurst int     `mapstructure:"rate-burst"`
}

// watcher is implemented by dashboard sources which reload themselves.
type watcher interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
}

type options struct {
	registry *prometheus.Registry
	store    *handoff.Store
}

// Options represents an optional function to override Server default values.
type Options func(*options)

// WithRegistry sets the registry the server metrics are gathered from.
func WithRegistry(reg *prometheus.Registry) Options {
	return func(o *options) {
		o.registry = reg
	}
}

// WithHandoff sets the store results are handed off through.
func WithHandoff(store *handoff.Store) Options {
	return func(o *options) {
		o.store = store
	}
}

// New creates a new Server serving the dashboard of dash and sending submissions to client.
func New(ctx context.Context, dash dashboard.Source, client analysis.Client, sc StaticConfig, args ...Options) (*Server, error) {
	opts := options{}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.registry == nil {
		opts.registry = prometheus.NewRegistry()
		opts.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if opts.store == nil {
		opts.store = handoff.New(handoff.DefaultTTL)
	}

	pages, err := handlers.NewPages()
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		dash:   dash,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	client = analysis.Instrumented(client, opts.registry)
	endpoint := webmetrics.NewEndpointMiddleware(opts.registry)
	limit := func(h http.Handler) http.Handler { return h }
	if sc.RateLimit > 0 {
		limit = middleware.New(rate.Limit(sc.RateLimit), sc.RateBurst, limiterIdleTTL).RateLimitMiddleware
	}

	upload := handlers.NewUpload(pages, client, opts.store, sc.MaxUploadBytes)
	results := handlers.NewResults(pages, opts.store)
	dashboardHandler := handlers.NewDashboard(pages, dash)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", endpoint.Wrap("landing", handlers.NewLanding(pages)))
	mux.Handle("GET /upload", endpoint.Wrap("upload_form", http.HandlerFunc(upload.Form)))
	mux.Handle("POST /upload", limit(endpoint.Wrap("upload_submit", http.HandlerFunc(upload.Submit))))
	mux.Handle("GET /results", endpoint.Wrap("results_empty", results))
	mux.Handle("GET /results/{id}", endpoint.Wrap("results", results))
	mux.Handle("GET /dashboard", endpoint.Wrap("dashboard", dashboardHandler))
	mux.Handle("GET /api/dashboard", endpoint.Wrap("dashboard_api", http.HandlerFunc(dashboardHandler.API)))
	mux.Handle("POST "+analysis.AnalyzePath, limit(endpoint.Wrap("analyze", handlers.NewAnalyze(client, sc.MaxUploadBytes))))
	mux.Handle("GET /version", endpoint.Wrap("version", http.HandlerFunc(handlers.VersionHandler)))

	handler := webmetrics.NewMuxMiddleware(opts.registry).Wrap("mux", mux)
	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(handler, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = metrics.New(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, opts.registry)

	return &s, nil
}

// Run starts the HTTP servers and listens for incoming requests until Quit is called or a server fails.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	var watchErr <-chan error
	if w, ok := s.dash.(watcher); ok {
		var err error
		if _, watchErr, err = w.Watch(s.gracefulCtx); err != nil {
			return fmt.Errorf("failed to start watching dashboard snapshot: %v", err)
		}
	}

	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.primaryAddr = l.Addr()
	s.mu.Unlock()

	ml, err := s.metricsServer.Listen()
	if err != nil {
		l.Close()
		return fmt.Errorf("failed to listen for metrics: %v", err)
	}
	slog.Info("Serving", "addr", l.Addr().String(), "metrics_addr", ml.Addr().String())

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		if err := s.metricsServer.Serve(ml); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()

	for {
		select {
		case <-s.gracefulCtx.Done():
			slog.Info("Graceful shutdown initiated")
			// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
			err := errors.Join(s.httpServer.Shutdown(s.ctx), s.metricsServer.Shutdown(s.ctx))
			s.cancel()
			if err != nil {
				slog.Error("Graceful shutdown failed", "err", err)
				return err
			}
			slog.Info("Server shut down gracefully")
			return nil

		case err := <-serverErr:
			slog.Error("Server encountered error", "err", err)
			s.closeServers()
			s.cancel()
			return err

		case err, ok := <-watchErr:
			if !ok {
				// The watcher stops when shutting down.
				watchErr = nil
				continue
			}
			slog.Error("Dashboard watcher encountered unrecoverable error", "err", err)
			errC := s.closeServers()
			s.cancel()
			return errors.Join(err, errC)
		}
	}
}

// Quit shuts down the HTTP servers, gracefully unless force is set.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.closeServers()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// PrimaryAddr returns the address the server is listening on, or nil before Run binds it.
func (s *Server) PrimaryAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primaryAddr
}

// MetricsAddr returns the address the metrics server is listening on, or an empty string before Run binds it.
func (s *Server) MetricsAddr() string {
	return s.metricsServer.Addr()
}

func (s *Server) closeServers() error {
	return errors.Join(s.httpServer.Close(), s.metricsServer.Close())
}
