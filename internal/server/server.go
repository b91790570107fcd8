// Package server is the HTTP surface of the CareVoice gateway: the
// per-connection voice WebSocket at /v1/session, the Prometheus /metrics
// endpoint, and the health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/carevoice/carevoice/internal/health"
	"github.com/carevoice/carevoice/internal/observe"
	"github.com/carevoice/carevoice/internal/voice"
	"github.com/carevoice/carevoice/pkg/provider/tts"
)

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// SessionFactory builds a voice session for one WebSocket connection.
// observer receives session events to forward to the client; sink receives
// synthesized speech to stream back as binary frames.
type SessionFactory func(observer voice.Observer, sink tts.Sink) *voice.Session

// Config wires the Server's collaborators.
type Config struct {
	// ListenAddr is the TCP address to listen on. Default: ":8080".
	ListenAddr string

	// NewSession creates the per-connection voice session. Required.
	NewSession SessionFactory

	// Health serves /healthz and /readyz when set.
	Health *health.Handler

	// Metrics maintains the active-session gauge when set.
	Metrics *observe.Metrics
}

// Server hosts the gateway's HTTP endpoints. Create with [New], run with
// [Server.Run].
type Server struct {
	http       *http.Server
	newSession SessionFactory
	metrics    *observe.Metrics
}

// New creates a Server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.NewSession == nil {
		return nil, errors.New("server: Config.NewSession is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	s := &Server{
		newSession: cfg.NewSession,
		metrics:    cfg.Metrics,
	}

	mux := http.NewServeMux()
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/session", s.handleSession)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler exposes the server's routes for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains connections and returns.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
