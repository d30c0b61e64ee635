// Package server exposes the statusboard over HTTP: the WebSocket hub
// endpoint, configuration upload and a small read/write JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/statusboard/internal/hub"
)

type Server struct {
	log *slog.Logger
	cfg Config

	handler *Handler
	monitor *hub.Monitor

	httpSrv      *http.Server
	shutdownOnce sync.Once
}

func New(log *slog.Logger, cfg Config) (*Server, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h, err := NewHandler(log, cfg)
	if err != nil {
		return nil, err
	}
	monitor, err := hub.NewMonitor(hub.MonitorConfig{
		Hub:         h.Hub(),
		Logger:      log,
		Clock:       cfg.Clock,
		Interval:    cfg.PingInterval,
		MaxFailures: cfg.PingMaxFailures,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		log:     log,
		cfg:     cfg,
		handler: h,
		monitor: monitor,
	}, nil
}

// Handler returns the HTTP handler set of the server.
func (s *Server) Handler() *Handler { return s.handler }

func (s *Server) Start(ctx context.Context, cancel context.CancelFunc, listener net.Listener) <-chan error {
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.monitor.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		if err := s.Serve(ctx, listener); err != nil {
			s.log.Error("server exited with error", "error", err)
			errCh <- err
		} else {
			s.log.Info("server stopped")
		}
	}()

	go func() {
		wg.Wait()
		close(errCh)
	}()

	return errCh
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	s.handler.Register(mux)

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.httpSrv.RegisterOnShutdown(s.closePeers)

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.log.Info("server listening", "addr", listener.Addr().String())
	err := s.httpSrv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) closePeers() {
	s.handler.Hub().CloseAll()
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if s.httpSrv != nil {
			_ = s.httpSrv.Shutdown(ctx)
		}
	})
}
