package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/logger"
)

// ListenAndServe serves the API on addr until Shutdown is called.
// It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithHintf(errors.Wrapf(err, "failed to listen on %s", addr),
			"set server.port in am.toml or pass --port to use another port")
	}
	return s.Serve(ln)
}

// Serve serves the API on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldAddress, ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// Shutdown stops accepting requests, closes WebSocket clients and waits for
// server goroutines, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "HTTP server shutdown")
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("Server stopped")
	case <-ctx.Done():
		s.logger.Warnw("Server shutdown timed out waiting for goroutines")
		if shutdownErr == nil {
			shutdownErr = errors.Mark(errors.New("server shutdown timed out"), errors.ErrTimeout)
		}
	}
	return shutdownErr
}
