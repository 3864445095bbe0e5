package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"windows-mcp-server/internal/config"
	"windows-mcp-server/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// Run starts the configured transport and blocks until the context is
// cancelled, an interrupt arrives, or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	t, err := s.buildTransport()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- t.Start(sigCtx)
	}()

	s.logger.Info("server running",
		"transport", s.cfg.Server.Transport,
		"sandbox", s.sandbox.Enabled(),
		"auth_required", s.cfg.Security.RequireAuth)

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		s.logger.Info("shutdown signal received")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.Stop(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) buildTransport() (transport.Transport, error) {
	addr := transport.Addr(s.cfg.Server.Host, s.cfg.Server.Port)
	switch s.cfg.Server.Transport {
	case config.TransportStdio:
		return transport.NewStdioTransport(s.HandleMessage, s.cfg.Server.MaxConcurrentRequests, s.logger), nil
	case config.TransportHTTP:
		return transport.NewHTTPTransport(addr, s.HandleMessage, s.auth, s.logger), nil
	case config.TransportWebSocket:
		return transport.NewWebSocketTransport(addr, s.HandleMessage, s.auth, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", s.cfg.Server.Transport)
	}
}
