// Package server runs the armord daemon: it loads the profile set, wires
// the engine to its HTTP surface, and supervises reload watching and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/armord/armord/internal/api"
	"github.com/armord/armord/internal/config"
	"github.com/armord/armord/internal/events"
	"github.com/armord/armord/internal/metrics"
	"github.com/armord/armord/internal/policy"
)

type Server struct {
	cfg        *config.Config
	manager    *policy.Manager
	broker     *events.Broker
	httpServer *http.Server
	ln         net.Listener
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	broker := events.NewBroker()
	collector := metrics.New()
	manager := policy.NewManager(cfg.Profiles.Dir, cfg.Profiles.AbstractionsDir, broker, collector)
	if err := manager.Reload(); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if manager.Snapshot().Len() == 0 {
		slog.Warn("no profiles loaded; every confined operation will be denied", "dir", cfg.Profiles.Dir)
	}

	engine := policy.NewEngine(broker, collector)
	app := api.NewApp(cfg, manager, engine, broker, collector)

	s := &Server{
		cfg:     cfg,
		manager: manager,
		broker:  broker,
		httpServer: &http.Server{
			Handler:      app.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	return s, nil
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	s.ln = ln
	slog.Info("armord listening", "addr", ln.Addr().String(), "profiles", s.manager.Snapshot().Len())

	if s.cfg.Profiles.Watch {
		go func() {
			if err := s.manager.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("profile watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, for tests that listen on :0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 5 * time.Second
}
