package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/config"
	"github.com/congo-pay/p2pcore/internal/infra"
	"github.com/congo-pay/p2pcore/internal/routes"
)

// sweepAfter is how long a settled transfer handle stays addressable after
// it stopped changing.
const sweepAfter = time.Hour

// Server wraps the Fiber application and the services it drives.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	rt     *routes.Runtime
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// Transfers started over HTTP run under base and are cancelled with it.
func New(base context.Context, cfg config.Config, stores infra.Stores, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	rt, err := routes.Setup(app, routes.Deps{
		Cfg:    cfg,
		DB:     stores.DB,
		Cache:  stores.Cache,
		Logger: logger,
		Base:   base,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, rt: rt, logger: logger}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// RunMaintenance reconciles transfers left unsettled and evicts stale
// handles every ReconcileInterval until ctx ends.
func (s *Server) RunMaintenance(ctx context.Context) {
	interval := s.cfg.ReconcileInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maintain(ctx)
		}
	}
}

func (s *Server) maintain(ctx context.Context) {
	transfers := s.rt.Transfers
	settled, err := transfers.ReconcileUnsettled(ctx, s.cfg.ReconcileInterval, 100)
	if err != nil {
		s.logger.Warn("reconcile unsettled transfers", "error", err)
	}
	evicted := transfers.Registry().Sweep(time.Now().Add(-sweepAfter))
	if settled > 0 || evicted > 0 {
		s.logger.Info("transfer maintenance", "reconciled", settled, "evicted", evicted, "live", transfers.Registry().Len())
	}
}
