package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/p2pcore/internal/config"
	"github.com/congo-pay/p2pcore/internal/infra"
	"github.com/congo-pay/p2pcore/internal/logging"
	"github.com/congo-pay/p2pcore/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName, cfg.AppEnv)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	// base is cancelled after the listener drains. Transfers still awaiting a
	// PIN fail as cancelled; submitted ones finish on their own context and
	// stay journaled for reconciliation.
	base, stopBase := context.WithCancel(context.Background())
	defer stopBase()

	stores, err := infra.Open(base, cfg, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close(logger)

	srv, err := server.New(base, cfg, stores, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	go srv.RunMaintenance(base)

	signals, stopSignals := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Listen() }()

	select {
	case <-signals.Done():
		logger.Info("shutdown signal received")
	case err := <-listenErr:
		if err != nil {
			return err
		}
		return errors.New("listener exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
