// Command server runs the memvault JSON-RPC-over-SSE server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/memvault/memvault/internal/config"
	"github.com/memvault/memvault/internal/infrastructure/logging"
	"github.com/memvault/memvault/internal/infrastructure/server"
	"github.com/memvault/memvault/internal/usecases/memory"
)

const (
	serverName    = "memvault"
	serverVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", os.Getenv("MEMVAULT_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	clock := clockwork.NewRealClock()

	store := memory.NewService(clock, logger)
	registry := server.NewRegistry(server.RegistryConfig{
		Clock:         clock,
		Logger:        logger,
		QueueCapacity: cfg.QueueCapacity,
		SessionTTL:    cfg.SessionTTL,
	})
	dispatcher := server.NewDispatcher(registry, clock, cfg.HeartbeatInterval, logger)
	processor := server.NewProcessor(server.ProcessorConfig{
		Tools:     store.Tools(),
		Methods:   store.Methods(),
		Resources: store,
		Prompts:   store,
		Info:      server.ServerInfo{Name: serverName, Version: serverVersion},
		Logger:    logger,
	})
	transport := server.NewTransport(registry, dispatcher, processor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.RunReaper(ctx, cfg.ReapInterval)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: transport.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown did not complete cleanly", logging.Fields{"err": err.Error()})
		}
	}()

	logger.Info("server listening", logging.Fields{
		"addr":               cfg.Addr,
		"heartbeat_interval": cfg.HeartbeatInterval.String(),
		"session_ttl":        cfg.SessionTTL.String(),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", logging.Fields{"err": err.Error()})
	}
	logger.Info("server stopped")
}
