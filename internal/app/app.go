// Package app wires configuration, logging, the hub, and the HTTP server
// together and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	server "formation/server"
	"formation/server/formations"
	servernet "formation/server/internal/net"
	loggingSinks "formation/server/logging/sinks"
)

const shutdownGrace = 2 * time.Second

type Config struct {
	// Port to listen on. Zero means: $PORT, then the default 3000.
	Port      int
	ClientDir string
	Logger    *log.Logger
}

func DefaultConfig() Config {
	return Config{ClientDir: "public"}
}

// Run starts the server and blocks until it fails or a termination signal
// arrives. On a signal every client gets a restart notice and the process
// lingers for a short grace period so the message can flush.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	// A missing .env is the normal case outside development.
	if err := godotenv.Load(); err == nil {
		logger.Printf("loaded environment from .env")
	}

	port := cfg.Port
	if port == 0 {
		port = portFromEnv(logger)
	}

	catalog, err := formations.Load()
	if err != nil {
		return fmt.Errorf("load formation catalog: %w", err)
	}

	hubCfg := server.DefaultHubConfig()
	hubCfg.Catalog = catalog
	hubCfg.Signer = server.NewSigner([]byte(os.Getenv("FORMATION_SECRET")))
	hubCfg.Publisher = loggingSinks.NewConsoleSink(os.Stdout)

	hub := server.NewHubWithConfig(hubCfg)
	stop := make(chan struct{})
	go hub.RunTurns(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir: cfg.ClientDir,
		Logger:    logger,
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}
	logger.Printf("server now listening on port %d...", port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Printf("received %s, announcing restart", sig)
		hub.BroadcastRestart()
		time.Sleep(shutdownGrace)
		srv.Close()
		return nil
	case <-ctx.Done():
		hub.BroadcastRestart()
		time.Sleep(shutdownGrace)
		srv.Close()
		return ctx.Err()
	}
}

func portFromEnv(logger *log.Logger) int {
	raw := os.Getenv("PORT")
	if raw == "" {
		return 3000
	}
	var port int
	if _, err := fmt.Sscanf(raw, "%d", &port); err != nil || port <= 0 {
		logger.Printf("invalid PORT=%q, falling back to 3000", raw)
		return 3000
	}
	return port
}
