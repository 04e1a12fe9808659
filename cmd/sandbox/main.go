// Command sandbox runs a local wallet service for development. Point the app at
// it with PARA_BASE_URL=http://localhost:8090.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mobil3/walletauth/client"
	"github.com/mobil3/walletauth/internal/config"
	"github.com/mobil3/walletauth/internal/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	s := &sandbox.Server{
		Env:          cfg.Environment(),
		JWTSecretKey: cfg.SandboxJWTSecret,
		Logger:       logger,
	}
	if cfg.APIKey != client.PlaceholderAPIKey {
		s.APIKey = cfg.APIKey
	}
	if s.APIKey == "" {
		logger.Warn("PARA_API_KEY is not set; accepting any API key")
	}
	s.EnsureDefaults()

	srv := &http.Server{
		Addr:              cfg.SandboxAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("sandbox wallet service listening", "addr", cfg.SandboxAddr, "env", cfg.Environment())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down sandbox...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
