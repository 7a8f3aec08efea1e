package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhkarimi/chatrelay/internal/auth"
	"github.com/mhkarimi/chatrelay/internal/config"
	"github.com/mhkarimi/chatrelay/internal/logger"
	"github.com/mhkarimi/chatrelay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(false)
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logger.Init(cfg.Debug)

	// A missing signing secret is fatal for the whole listening service:
	// without it every connection would have to be rejected anyway.
	authenticator, err := auth.New(auth.Config{
		Secret:       cfg.Auth.Secret,
		Issuer:       cfg.Auth.Issuer,
		Audience:     cfg.Auth.Audience,
		StrictClaims: cfg.Auth.StrictClaims,
	})
	if err != nil {
		logger.Fatal("Failed to initialize authenticator", "error", err)
	}

	slog.Info("Starting chatrelay server",
		"policy", cfg.RoutingPolicy, "strict_claims", cfg.Auth.StrictClaims)

	hub := server.NewHub(cfg)
	go hub.Run()

	mux := server.SetupRoutes(hub, authenticator)
	httpServer := server.CreateServer(cfg.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("Server failed", "error", err)
		exitCode = 1
	}

	// Clients get the shutdown notice and a close frame before the
	// listener goes away.
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		slog.Warn("Hub shutdown incomplete", "error", err)
	}
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	slog.Info("Server gracefully stopped")
	os.Exit(exitCode)
}
