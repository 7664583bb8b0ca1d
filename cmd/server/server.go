package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahilrshah/productivity-app/internal/platform/metrics"
)

// run starts the background processor and the HTTP server, then blocks until
// shutdown completes.
func (app *application) run() error {
	metrics.MustRegister()

	app.hub.Start()
	app.processor.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case sig := <-shutdownCh:
		app.logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		app.logger.Error("server failed", "error", err)
		return err
	}

	// Stop taking requests first, then drain in-flight jobs, then drop the
	// websocket clients.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.processor.Stop()
	app.hub.Stop()

	app.logger.Info("server shutdown completed")
	return nil
}
