package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const shutdownTimeout = 30 * time.Second

// Run starts the worker pool and HTTP server, then blocks until the context
// is canceled. Shutdown order matters: stop accepting requests first, then
// drain the workers so in-flight tasks settle before the queue closes.
func (a *application) Run(ctx context.Context) error {
	if err := a.pool.Recover(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	a.pool.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown incomplete", "error", err)
	}

	a.pool.Stop()
	return nil
}
