// Package main implements the entry point for the finsight API server,
// which accepts financial documents for asynchronous AI analysis and serves
// task status and results.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, *migrateOnly)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if *migrateOnly {
		slog.Info("migrations applied, exiting")
		app.Close()
		return
	}

	if err := app.Run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		app.Close()
		os.Exit(1)
	}
	app.Close()
}
