package main

import (
	"database/sql"
	"log/slog"

	"github.com/finsight/finsight-api/internal/platform/postgres"
	"github.com/finsight/finsight-api/internal/store"
)

// newTaskStore builds the Postgres-backed task store. The worker never runs
// migrations; the server binary owns the schema.
func newTaskStore(db *sql.DB, logger *slog.Logger) store.TaskStore {
	return postgres.NewPostgresTaskStore(db, logger)
}
