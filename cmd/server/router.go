package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/finsight/finsight-api/internal/api"
	"github.com/finsight/finsight-api/internal/api/middleware"
	"github.com/finsight/finsight-api/internal/config"
	"github.com/finsight/finsight-api/internal/service"
)

// buildRouter assembles the HTTP routing table and middleware chain.
func buildRouter(analysisService service.AnalysisService, cfg config.ServerConfig) http.Handler {
	handler := api.NewAnalysisHandler(analysisService)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))

	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}
	if len(corsOptions.AllowedOrigins) == 0 {
		corsOptions.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.New(corsOptions).Handler)

	r.Post("/analyze", handler.SubmitAnalysis)
	r.Get("/task/{id}", handler.GetTask)
	r.Get("/task/{id}/result", handler.GetTaskResult)
	r.Get("/results", handler.ListTasks)
	r.Delete("/task/{id}", handler.DeleteTask)
	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
