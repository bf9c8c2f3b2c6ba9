// Package api implements the HTTP handlers for the analysis task pipeline.
//
// Submission is asynchronous: POST /analyze stores the document, creates a
// task and returns 202 with the task ID. Clients poll GET /task/{id} for
// status and GET /task/{id}/result for the settled result. Error responses
// carry sanitized messages; the raw errors only appear in logs, correlated
// by trace ID.
package api
