// Package gemini implements the analysis.Engine interface using Google's
// Gemini API. It sends the document content inline alongside a templated
// prompt, requests a structured JSON response, and retries transient API
// failures with exponential backoff.
package gemini
