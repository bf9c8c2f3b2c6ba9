// Package analysis defines the core abstractions for AI-powered document
// analysis. It declares the Engine interface implemented by LLM-backed
// providers (see internal/platform/gemini) and the Loader interface for
// materializing stored documents, keeping the application core decoupled
// from any concrete AI service.
package analysis
