package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/finsight/finsight-api/internal/analysis"
	"github.com/finsight/finsight-api/internal/config"
)

// Engine implements the analysis.Engine interface using Google's Gemini API.
type Engine struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

var _ analysis.Engine = (*Engine)(nil)

// NewEngine creates a Gemini-backed analysis engine.
//
// It validates the configuration, parses the prompt template (the embedded
// default unless config.PromptTemplatePath points elsewhere) and initializes
// the API client. It returns analysis.ErrInvalidConfig when the configuration
// is unusable.
func NewEngine(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", analysis.ErrInvalidConfig)
	}

	promptTemplate, err := loadPromptTemplate(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			analysis.ErrInvalidConfig, err)
	}

	return &Engine{
		logger:         logger.With(slog.String("component", "gemini_engine")),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Analyze runs the query against the document via the Gemini API.
//
// The document content is attached inline, so the model reads the original
// bytes (PDFs included) rather than a lossy text extraction. The response is
// requested as JSON and parsed into an analysis.Report.
func (e *Engine) Analyze(ctx context.Context, doc *analysis.Document, query string) (*analysis.Report, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	if strings.TrimSpace(query) == "" {
		return nil, analysis.ErrEmptyQuery
	}

	prompt, err := renderPrompt(e.promptTemplate, query, doc.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrAnalysisFailed, err)
	}

	e.logger.DebugContext(ctx, "prompt rendered",
		slog.Int("prompt_length", len(prompt)),
		slog.String("document", doc.Name))

	raw, err := e.callWithRetry(ctx, prompt, doc)
	if err != nil {
		return nil, err
	}

	report, err := parseReport(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to parse model response",
			slog.String("error", err.Error()),
			slog.Int("response_length", len(raw)))
		return nil, err
	}

	return report, nil
}

// callWithRetry calls the Gemini API, retrying transient failures with
// exponential backoff and jitter. Permanent errors (content blocked, empty
// candidates) are returned immediately.
func (e *Engine) callWithRetry(ctx context.Context, prompt string, doc *analysis.Document) (string, error) {
	maxRetries := e.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := time.Duration(e.config.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(doc.Data, doc.MIMEType),
		}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(baseDelay, attempt, rng)
			e.logger.InfoContext(ctx, "retrying Gemini API call",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", analysis.ErrTransientFailure, ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, genCfg)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", analysis.ErrTransientFailure, err)
			e.logger.WarnContext(ctx, "Gemini API call failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}

		text, err := extractText(resp)
		if err != nil {
			// Safety blocks and empty responses will not improve on retry.
			return "", err
		}
		return text, nil
	}

	if lastErr == nil {
		lastErr = analysis.ErrTransientFailure
	}
	return "", fmt.Errorf("%w: %v", ErrAllRetriesFailed, lastErr)
}

// backoffDelay computes the exponential backoff delay for a retry attempt,
// with up to 50% random jitter.
func backoffDelay(base time.Duration, attempt int, rng *rand.Rand) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.5 * rng.Float64()
	return time.Duration(delay + jitter)
}

// extractText pulls the text content out of a Gemini response, mapping
// blocked or empty responses to the analysis package sentinels.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", analysis.ErrInvalidResponse)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", analysis.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", analysis.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: candidate stopped for safety", analysis.ErrContentBlocked)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response text", analysis.ErrInvalidResponse)
	}
	return text, nil
}

// parseReport decodes the model's JSON response into a Report. Markdown code
// fences around the JSON are tolerated since models occasionally add them
// despite the JSON response mode.
func parseReport(raw string) (*analysis.Report, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var report analysis.Report
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}

	if err := report.Validate(); err != nil {
		return nil, err
	}
	return &report, nil
}
