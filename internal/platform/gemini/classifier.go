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
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/rahilrshah/productivity-app/internal/classify"
	"github.com/rahilrshah/productivity-app/internal/config"
	"github.com/rahilrshah/productivity-app/internal/domain"
)

// maxAttempts bounds retries of transient API failures per classification.
const maxAttempts = 3

// GeminiClassifier implements the classify.Classifier interface using
// Google's Gemini API for intent classification and entity extraction.
type GeminiClassifier struct {
	logger  *slog.Logger
	client  *genai.Client
	model   string
	limit   int
	timeout time.Duration

	// generate performs one model call and returns the raw response text.
	// It is a field so tests can substitute the network call.
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGeminiClassifier creates a classifier backed by the Gemini API.
func NewGeminiClassifier(ctx context.Context, logger *slog.Logger, cfg config.ClassifierConfig) (*GeminiClassifier, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", classify.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", classify.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", classify.ErrInvalidConfig, err)
	}

	limit := cfg.MaxInputChars
	if limit <= 0 {
		limit = 20000
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &GeminiClassifier{
		logger:  logger.With("component", "gemini_classifier"),
		client:  client,
		model:   cfg.ModelName,
		limit:   limit,
		timeout: timeout,
	}
	c.generate = c.callModel
	return c, nil
}

// Classify determines the intent of the text and extracts entities.
// Malformed model output degrades to the fallback intent with low confidence
// rather than an error; only context cancellation surfaces as an error.
func (c *GeminiClassifier) Classify(ctx context.Context, text string, contextSummary string) (*classify.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return fallbackClassification(), nil
	}

	// Bound external-call cost before building the prompt. The cut backs
	// up to a rune boundary so the prompt stays valid UTF-8.
	if len(text) > c.limit {
		cut := c.limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		c.logger.DebugContext(ctx, "truncating classification input",
			"original_length", len(text), "limit", c.limit)
		text = text[:cut]
	}

	prompt := buildPrompt(text, contextSummary)

	raw, err := c.generateWithRetry(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", classify.ErrTransientFailure, ctx.Err())
		}
		c.logger.WarnContext(ctx, "classification degraded to fallback intent", "error", err)
		return fallbackClassification(), nil
	}

	result, err := parseClassification(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "malformed classification response, using fallback intent",
			"error", err)
		return fallbackClassification(), nil
	}
	return result, nil
}

// generateWithRetry calls the model with exponential backoff and jitter on
// transient failures, in the same shape other external calls in this
// codebase use.
func (c *GeminiClassifier) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		raw, err := c.generate(callCtx, prompt)
		cancel()

		if err == nil {
			return raw, nil
		}
		lastErr = err

		if errors.Is(err, classify.ErrContentBlocked) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", classify.ErrTransientFailure, ctx.Err())
		}

		c.logger.WarnContext(ctx, "Gemini call failed",
			"attempt", attempt+1, "max_attempts", maxAttempts, "error", err)

		if attempt == maxAttempts-1 {
			break
		}

		// delay = 1s * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)) * (0.5 + rng.Float64()*0.5))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", classify.ErrTransientFailure, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %v", classify.ErrTransientFailure, lastErr)
}

// callModel performs a single Gemini API call.
func (c *GeminiClassifier) callModel(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response", classify.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response blocked", classify.ErrContentBlocked)
	}
	return resp.Text(), nil
}

// classificationSchema is the JSON shape the prompt instructs the model to
// produce.
type classificationSchema struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// parseClassification validates the raw model output against the expected
// schema and maps it to a Classification with a known intent.
func parseClassification(raw string) (*classify.Classification, error) {
	raw = strings.TrimSpace(raw)
	// Models occasionally wrap JSON in a fenced code block despite the MIME
	// type hint.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed classificationSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrInvalidResponse, err)
	}
	if parsed.Intent == "" {
		return nil, fmt.Errorf("%w: missing intent", classify.ErrInvalidResponse)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	entities := parsed.Entities
	if entities == nil {
		entities = map[string]string{}
	}

	return &classify.Classification{
		Intent:     domain.ParseIntent(parsed.Intent),
		Confidence: confidence,
		Entities:   entities,
	}, nil
}

func fallbackClassification() *classify.Classification {
	return &classify.Classification{
		Intent:     domain.FallbackIntent,
		Confidence: 0.1,
		Entities:   map[string]string{},
	}
}
