// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
)

// generator is the slice of the genai SDK the client depends on.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements schemas.LLMClient for Google Gemini through the genai SDK.
type GeminiClient struct {
	models generator
	model  string
	logger *zap.Logger
	config config.LLMModelConfig

	// maxElapsed bounds the retry loop for transient API failures.
	maxElapsed time.Duration
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the client for a single model.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, model string, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set llm.api_key or GEMINI_API_KEY)")
	}
	if model == "" {
		model = cfg.Model
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		models:     client.Models,
		model:      model,
		config:     cfg,
		logger:     logger.Named("llm_client.gemini").With(zap.String("model", model)),
		maxElapsed: 2 * time.Minute,
	}, nil
}

// Generate sends the prompts to Gemini and returns the text of the first candidate.
// Rate limiting and server errors are retried with exponential backoff until ctx ends.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := genai.Text(req.UserPrompt)
	genCfg := c.buildConfig(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	b.MaxInterval = 30 * time.Second

	var text string
	operation := func() error {
		start := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.model, contents, genCfg)
		if err != nil {
			return c.classifyError(err)
		}
		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := resp.Candidates[0]
		out := resp.Text()
		if out == "" {
			if candidate.FinishReason == genai.FinishReasonSafety || candidate.FinishReason == genai.FinishReasonBlocklist {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", candidate.FinishReason)
		}

		fields := []zap.Field{zap.Duration("duration", time.Since(start))}
		if resp.UsageMetadata != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
				zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
				zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
			)
		}
		c.logger.Debug("LLM generation complete", fields...)

		text = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// Close is a no-op; the genai client holds no long-lived connections of its own.
func (c *GeminiClient) Close() error {
	return nil
}

func (c *GeminiClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}

	if topP := float32(req.Options.TopP); topP > 0 {
		genCfg.TopP = genai.Ptr(topP)
	} else if c.config.TopP > 0 {
		genCfg.TopP = genai.Ptr(c.config.TopP)
	}
	if topK := req.Options.TopK; topK > 0 {
		genCfg.TopK = genai.Ptr(float32(topK))
	} else if c.config.TopK > 0 {
		genCfg.TopK = genai.Ptr(float32(c.config.TopK))
	}

	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	return genCfg
}

// classifyError marks non-retryable API errors as permanent.
func (c *GeminiClient) classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			c.logger.Warn("Transient Gemini API error, retrying", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
			return err
		default:
			c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
			return backoff.Permanent(fmt.Errorf("gemini API error: %w", err))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying", zap.Error(err))
	return fmt.Errorf("gemini request failed: %w", err)
}
