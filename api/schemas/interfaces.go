package schemas

import (
	"context"
	"time"
)

// -- LLM Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the model for a JSON document.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
	MaxTokens       int     `json:"max_tokens"`        // Upper bound on generated tokens.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
// Generate must honour ctx so callers can impose their own deadline.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}

// -- Task Memory Interface --

// TaskStore persists the outcome of finished agent tasks so they can be
// listed later. Implementations must be safe for concurrent use.
type TaskStore interface {
	SaveTask(ctx context.Context, record TaskRecord) error
	RecentTasks(ctx context.Context, limit int) ([]TaskRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
