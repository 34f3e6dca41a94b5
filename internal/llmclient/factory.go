// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
)

// newGemini is swapped in tests so the factory can be exercised without the network.
var newGemini = func(ctx context.Context, cfg config.LLMModelConfig, model string, logger *zap.Logger) (schemas.LLMClient, error) {
	return NewGeminiClient(ctx, cfg, model, logger)
}

// NewClient is a factory function that creates a tier-routing LLMClient from
// the configuration. When the fast and powerful models resolve to the same
// name a single underlying client serves both tiers.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}

	fastModel := cfg.ModelFor(false)
	powerfulModel := cfg.ModelFor(true)

	powerful, err := newGemini(ctx, cfg, powerfulModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create powerful tier client (%s): %w", powerfulModel, err)
	}

	fast := powerful
	if fastModel != powerfulModel {
		fast, err = newGemini(ctx, cfg, fastModel, logger)
		if err != nil {
			_ = powerful.Close()
			return nil, fmt.Errorf("failed to create fast tier client (%s): %w", fastModel, err)
		}
	}

	return NewLLMRouter(logger, fast, powerful)
}
